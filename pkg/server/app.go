package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"CandleFlow/internal/usecase"
	pkgch "CandleFlow/pkg/clickhouse"
	"CandleFlow/pkg/config"
	xhttp "CandleFlow/pkg/http"
	pkgkafka "CandleFlow/pkg/kafka"
	applogger "CandleFlow/pkg/logger"
	"CandleFlow/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg          *config.Config
	l            *applogger.Logger
	collector    *usecase.TickCollector
	consumer     *pkgkafka.Consumer
	kh           pkgkafka.MessageHandler
	chClient     *pkgch.Client
	writer       *usecase.CandleWriter
	checkpointer *usecase.Checkpointer
	retryQ       *queue.RedisQueue
	httpServer   *xhttp.Server
	httpHandler  xhttp.Handler
	TickProc     *usecase.TickProcessor
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	writer *usecase.CandleWriter,
	checkpointer *usecase.Checkpointer,
	retryQ *queue.RedisQueue,
) *App {
	return &App{
		cfg:          cfg,
		l:            l,
		collector:    collector,
		consumer:     consumer,
		kh:           kh,
		chClient:     chClient,
		writer:       writer,
		checkpointer: checkpointer,
		retryQ:       retryQ,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
//
// Startup order matters: the checkpoint is restored before any intake so a
// replayed tick cannot race the snapshot, and the writer loop starts before
// intake so closed candles never pile up unpersisted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := a.l

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Restore open aggregates from the last checkpoint
	if a.cfg.Checkpoint.Enabled && a.checkpointer != nil {
		if err := a.checkpointer.Restore(ctx); err != nil {
			l.Warn("checkpoint restore error", applogger.Error(err))
		}
	}

	// Start the persistence loop
	a.writer.Start(ctx)
	l.Info("candle writer started",
		applogger.Duration("drain_interval", a.cfg.Engine.DrainInterval))

	// Start the checkpoint loop
	if a.cfg.Checkpoint.Enabled && a.checkpointer != nil {
		a.checkpointer.Start(ctx)
		l.Info("checkpointer started",
			applogger.Duration("interval", a.cfg.Checkpoint.Interval))
	}

	// Start the append-retry queue
	if a.retryQ != nil {
		if err := a.retryQ.Start(); err != nil {
			l.Error("retry queue start error", applogger.Error(err))
		}
	}

	// Start feed collector if a feed is configured
	if a.collector != nil && a.cfg.Feed.WebSocketURL != "" {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("collector error", applogger.Error(err))
			}
		}()
		l.Info("collector started", applogger.Strings("symbols", a.cfg.Feed.Symbols))
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops intake first, then flushes what closed, snapshots the rest.
func (a *App) shutdown(ctx context.Context) error {
	l := a.l

	// Stop intake: collector (pipeline + stream), then consumer
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Shutdown HTTP server so no new ticks arrive over the API
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Final drain: persist whatever the watermark already closed
	a.writer.Stop()
	a.writer.Flush(ctx)

	// Final snapshot preserves still-open aggregates
	if a.cfg.Checkpoint.Enabled && a.checkpointer != nil {
		a.checkpointer.Stop(ctx)
	}

	if a.retryQ != nil {
		if err := a.retryQ.Stop(ctx); err != nil {
			l.Warn("retry queue stop error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	// Close tick processor resources (publisher)
	if a.TickProc != nil {
		a.TickProc.Close()
	}

	l.Info("shutdown complete")
	return nil
}
