package usecase

import (
	"context"
	"sync"
	"time"

	"CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
	"CandleFlow/internal/engine"
	applogger "CandleFlow/pkg/logger"
	"CandleFlow/pkg/queue"
)

// WriterConfig holds persistence tunables.
type WriterConfig struct {
	DrainInterval time.Duration
	RetryMax      int
	BackoffMin    time.Duration
	BackoffMax    time.Duration
}

// CandleWriter drains finalized candles from the engine and appends them to
// durable storage. Appends are retried with bounded backoff; after the retry
// budget is spent the batch goes to a Redis-backed retry queue, and if even
// that fails the batch is parked in memory and re-attempted on the next
// flush, so a closed candle is never dropped.
type CandleWriter struct {
	cfg     WriterConfig
	eng     *engine.Aggregator
	store   domrepo.CandleStore
	retryQ  queue.QueueService
	metrics domrepo.Metrics
	l       *applogger.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}

	pendingMu sync.Mutex
	pending   []models.Candle // batches that outlived retry and enqueue
}

func NewCandleWriter(
	cfg WriterConfig,
	eng *engine.Aggregator,
	store domrepo.CandleStore,
	retryQ queue.QueueService,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *CandleWriter {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 200 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	return &CandleWriter{
		cfg:     cfg,
		eng:     eng,
		store:   store,
		retryQ:  retryQ,
		metrics: metrics,
		l:       l,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the periodic drain loop.
func (w *CandleWriter) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *CandleWriter) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.cfg.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush re-attempts any parked batch, then drains closed candles and
// persists them. Called from the drain loop and once more during shutdown
// after intake has stopped.
func (w *CandleWriter) Flush(ctx context.Context) {
	candles := append(w.takePending(), w.eng.DrainClosed()...)
	if len(candles) == 0 {
		return
	}

	start := time.Now()
	if err := w.appendWithRetry(ctx, candles); err != nil {
		w.metrics.RecordError("persist")
		w.l.Error("candle append failed, queueing for retry",
			applogger.Int("candles", len(candles)),
			applogger.Error(err),
		)
		if !w.enqueueRetry(ctx, candles) {
			w.park(candles)
		}
		return
	}

	for _, c := range candles {
		w.metrics.RecordCandlePersisted(c.Symbol, c.Timeframe)
	}
	w.metrics.RecordLatency("persist", time.Since(start).Seconds())
	w.l.Debug("candles persisted",
		applogger.Int("count", len(candles)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
}

func (w *CandleWriter) appendWithRetry(ctx context.Context, candles []models.Candle) error {
	backoff := w.cfg.BackoffMin
	var err error
	for attempt := 0; attempt < w.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > w.cfg.BackoffMax {
				backoff = w.cfg.BackoffMax
			}
		}
		if err = w.store.Append(ctx, candles); err == nil {
			return nil
		}
	}
	return err
}

func (w *CandleWriter) enqueueRetry(ctx context.Context, candles []models.Candle) bool {
	if w.retryQ == nil {
		return false
	}
	items := make([]models.CandleItem, len(candles))
	for i, c := range candles {
		items[i] = models.NewCandleItem(c)
	}
	if err := w.retryQ.PublishMessage(ctx, CandleAppendMessageType, items); err != nil {
		w.l.Error("retry enqueue failed", applogger.Error(err))
		return false
	}
	return true
}

// park holds a batch that survived both the retry budget and the queue so
// the next Flush re-attempts it. Losing a closed candle is never an option.
func (w *CandleWriter) park(candles []models.Candle) {
	w.metrics.RecordError("persist_stalled")
	w.l.Error("candles parked in memory, storage and retry queue both down",
		applogger.Int("candles", len(candles)))
	w.pendingMu.Lock()
	w.pending = append(w.pending, candles...)
	w.pendingMu.Unlock()
}

func (w *CandleWriter) takePending() []models.Candle {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	out := w.pending
	w.pending = nil
	return out
}

// Stop stops the drain loop and waits for it to exit.
func (w *CandleWriter) Stop() {
	close(w.stopCh)
	<-w.doneCh
}
