package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"CandleFlow/internal/domain/repository"
	"CandleFlow/internal/engine"
	"CandleFlow/internal/handler/api"
	mid "CandleFlow/internal/middleware"
	internalrepo "CandleFlow/internal/repository"
	"CandleFlow/internal/service/events"
	"CandleFlow/internal/service/feed"
	"CandleFlow/internal/usecase"
	pkgcache "CandleFlow/pkg/cache"
	pkgch "CandleFlow/pkg/clickhouse"
	"CandleFlow/pkg/config"
	xhttp "CandleFlow/pkg/http"
	pkgkafka "CandleFlow/pkg/kafka"
	applogger "CandleFlow/pkg/logger"
	"CandleFlow/pkg/metrics"
	"CandleFlow/pkg/queue"
	"CandleFlow/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideDropCollector creates the late-drop ring for the status endpoint.
func ProvideDropCollector() *events.DropCollector {
	return events.NewDropCollector(256)
}

// ProvideEngine creates the candle aggregation engine.
func ProvideEngine(cfg *config.Config, m repository.Metrics, drops *events.DropCollector) (*engine.Aggregator, error) {
	tfs, err := engine.ParseTimeframes(cfg.Engine.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("timeframes: %w", err)
	}
	return engine.NewAggregator(engine.Config{
		Timeframes:      tfs,
		AllowedLateness: cfg.Engine.AllowedLateness,
		Shards:          cfg.Engine.Shards,
	}, m, drops), nil
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCandleStore creates the durable candle store and ensures its table.
func ProvideCandleStore(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.CandleStore, error) {
	store := internalrepo.NewClickHouseCandleStore(chClient, cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideRedisCache creates the Redis cache client.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	host, port := splitHostPort(cfg.Redis.Addr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 6379
	}
	return host, port
}

// ProvideCheckpointStore keeps engine snapshots in Redis.
func ProvideCheckpointStore(rc *pkgcache.RedisCache, cfg *config.Config) repository.CheckpointStore {
	return internalrepo.NewRedisCheckpointStore(rc.Client(), cfg.Checkpoint.Key)
}

// ProvideRetryQueue creates the append-retry queue with its job registered.
func ProvideRetryQueue(l *applogger.Logger, rc *pkgcache.RedisCache, store repository.CandleStore, m repository.Metrics) *queue.RedisQueue {
	q := queue.NewRedisQueue(l,
		&queue.QueueConfig{Workers: 1, RetryLimit: 10, RetryDelay: 15 * time.Second},
		rc.Client(), queue.ModeProducerConsumer)
	q.RegisterJob(usecase.NewCandleAppendJob(store, m))
	return q
}

// ProvidePublisher creates the Kafka tick publisher when the backend is
// kafka; the engine backend needs no broker.
func ProvidePublisher(cfg *config.Config) (repository.Publisher, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideKafkaConsumer creates a Kafka consumer for the kafka backend.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideTickIngestor creates the normalize-and-aggregate entry point.
func ProvideTickIngestor(eng *engine.Aggregator, m repository.Metrics, l *applogger.Logger) *usecase.TickIngestor {
	return usecase.NewTickIngestor(eng, m, l)
}

// ProvideKafkaTicksHandler registers the handler for the ticks topic.
func ProvideKafkaTicksHandler(ingestor *usecase.TickIngestor, m repository.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topic, ingestor, m)
}

// ProvideFeedStream creates the WebSocket market stream.
func ProvideFeedStream(cfg *config.Config) repository.MarketStream {
	return feed.New(
		cfg.Feed.WebSocketURL,
		cfg.Feed.Symbols,
		feed.WithAPIKey(cfg.Feed.APIKey),
		feed.WithReconnectDelay(cfg.Feed.ReconnectDelay),
		feed.WithPingInterval(cfg.Feed.PingInterval),
	)
}

// ProvideTickProcessor creates the backend-routing processor.
func ProvideTickProcessor(
	pub repository.Publisher,
	ingestor *usecase.TickIngestor,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.TickProcessor {
	return usecase.NewTickProcessor(pub, ingestor, m, cfg.Backend.Type)
}

// ProvideTickCollector creates the feed collector with its pipeline.
func ProvideTickCollector(
	stream repository.MarketStream,
	processor *usecase.TickProcessor,
	m repository.Metrics,
) *usecase.TickCollector {
	pipe := mid.NewIngestPipeline(processor, m,
		mid.WithBufferSize(2000),
	)
	return usecase.NewTickCollector(stream, processor, m, pipe)
}

// ProvideCandleWriter creates the drain-and-persist loop.
func ProvideCandleWriter(
	cfg *config.Config,
	eng *engine.Aggregator,
	store repository.CandleStore,
	retryQ *queue.RedisQueue,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CandleWriter {
	return usecase.NewCandleWriter(usecase.WriterConfig{
		DrainInterval: cfg.Engine.DrainInterval,
		RetryMax:      cfg.Writer.RetryMax,
		BackoffMin:    cfg.Writer.BackoffMin,
		BackoffMax:    cfg.Writer.BackoffMax,
	}, eng, store, retryQ, m, l)
}

// ProvideCheckpointer creates the snapshot loop.
func ProvideCheckpointer(
	eng *engine.Aggregator,
	cpStore repository.CheckpointStore,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Checkpointer {
	return usecase.NewCheckpointer(eng, cpStore, cfg.Checkpoint.Interval, l)
}

// ProvideCandlesUseCase creates the range query service.
func ProvideCandlesUseCase(
	store repository.CandleStore,
	eng *engine.Aggregator,
	rc *pkgcache.RedisCache,
	cfg *config.Config,
) *usecase.CandlesUseCase {
	uc := usecase.NewCandlesUseCase(store, eng)
	if cfg.Cache.Enabled {
		layered := pkgcache.NewLayeredCache(rc)
		uc.WithCache(layered, cfg.Cache.TTL)
	}
	return uc
}

// ProvideHTTPHandler creates the API handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	candles *usecase.CandlesUseCase,
	processor *usecase.TickProcessor,
	collector *usecase.TickCollector,
	drops *events.DropCollector,
) xhttp.Handler {
	return api.NewCandlesEchoHandler(l, candles, processor, collector, drops)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	writer *usecase.CandleWriter,
	checkpointer *usecase.Checkpointer,
	retryQ *queue.RedisQueue,
	httpHandler xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, l, collector, consumer, kh, chClient, writer, checkpointer, retryQ)
	app.SetHTTPHandler(httpHandler)
	if collector != nil {
		app.TickProc = collector.Processor()
	}
	return app
}
