package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler consumes records from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures the consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	brokers    []string
	groupID    string
	workers    int
	bufferSize int
	retryMax   int
	backoffMin time.Duration
	backoffMax time.Duration
	dlqTopic   string
	minBytes   int
	maxBytes   int
}

// WithConsumerBrokers sets the broker list.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *consumerConfig) { c.brokers = brokers }
}

// WithConsumerGroupID sets the consumer group.
func WithConsumerGroupID(id string) ConsumerOption {
	return func(c *consumerConfig) { c.groupID = id }
}

// WithConsumerWorkers sets the handler goroutine count.
func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *consumerConfig) { c.workers = n }
}

// WithConsumerBufferSize sets the in-flight channel capacity.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *consumerConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithConsumerRetry bounds handler retries and their backoff window.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *consumerConfig) {
		c.retryMax = max
		c.backoffMin = backoffMin
		c.backoffMax = backoffMax
	}
}

// WithConsumerDLQ routes exhausted messages to a dead-letter topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *consumerConfig) { c.dlqTopic = topic }
}

// WithConsumerFetch sets fetch min/max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *consumerConfig) {
		c.minBytes = minBytes
		c.maxBytes = maxBytes
	}
}

type inflight struct {
	topic  string
	data   []byte
	record kafka.Message
}

// Consumer reads registered topics through a shared worker pool. Handling
// is serialized per (topic, partition) so per-key ordering survives the
// pool. Messages that exhaust their retries go to the DLQ when one is
// configured; otherwise the offset is held and the message is retried on
// the next rebalance.
type Consumer struct {
	cfg      consumerConfig
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	inbox    chan *inflight
	dlq      *kafka.Writer
	hook     ConsumerHook

	partMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer validates options and builds the consumer. Readers are
// created in Start, after handlers are registered.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := consumerConfig{
		groupID:    "default",
		workers:    1,
		bufferSize: 10,
		retryMax:   3,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		minBytes:   10e3,
		maxBytes:   10e6,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]*kafka.Reader),
		inbox:     make(chan *inflight, cfg.bufferSize),
		hook:      NoopHook{},
		partLocks: make(map[string]map[int]*sync.Mutex),
		stopCh:    make(chan struct{}),
	}
	if cfg.dlqTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.brokers...), Balancer: &kafka.LeastBytes{}}
	}

	consumerMetricsInit.Do(registerConsumerMetrics)
	return c, nil
}

// RegisterHandler binds a handler to its topic. Must be called before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, dup := c.handlers[h.Topic()]; dup {
		log.Printf("kafka consumer: duplicate handler for topic %s ignored", h.Topic())
		return
	}
	c.handlers[h.Topic()] = h
}

// WithConsumerHook installs a lifecycle hook.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start spins up one reader per registered topic plus the worker pool.
func (c *Consumer) Start() error {
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.brokers,
			Topic:    topic,
			GroupID:  c.cfg.groupID,
			MinBytes: c.cfg.minBytes,
			MaxBytes: c.cfg.maxBytes,
		})
		log.Printf("kafka consumer: reading topic=%s group=%s", topic, c.cfg.groupID)
	}

	for i := 0; i < c.cfg.workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.readLoop(topic, reader)
	}
	log.Printf("kafka consumer: started workers=%d topics=%d", c.cfg.workers, len(c.readers))
	return nil
}

// Stop drains the pipeline and closes readers. Safe to call twice.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		close(c.inbox)

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if cerr := reader.Close(); cerr != nil {
				log.Printf("kafka consumer: close reader topic=%s: %v", topic, cerr)
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				log.Printf("kafka consumer: close dlq writer: %v", cerr)
			}
		}
	})
	return err
}

func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		record, err := reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				log.Printf("kafka consumer: read topic=%s: %v", topic, err)
			}
			continue
		}

		if !c.enqueue(&inflight{topic: topic, data: record.Value, record: record}) {
			return
		}
	}
}

// enqueue blocks instead of dropping. Near-full queues yield, full ones
// sleep, so a slow handler throttles the reader rather than losing data.
func (c *Consumer) enqueue(m *inflight) bool {
	for {
		select {
		case c.inbox <- m:
			consumerQueueDepth.WithLabelValues(m.topic).Set(float64(len(c.inbox)))
			return true
		case <-c.stopCh:
			return false
		default:
			if float64(len(c.inbox))/float64(cap(c.inbox)) > 0.8 {
				time.Sleep(10 * time.Millisecond)
			} else {
				runtime.Gosched()
			}
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()
	for m := range c.inbox {
		handler, ok := c.handlers[m.topic]
		if !ok {
			continue
		}
		c.process(handler, m)
	}
}

func (c *Consumer) process(handler MessageHandler, m *inflight) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("kafka consumer: panic in handler topic=%s: %v", m.topic, r)
		}
		consumerHandleLatency.WithLabelValues(m.topic).Observe(time.Since(start).Seconds())
	}()

	// one in-flight message per partition keeps ordering
	lock := c.partitionLock(m.topic, m.record.Partition)
	lock.Lock()
	defer lock.Unlock()

	err := c.handleWithRetry(handler, m)
	if err != nil {
		c.hook.OnError(context.Background(), m.topic, m.record, m.data, err)
		log.Printf("kafka consumer: giving up on topic=%s: %v", m.topic, err)
		if !c.deadLetter(m) {
			return // no DLQ: leave the offset uncommitted
		}
	}
	if reader := c.readers[m.topic]; reader != nil {
		c.commit(reader, m.record)
	}
}

func (c *Consumer) handleWithRetry(handler MessageHandler, m *inflight) error {
	var err error
	for attempt := 1; ; attempt++ {
		ctx, record, data, berr := c.hook.BeforeHandle(context.Background(), m.topic, m.record, m.data)
		if berr != nil {
			return berr
		}
		err = handler.Handle(ctx, data)
		c.hook.AfterHandle(ctx, m.topic, record, data, err)
		if err == nil || attempt > c.cfg.retryMax {
			return err
		}
		select {
		case <-time.After(jitteredBackoff(c.cfg.backoffMin, c.cfg.backoffMax, attempt)):
		case <-c.stopCh:
			return err
		}
	}
}

func (c *Consumer) deadLetter(m *inflight) bool {
	if c.dlq == nil {
		return false
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.dlqTopic,
		Value:   m.data,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(m.topic)}},
	})
	if err != nil {
		log.Printf("kafka consumer: dlq write topic=%s: %v", c.cfg.dlqTopic, err)
		return false
	}
	return true
}

func (c *Consumer) commit(reader *kafka.Reader, record kafka.Message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, record)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(jitteredBackoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	log.Printf("kafka consumer: commit failed: %v", err)
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()
	byPart := c.partLocks[topic]
	if byPart == nil {
		byPart = make(map[int]*sync.Mutex)
		c.partLocks[topic] = byPart
	}
	lock := byPart[partition]
	if lock == nil {
		lock = &sync.Mutex{}
		byPart[partition] = lock
	}
	return lock
}

func jitteredBackoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt-1)
	if d > max || d < min {
		d = max
	}
	return d - time.Duration(rand.Int63n(int64(d)/2))
}

var (
	consumerMetricsInit   sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func registerConsumerMetrics() {
	consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "candleflow_kafka_consumer_queue_depth",
		Help: "Messages waiting for a worker",
	}, []string{"topic"})
	consumerHandleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "candleflow_kafka_consumer_handle_seconds",
		Help: "Handling time per message",
	}, []string{"topic"})
}
