package usecase

import (
	"context"
	"testing"
	"time"
)

func TestFlushPersistsClosedCandles(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	eng := testEngine([]string{"1m"}, 5*time.Second)

	eng.Ingest(testTick("BTCUSDT", 10, "100"))
	eng.Ingest(testTick("BTCUSDT", 70, "101")) // watermark 65 closes bucket 0

	w := NewCandleWriter(WriterConfig{}, eng, store, nil, noopMetrics{}, testLogger())
	w.Flush(ctx)

	if store.count() != 1 {
		t.Fatalf("expected 1 persisted candle, got %d", store.count())
	}
}

func TestFlushRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failures = 2 // fail twice, succeed on third attempt
	eng := testEngine([]string{"1m"}, 0)

	eng.Ingest(testTick("BTCUSDT", 10, "100"))
	eng.Ingest(testTick("BTCUSDT", 61, "101"))

	w := NewCandleWriter(WriterConfig{
		RetryMax:   3,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	}, eng, store, nil, noopMetrics{}, testLogger())
	w.Flush(ctx)

	if store.count() != 1 {
		t.Fatalf("expected candle persisted after retries, got %d", store.count())
	}
	if store.appends != 3 {
		t.Fatalf("expected 3 append attempts, got %d", store.appends)
	}
}

func TestFlushQueuesAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failures = 100 // storage down for the whole test
	eng := testEngine([]string{"1m"}, 0)
	q := &fakeQueue{}

	eng.Ingest(testTick("BTCUSDT", 10, "100"))
	eng.Ingest(testTick("BTCUSDT", 61, "101"))

	w := NewCandleWriter(WriterConfig{
		RetryMax:   2,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	}, eng, store, q, noopMetrics{}, testLogger())
	w.Flush(ctx)

	if store.count() != 0 {
		t.Fatalf("store should have nothing, got %d", store.count())
	}
	if q.count() != 1 {
		t.Fatalf("expected 1 queued retry batch, got %d", q.count())
	}
}

func TestFlushParksBatchWhenQueueAlsoFails(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failures = 2 // storage down for the first flush only
	eng := testEngine([]string{"1m"}, 0)
	q := &fakeQueue{down: true}

	eng.Ingest(testTick("BTCUSDT", 10, "100"))
	eng.Ingest(testTick("BTCUSDT", 61, "101"))

	w := NewCandleWriter(WriterConfig{
		RetryMax:   2,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	}, eng, store, q, noopMetrics{}, testLogger())

	w.Flush(ctx)
	if store.count() != 0 {
		t.Fatalf("store should have nothing yet, got %d", store.count())
	}
	if q.count() != 0 {
		t.Fatalf("queue is down, nothing should be enqueued, got %d", q.count())
	}

	// storage recovers; the parked batch must persist on the next flush
	w.Flush(ctx)
	if store.count() != 1 {
		t.Fatalf("expected parked candle persisted after recovery, got %d", store.count())
	}
}

func TestWriterLoopFlushesPeriodically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newFakeStore()
	eng := testEngine([]string{"1m"}, 0)

	eng.Ingest(testTick("BTCUSDT", 10, "100"))
	eng.Ingest(testTick("BTCUSDT", 61, "101"))

	w := NewCandleWriter(WriterConfig{DrainInterval: 5 * time.Millisecond}, eng, store, nil, noopMetrics{}, testLogger())
	w.Start(ctx)
	defer w.Stop()

	deadline := time.Now().Add(time.Second)
	for store.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("writer loop never persisted")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
