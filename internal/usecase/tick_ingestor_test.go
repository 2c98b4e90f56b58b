package usecase

import (
	"context"
	"testing"
	"time"

	"CandleFlow/internal/domain/models"
)

func TestIngestRejectsMalformedTick(t *testing.T) {
	eng := testEngine([]string{"1m"}, 0)
	ing := NewTickIngestor(eng, noopMetrics{}, testLogger())

	bad := []models.RawTick{
		{Symbol: "", Timestamp: 10, Price: "1"},
		{Symbol: "BTCUSDT", Timestamp: 0, Price: "1"},
		{Symbol: "BTCUSDT", Timestamp: 10, Price: "abc"},
		{Symbol: "BTCUSDT", Timestamp: 10, Price: "-5"},
	}
	for i, raw := range bad {
		if err := ing.Ingest(context.Background(), raw); !models.IsValidation(err) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if eng.OpenBuckets() != 0 {
		t.Fatalf("malformed ticks must not open buckets")
	}
}

func TestIngestAppliesValidTick(t *testing.T) {
	eng := testEngine([]string{"1m", "5m"}, 0)
	ing := NewTickIngestor(eng, noopMetrics{}, testLogger())

	err := ing.Ingest(context.Background(), models.RawTick{
		Symbol: "BTCUSDT", Timestamp: 90, Price: "42.5", Volume: "2",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if eng.OpenBuckets() != 2 {
		t.Fatalf("expected a bucket per timeframe, got %d", eng.OpenBuckets())
	}
}

func TestIngestBatchStopsAtFirstBadTick(t *testing.T) {
	eng := testEngine([]string{"1m"}, 0)
	ing := NewTickIngestor(eng, noopMetrics{}, testLogger())

	n, err := ing.IngestBatch(context.Background(), []models.RawTick{
		{Symbol: "BTCUSDT", Timestamp: 10, Price: "1"},
		{Symbol: "BTCUSDT", Timestamp: 11, Price: "bad"},
		{Symbol: "BTCUSDT", Timestamp: 12, Price: "2"},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if n != 1 {
		t.Fatalf("expected 1 applied before failure, got %d", n)
	}
}

func TestKafkaHandlerToleratesNumericPayload(t *testing.T) {
	eng := testEngine([]string{"1m"}, 0)
	ing := NewTickIngestor(eng, noopMetrics{}, testLogger())
	h := NewKafkaTicksHandler("ticks", ing, noopMetrics{})

	msg := []byte(`{"symbol":"BTCUSDT","t":90,"p":42.5,"v":2}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	open := eng.OpenRange("BTCUSDT", "1m", time.Unix(60, 0), time.Unix(120, 0))
	if len(open) != 1 {
		t.Fatalf("expected 1 open candle, got %d", len(open))
	}
	if open[0].Close.String() != "42.5" {
		t.Fatalf("unexpected close %s", open[0].Close)
	}
}

func TestKafkaHandlerStringPayload(t *testing.T) {
	eng := testEngine([]string{"1m"}, 0)
	ing := NewTickIngestor(eng, noopMetrics{}, testLogger())
	h := NewKafkaTicksHandler("ticks", ing, noopMetrics{})

	msg := []byte(`{"symbol":"ETHUSDT","t":30,"p":"1999.12345678","v":"0.5"}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	open := eng.OpenRange("ETHUSDT", "1m", time.Unix(0, 0), time.Unix(60, 0))
	if len(open) != 1 {
		t.Fatalf("expected 1 open candle, got %d", len(open))
	}
	if open[0].Volume.String() != "0.5" {
		t.Fatalf("precision lost: volume %s", open[0].Volume)
	}
}
