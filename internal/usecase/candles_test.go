package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
	"CandleFlow/pkg/cache"
)

func TestGetCandlesMergesClosedAndOpen(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	eng := testEngine([]string{"1m"}, 5*time.Second)

	// two closed candles in storage
	_ = store.Append(ctx, []models.Candle{
		testCandle("BTCUSDT", "1m", 0, time.Minute, "100"),
		testCandle("BTCUSDT", "1m", 60, time.Minute, "101"),
	})
	// one open candle in the engine at bucket 120
	eng.Ingest(testTick("BTCUSDT", 125, "102"))

	uc := NewCandlesUseCase(store, eng)
	res, err := uc.GetCandles(ctx, GetCandlesParams{
		Symbol:    "BTCUSDT",
		From:      time.Unix(0, 0).UTC(),
		To:        time.Unix(180, 0).UTC(),
		Timeframe: domrepo.Timeframe("1m"),
	})
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if res.Count != 3 {
		t.Fatalf("expected 3 candles, got %d", res.Count)
	}
	for i := 1; i < len(res.Candles); i++ {
		if !res.Candles[i-1].BucketStart.Before(res.Candles[i].BucketStart) {
			t.Fatalf("candles not sorted at %d", i)
		}
	}
	if !res.Candles[0].Closed || !res.Candles[1].Closed {
		t.Fatalf("stored candles must be closed")
	}
	if res.Candles[2].Closed {
		t.Fatalf("in-progress candle must not be closed")
	}
	if res.Candles[2].Close.String() != "102" {
		t.Fatalf("unexpected open candle close %s", res.Candles[2].Close)
	}
}

func TestGetCandlesClosedWinsOnOverlap(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	eng := testEngine([]string{"1m"}, 5*time.Second)

	// same bucket present in storage and in the engine, e.g. right after a
	// restart replayed a persisted bucket
	_ = store.Append(ctx, []models.Candle{
		testCandle("BTCUSDT", "1m", 0, time.Minute, "100"),
	})
	eng.Ingest(testTick("BTCUSDT", 10, "999"))

	uc := NewCandlesUseCase(store, eng)
	res, err := uc.GetCandles(ctx, GetCandlesParams{
		Symbol:    "BTCUSDT",
		From:      time.Unix(0, 0).UTC(),
		To:        time.Unix(60, 0).UTC(),
		Timeframe: domrepo.Timeframe("1m"),
	})
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if res.Count != 1 {
		t.Fatalf("expected 1 candle, got %d", res.Count)
	}
	if res.Candles[0].Close.String() != "100" {
		t.Fatalf("closed candle must win, got close %s", res.Candles[0].Close)
	}
}

func TestGetCandlesInvalidRange(t *testing.T) {
	store := newFakeStore()
	eng := testEngine([]string{"1m"}, 0)
	uc := NewCandlesUseCase(store, eng)

	_, err := uc.GetCandles(context.Background(), GetCandlesParams{
		Symbol:    "BTCUSDT",
		From:      time.Unix(120, 0),
		To:        time.Unix(60, 0),
		Timeframe: domrepo.Timeframe("1m"),
	})
	if !errors.Is(err, models.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestGetCandlesUnknownTimeframe(t *testing.T) {
	store := newFakeStore()
	eng := testEngine([]string{"1m"}, 0)
	uc := NewCandlesUseCase(store, eng)

	_, err := uc.GetCandles(context.Background(), GetCandlesParams{
		Symbol:    "BTCUSDT",
		From:      time.Unix(0, 0),
		To:        time.Unix(60, 0),
		Timeframe: domrepo.Timeframe("7m"),
	})
	if !errors.Is(err, models.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestGetCandlesMissingSymbol(t *testing.T) {
	store := newFakeStore()
	eng := testEngine([]string{"1m"}, 0)
	uc := NewCandlesUseCase(store, eng)

	_, err := uc.GetCandles(context.Background(), GetCandlesParams{
		Timeframe: domrepo.Timeframe("1m"),
		From:      time.Unix(0, 0),
		To:        time.Unix(60, 0),
	})
	if !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetCandlesCacheDoesNotHideJustClosedBucket(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	eng := testEngine([]string{"1m"}, 5*time.Second)
	mem := cache.NewMemoryCache()
	defer mem.Close()
	uc := NewCandlesUseCase(store, eng).WithCache(mem, time.Hour)

	// bucket [0,60) still open at query time
	eng.Ingest(testTick("BTCUSDT", 30, "100"))

	q := GetCandlesParams{
		Symbol:    "BTCUSDT",
		From:      time.Unix(0, 0).UTC(),
		To:        time.Unix(120, 0).UTC(),
		Timeframe: domrepo.Timeframe("1m"),
	}
	res, err := uc.GetCandles(ctx, q)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if res.Count != 1 || res.Candles[0].Closed {
		t.Fatalf("expected one open candle, got %+v", res.Candles)
	}

	// watermark passes the bucket end; the candle moves into storage
	eng.Ingest(testTick("BTCUSDT", 70, "101"))
	drained := eng.DrainClosed()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained candle, got %d", len(drained))
	}
	if err := store.Append(ctx, drained); err != nil {
		t.Fatalf("append: %v", err)
	}

	res, err = uc.GetCandles(ctx, q)
	if err != nil {
		t.Fatalf("GetCandles after close: %v", err)
	}
	var found bool
	for _, c := range res.Candles {
		if c.BucketStart.Equal(time.Unix(0, 0).UTC()) {
			found = true
			if !c.Closed {
				t.Fatalf("bucket [0,60) should be closed, got %+v", c)
			}
		}
	}
	if !found {
		t.Fatalf("closed bucket [0,60) missing from range result: %+v", res.Candles)
	}
}
