package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"CandleFlow/internal/domain/models"
)

func newTestAggregator(t *testing.T, tfNames []string, lateness time.Duration) *Aggregator {
	t.Helper()
	tfs, err := ParseTimeframes(tfNames)
	if err != nil {
		t.Fatalf("parse timeframes: %v", err)
	}
	return NewAggregator(Config{Timeframes: tfs, AllowedLateness: lateness, Shards: 4}, nil, nil)
}

func tick(symbol string, unixSec int64, price, volume string) models.Tick {
	return models.Tick{
		Symbol: symbol,
		Time:   time.Unix(unixSec, 0).UTC(),
		Price:  decimal.RequireFromString(price),
		Volume: decimal.RequireFromString(volume),
	}
}

func TestIngestAndClose(t *testing.T) {
	agg := newTestAggregator(t, []string{"1m"}, 5*time.Second)

	agg.Ingest(tick("BTCUSDT", 0, "10", "1"))
	agg.Ingest(tick("BTCUSDT", 30, "12", "2"))
	agg.Ingest(tick("BTCUSDT", 59, "9", "1"))

	if got := agg.DrainClosed(); len(got) != 0 {
		t.Fatalf("bucket closed early: %v", got)
	}

	// watermark reaches 65-5=60 >= bucket end
	agg.Ingest(tick("BTCUSDT", 65, "11", "1"))

	closed := agg.DrainClosed()
	if len(closed) != 1 {
		t.Fatalf("expected 1 closed candle, got %d", len(closed))
	}
	c := closed[0]
	if !c.Closed {
		t.Fatalf("candle not flagged closed")
	}
	if c.BucketStart.Unix() != 0 || c.BucketEnd.Unix() != 60 {
		t.Fatalf("unexpected bucket [%d, %d)", c.BucketStart.Unix(), c.BucketEnd.Unix())
	}
	if c.Open.String() != "10" || c.High.String() != "12" || c.Low.String() != "9" || c.Close.String() != "9" {
		t.Fatalf("unexpected OHLC %s/%s/%s/%s", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume.String() != "4" || c.TickCount != 3 {
		t.Fatalf("unexpected volume=%s count=%d", c.Volume, c.TickCount)
	}
	if err := c.CheckBounds(); err != nil {
		t.Fatalf("bounds: %v", err)
	}
}

func TestLateTickDropped(t *testing.T) {
	agg := newTestAggregator(t, []string{"1m"}, 5*time.Second)

	agg.Ingest(tick("ETHUSDT", 10, "100", "1"))
	agg.Ingest(tick("ETHUSDT", 75, "101", "1")) // watermark 70, closes [0,60)

	closed := agg.DrainClosed()
	if len(closed) != 1 {
		t.Fatalf("expected 1 closed candle, got %d", len(closed))
	}
	want := closed[0]

	// straggler for the closed [0,60) bucket
	applied, drops := agg.Ingest(tick("ETHUSDT", 59, "999", "5"))
	if applied != 0 {
		t.Fatalf("late tick applied to %d buckets", applied)
	}
	if len(drops) != 1 {
		t.Fatalf("expected 1 late drop, got %d", len(drops))
	}
	if drops[0].BucketStart.Unix() != 0 {
		t.Fatalf("unexpected drop bucket %d", drops[0].BucketStart.Unix())
	}

	// closed candle is frozen; re-draining produces nothing new for [0,60)
	for _, c := range agg.DrainClosed() {
		if c.BucketStart.Equal(want.BucketStart) {
			t.Fatalf("closed bucket re-emitted")
		}
	}
}

func TestOutOfOrderWithinLateness(t *testing.T) {
	agg := newTestAggregator(t, []string{"1m"}, 10*time.Second)

	agg.Ingest(tick("BTCUSDT", 40, "20", "1"))
	agg.Ingest(tick("BTCUSDT", 45, "25", "1"))
	// straggler with an earlier event time, still within lateness
	agg.Ingest(tick("BTCUSDT", 5, "15", "1"))

	agg.Ingest(tick("BTCUSDT", 71, "30", "1")) // watermark 61
	closed := agg.DrainClosed()
	if len(closed) != 1 {
		t.Fatalf("expected 1 closed candle, got %d", len(closed))
	}
	c := closed[0]
	if c.Open.String() != "15" {
		t.Fatalf("open should follow smallest event time, got %s", c.Open)
	}
	if c.Close.String() != "25" {
		t.Fatalf("close should follow greatest event time, got %s", c.Close)
	}
	if c.Low.String() != "15" || c.High.String() != "25" {
		t.Fatalf("unexpected low/high %s/%s", c.Low, c.High)
	}
}

func TestReplayDeterminism(t *testing.T) {
	ticks := []models.Tick{
		tick("BTCUSDT", 1, "100.5", "1"),
		tick("BTCUSDT", 17, "99.25", "2"),
		tick("BTCUSDT", 33, "101.75", "0.5"),
		tick("BTCUSDT", 59, "98", "3"),
		tick("BTCUSDT", 64, "102", "1"),
		tick("BTCUSDT", 95, "103", "2"),
		tick("ETHUSDT", 5, "10", "1"),
		tick("ETHUSDT", 42, "11.5", "4"),
		tick("ETHUSDT", 90, "9.75", "2"),
	}
	sentinel := tick("BTCUSDT", 500, "100", "0.1")
	sentinel2 := tick("ETHUSDT", 500, "10", "0.1")

	run := func(order []models.Tick) map[string]models.Candle {
		agg := newTestAggregator(t, []string{"1m", "5m"}, 5*time.Second)
		for _, tk := range order {
			agg.Ingest(tk)
		}
		agg.Ingest(sentinel)
		agg.Ingest(sentinel2)
		out := make(map[string]models.Candle)
		for _, c := range agg.DrainClosed() {
			out[c.Key()] = c
		}
		return out
	}

	want := run(ticks)
	if len(want) == 0 {
		t.Fatalf("no candles closed in baseline run")
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]models.Tick, len(ticks))
		copy(shuffled, ticks)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := run(shuffled)
		if len(got) != len(want) {
			t.Fatalf("run %d: %d candles, want %d", i, len(got), len(want))
		}
		for key, w := range want {
			g, ok := got[key]
			if !ok {
				t.Fatalf("run %d: missing candle %s", i, key)
			}
			if !g.Open.Equal(w.Open) || !g.High.Equal(w.High) || !g.Low.Equal(w.Low) || !g.Close.Equal(w.Close) ||
				!g.Volume.Equal(w.Volume) || g.TickCount != w.TickCount {
				t.Fatalf("run %d: candle %s differs: got %+v want %+v", i, key, g, w)
			}
		}
	}
}

func TestBoundsInvariantUnderRandomTicks(t *testing.T) {
	agg := newTestAggregator(t, []string{"1m"}, 0)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		price := decimal.NewFromFloat(50 + rng.Float64()*100).Round(4)
		tk := models.Tick{
			Symbol: "BTCUSDT",
			Time:   time.Unix(int64(rng.Intn(300)), 0).UTC(),
			Price:  price,
			Volume: decimal.New(1, 0),
		}
		agg.Ingest(tk)

		for _, c := range agg.OpenRange("BTCUSDT", "1m", time.Unix(0, 0), time.Unix(600, 0)) {
			if err := c.CheckBounds(); err != nil {
				t.Fatalf("invariant violated while open: %v", err)
			}
		}
	}
	agg.Ingest(tick("BTCUSDT", 1000, "75", "1"))
	for _, c := range agg.DrainClosed() {
		if err := c.CheckBounds(); err != nil {
			t.Fatalf("invariant violated at close: %v", err)
		}
	}
}

func TestOpenRangeSnapshot(t *testing.T) {
	agg := newTestAggregator(t, []string{"1m"}, 5*time.Second)

	agg.Ingest(tick("BTCUSDT", 10, "10", "1"))
	agg.Ingest(tick("BTCUSDT", 70, "12", "2")) // watermark 65, closes [0,60)

	closed := agg.DrainClosed()
	if len(closed) != 1 || closed[0].BucketStart.Unix() != 0 {
		t.Fatalf("expected [0,60) closed, got %v", closed)
	}

	open := agg.OpenRange("BTCUSDT", "1m", time.Unix(0, 0), time.Unix(120, 0))
	if len(open) != 1 {
		t.Fatalf("expected 1 open candle, got %d", len(open))
	}
	if open[0].BucketStart.Unix() != 60 || open[0].Closed {
		t.Fatalf("unexpected open candle %+v", open[0])
	}

	// snapshot is a copy: later ticks do not mutate it
	before := open[0].Close
	agg.Ingest(tick("BTCUSDT", 80, "50", "1"))
	if !open[0].Close.Equal(before) {
		t.Fatalf("snapshot mutated by later ingest")
	}
}

func TestMultiTimeframeFanout(t *testing.T) {
	agg := newTestAggregator(t, []string{"1m", "5m"}, 0)

	applied, _ := agg.Ingest(tick("BTCUSDT", 30, "10", "1"))
	if applied != 2 {
		t.Fatalf("tick should land in 2 timeframes, got %d", applied)
	}

	agg.Ingest(tick("BTCUSDT", 301, "11", "1")) // closes 1m buckets and 5m [0,300)
	closed := agg.DrainClosed()

	var got1m, got5m bool
	for _, c := range closed {
		switch {
		case c.Timeframe == "1m" && c.BucketStart.Unix() == 0:
			got1m = true
		case c.Timeframe == "5m" && c.BucketStart.Unix() == 0:
			got5m = true
			if c.BucketEnd.Unix() != 300 {
				t.Fatalf("5m bucket end %d", c.BucketEnd.Unix())
			}
		}
	}
	if !got1m || !got5m {
		t.Fatalf("missing closed candles: 1m=%v 5m=%v (%v)", got1m, got5m, closed)
	}
}

func TestConcurrentIngest(t *testing.T) {
	agg := newTestAggregator(t, []string{"1m"}, 0)

	const workers = 8
	const perWorker = 200
	done := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func(seed int64) {
			defer func() { done <- struct{}{} }()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < perWorker; i++ {
				agg.Ingest(tick("BTCUSDT", int64(rng.Intn(60)), "100", "1"))
			}
		}(int64(w))
	}
	for w := 0; w < workers; w++ {
		<-done
	}

	open := agg.OpenRange("BTCUSDT", "1m", time.Unix(0, 0), time.Unix(60, 0))
	if len(open) != 1 {
		t.Fatalf("expected single open bucket, got %d", len(open))
	}
	if open[0].TickCount != workers*perWorker {
		t.Fatalf("lost ticks: count=%d want %d", open[0].TickCount, workers*perWorker)
	}
}
