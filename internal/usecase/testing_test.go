package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
	"CandleFlow/internal/engine"
	applogger "CandleFlow/pkg/logger"
)

type noopMetrics struct{}

func (noopMetrics) RecordTickIngested(string)            {}
func (noopMetrics) RecordLateDrop(string, string)        {}
func (noopMetrics) RecordCandleClosed(string, string)    {}
func (noopMetrics) RecordCandlePersisted(string, string) {}
func (noopMetrics) RecordError(string)                   {}
func (noopMetrics) RecordLastPrice(string, float64)      {}
func (noopMetrics) RecordLatency(string, float64)        {}
func (noopMetrics) RecordWatermark(string, float64)      {}

// fakeStore is an in-memory CandleStore keyed like the real one, with an
// optional error budget to simulate outages.
type fakeStore struct {
	mu       sync.Mutex
	rows     map[string]models.Candle
	failures int // Append fails this many times before succeeding
	appends  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]models.Candle)}
}

func (s *fakeStore) Init(ctx context.Context) error { return nil }

func (s *fakeStore) Append(ctx context.Context, candles []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.failures > 0 {
		s.failures--
		return models.ErrStorageUnavailable
	}
	for _, c := range candles {
		s.rows[c.Key()] = c
	}
	return nil
}

func (s *fakeStore) QueryRange(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Candle
	for _, c := range s.rows {
		if c.Symbol != symbol || c.Timeframe != string(tf) {
			continue
		}
		if c.BucketStart.Before(from) || !c.BucketStart.Before(to) {
			continue
		}
		out = append(out, c)
	}
	// sort ascending by bucket start
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].BucketStart.Before(out[j-1].BucketStart); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (s *fakeStore) Health(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                     { return nil }

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// fakeQueue records published retry payloads; set down to simulate a
// broker outage.
type fakeQueue struct {
	mu       sync.Mutex
	down     bool
	messages []interface{}
}

func (q *fakeQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.down {
		return errors.New("queue unavailable")
	}
	q.messages = append(q.messages, payload)
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

func testLogger() *applogger.Logger {
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		panic(err)
	}
	return l
}

func testEngine(tfNames []string, lateness time.Duration) *engine.Aggregator {
	tfs, err := engine.ParseTimeframes(tfNames)
	if err != nil {
		panic(err)
	}
	return engine.NewAggregator(engine.Config{
		Timeframes:      tfs,
		AllowedLateness: lateness,
	}, noopMetrics{}, nil)
}

func testTick(symbol string, unixSec int64, price string) models.Tick {
	return models.Tick{
		Symbol: symbol,
		Time:   time.Unix(unixSec, 0).UTC(),
		Price:  decimal.RequireFromString(price),
		Volume: decimal.NewFromInt(1),
	}
}

func testCandle(symbol, tf string, startSec int64, width time.Duration, price string) models.Candle {
	p := decimal.RequireFromString(price)
	start := time.Unix(startSec, 0).UTC()
	return models.Candle{
		Symbol:      symbol,
		Timeframe:   tf,
		BucketStart: start,
		BucketEnd:   start.Add(width),
		Open:        p,
		High:        p,
		Low:         p,
		Close:       p,
		Volume:      decimal.NewFromInt(1),
		TickCount:   1,
		Closed:      true,
	}
}
