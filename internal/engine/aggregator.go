package engine

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
)

// Config holds engine tunables. Timeframes must be non-empty.
type Config struct {
	Timeframes      []Timeframe
	AllowedLateness time.Duration
	Shards          int
}

// DropRecorder receives late-drop events for observability (status API).
type DropRecorder interface {
	Record(drop models.LateDrop)
}

type frontierKey struct {
	symbol string
	tf     string
}

// Aggregator consumes normalized ticks, maintains in-progress candles across
// every configured timeframe, and emits finalized candles once the
// per-symbol watermark passes a bucket end.
//
// Closure ordering: DrainClosed advances the per-(symbol, timeframe) closed
// frontier before removing a bucket from the index, and Ingest re-checks the
// frontier under the bucket's shard lock. A tick racing with closure is
// therefore either applied before the final copy is taken or counted as a
// late drop; a closed bucket is never re-opened.
type Aggregator struct {
	cfg        Config
	index      *Index
	watermarks *WatermarkTracker
	metrics    domrepo.Metrics
	drops      DropRecorder

	frontierMu sync.RWMutex
	frontier   map[frontierKey]time.Time // end of the last closed bucket

	arrivalSeq atomic.Uint64 // monotonically increasing arrival counter
}

// NewAggregator creates an engine for the configured timeframes.
func NewAggregator(cfg Config, metrics domrepo.Metrics, drops DropRecorder) *Aggregator {
	if cfg.Shards <= 0 {
		cfg.Shards = 32
	}
	return &Aggregator{
		cfg:        cfg,
		index:      NewIndex(cfg.Shards),
		watermarks: NewWatermarkTracker(cfg.AllowedLateness),
		metrics:    metrics,
		drops:      drops,
		frontier:   make(map[frontierKey]time.Time),
	}
}

// Watermarks exposes the tracker for status reads.
func (a *Aggregator) Watermarks() *WatermarkTracker { return a.watermarks }

// OpenBuckets returns the number of in-progress aggregates.
func (a *Aggregator) OpenBuckets() int { return a.index.Len() }

func (a *Aggregator) nextArrival() uint64 {
	return a.arrivalSeq.Add(1)
}

func (a *Aggregator) closedThrough(symbol, tf string) time.Time {
	a.frontierMu.RLock()
	t := a.frontier[frontierKey{symbol: symbol, tf: tf}]
	a.frontierMu.RUnlock()
	return t
}

func (a *Aggregator) advanceFrontier(symbol, tf string, end time.Time) {
	k := frontierKey{symbol: symbol, tf: tf}
	a.frontierMu.Lock()
	if end.After(a.frontier[k]) {
		a.frontier[k] = end
	}
	a.frontierMu.Unlock()
}

// Ingest applies a normalized tick to every configured timeframe and
// advances the symbol watermark. Ticks for already-closed buckets are
// counted as late drops, never applied and never an error: lateness is an
// expected steady-state occurrence under network jitter.
func (a *Aggregator) Ingest(tick models.Tick) (applied int, drops []models.LateDrop) {
	arrival := a.nextArrival()
	arrivedAt := time.Now().UTC()

	wm := a.watermarks.Observe(tick.Symbol, tick.Time)
	if a.metrics != nil {
		a.metrics.RecordTickIngested(tick.Symbol)
		a.metrics.RecordWatermark(tick.Symbol, float64(wm.Unix()))
		price, _ := tick.Price.Float64()
		a.metrics.RecordLastPrice(tick.Symbol, price)
	}

	for _, tf := range a.cfg.Timeframes {
		start := tf.BucketStart(tick.Time)
		end := start.Add(tf.Width)
		k := bucketKey{symbol: tick.Symbol, tf: tf.Name, start: start.Unix()}

		ok := a.index.Apply(k,
			func() bool { return end.After(a.closedThrough(tick.Symbol, tf.Name)) },
			func(st *bucketState, created bool) {
				a.applyTick(st, tick, tf, start, end, created, arrival)
			},
		)
		if ok {
			applied++
			continue
		}

		drop := models.LateDrop{
			Symbol:      tick.Symbol,
			Timeframe:   tf.Name,
			BucketStart: start,
			EventTime:   tick.Time,
			ArrivedAt:   arrivedAt,
			Price:       tick.Price,
		}
		drops = append(drops, drop)
		if a.metrics != nil {
			a.metrics.RecordLateDrop(tick.Symbol, tf.Name)
		}
		if a.drops != nil {
			a.drops.Record(drop)
		}
	}
	return applied, drops
}

// applyTick mutates one aggregate. Runs under the shard lock.
//
// Open belongs to the smallest event time seen (first arrival kept on equal
// event times); close belongs to the greatest event time (later arrival wins
// on ties), so replaying the same tick multiset in any arrival order yields
// the same finalized candle for distinct event times.
func (a *Aggregator) applyTick(st *bucketState, tick models.Tick, tf Timeframe, start, end time.Time, created bool, arrival uint64) {
	if created {
		st.candle = models.Candle{
			Symbol:      tick.Symbol,
			Timeframe:   tf.Name,
			BucketStart: start,
			BucketEnd:   end,
			Open:        tick.Price,
			High:        tick.Price,
			Low:         tick.Price,
			Close:       tick.Price,
			Volume:      tick.Volume,
			TickCount:   1,
		}
		st.openEvent = tick.Time
		st.closeEvent = tick.Time
		st.closeArrival = arrival
		return
	}

	c := &st.candle
	if tick.Price.GreaterThan(c.High) {
		c.High = tick.Price
	}
	if tick.Price.LessThan(c.Low) {
		c.Low = tick.Price
	}
	c.Volume = c.Volume.Add(tick.Volume)
	c.TickCount++

	if tick.Time.Before(st.openEvent) {
		st.openEvent = tick.Time
		c.Open = tick.Price
	}
	if tick.Time.After(st.closeEvent) ||
		(tick.Time.Equal(st.closeEvent) && arrival > st.closeArrival) {
		st.closeEvent = tick.Time
		st.closeArrival = arrival
		c.Close = tick.Price
	}
}

// DrainClosed finalizes every bucket whose end is at or behind its symbol's
// watermark, removes it from the index, and returns the closed candles
// ordered by (symbol, timeframe, bucketStart) for handoff to persistence.
// This is the only path by which a candle becomes CLOSED.
func (a *Aggregator) DrainClosed() []models.Candle {
	var out []models.Candle
	for _, k := range a.index.Keys() {
		tf, ok := a.timeframe(k.tf)
		if !ok {
			continue
		}
		end := time.Unix(k.start, 0).UTC().Add(tf.Width)
		wm := a.watermarks.WatermarkFor(k.symbol)
		if wm.Before(end) {
			continue
		}

		// Publish closure before removal so a racing ingest sees CLOSED.
		a.advanceFrontier(k.symbol, k.tf, end)
		st, found := a.index.Remove(k)
		if !found {
			continue
		}
		c := st.candle
		c.Closed = true
		out = append(out, c)
		if a.metrics != nil {
			a.metrics.RecordCandleClosed(k.symbol, k.tf)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		if out[i].Timeframe != out[j].Timeframe {
			return out[i].Timeframe < out[j].Timeframe
		}
		return out[i].BucketStart.Before(out[j].BucketStart)
	})
	return out
}

// OpenRange returns consistent snapshots of still-open candles for the
// symbol and timeframe intersecting [from, to), ordered by bucket start.
// A returned candle is a best-effort snapshot: it may still change before
// closing, and its Closed flag is false.
func (a *Aggregator) OpenRange(symbol string, tf string, from, to time.Time) []models.Candle {
	out := a.index.Collect(func(k bucketKey) bool {
		if k.symbol != symbol || k.tf != tf {
			return false
		}
		start := time.Unix(k.start, 0).UTC()
		return !start.Before(from) && start.Before(to)
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].BucketStart.Before(out[j].BucketStart)
	})
	return out
}

func (a *Aggregator) timeframe(name string) (Timeframe, bool) {
	for _, tf := range a.cfg.Timeframes {
		if tf.Name == name {
			return tf, true
		}
	}
	return Timeframe{}, false
}

// HasTimeframe reports whether name is in the configured set.
func (a *Aggregator) HasTimeframe(name string) bool {
	_, ok := a.timeframe(name)
	return ok
}
