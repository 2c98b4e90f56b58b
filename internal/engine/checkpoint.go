package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"CandleFlow/internal/domain/models"
)

// Checkpoint is a serializable snapshot of all open aggregates plus the
// watermark and closed-frontier state, sufficient to resume aggregation
// after a restart without replaying raw ticks. Decimal fields travel as
// strings.
type Checkpoint struct {
	TakenAt   int64              `json:"takenAt"`
	MaxEvents map[string]int64   `json:"maxEvents"` // symbol -> unix seconds
	Frontiers []FrontierSnapshot `json:"frontiers"`
	Buckets   []BucketSnapshot   `json:"buckets"`
}

type FrontierSnapshot struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"tf"`
	ClosedEnd int64  `json:"closedEnd"`
}

type BucketSnapshot struct {
	Symbol       string `json:"symbol"`
	Timeframe    string `json:"tf"`
	BucketStart  int64  `json:"bucketStart"`
	Open         string `json:"open"`
	High         string `json:"high"`
	Low          string `json:"low"`
	Close        string `json:"close"`
	Volume       string `json:"volume"`
	TickCount    int64  `json:"tickCount"`
	OpenEvent    int64  `json:"openEvent"`
	CloseEvent   int64  `json:"closeEvent"`
	CloseArrival uint64 `json:"closeArrival"`
}

// Snapshot captures the current open state.
func (a *Aggregator) Snapshot() Checkpoint {
	cp := Checkpoint{
		TakenAt:   time.Now().Unix(),
		MaxEvents: make(map[string]int64),
	}
	for symbol, t := range a.watermarks.MaxEventTimes() {
		cp.MaxEvents[symbol] = t.Unix()
	}

	a.frontierMu.RLock()
	for k, end := range a.frontier {
		cp.Frontiers = append(cp.Frontiers, FrontierSnapshot{
			Symbol:    k.symbol,
			Timeframe: k.tf,
			ClosedEnd: end.Unix(),
		})
	}
	a.frontierMu.RUnlock()

	for _, st := range a.index.Snapshot() {
		c := st.candle
		cp.Buckets = append(cp.Buckets, BucketSnapshot{
			Symbol:       c.Symbol,
			Timeframe:    c.Timeframe,
			BucketStart:  c.BucketStart.Unix(),
			Open:         c.Open.String(),
			High:         c.High.String(),
			Low:          c.Low.String(),
			Close:        c.Close.String(),
			Volume:       c.Volume.String(),
			TickCount:    c.TickCount,
			OpenEvent:    st.openEvent.Unix(),
			CloseEvent:   st.closeEvent.Unix(),
			CloseArrival: st.closeArrival,
		})
	}
	return cp
}

// Restore seeds the engine from a checkpoint. Intended for startup, before
// live ingestion begins; buckets for unconfigured timeframes are skipped.
func (a *Aggregator) Restore(cp Checkpoint) error {
	for symbol, unix := range cp.MaxEvents {
		a.watermarks.RestoreMaxEvent(symbol, time.Unix(unix, 0).UTC())
	}
	for _, f := range cp.Frontiers {
		a.advanceFrontier(f.Symbol, f.Timeframe, time.Unix(f.ClosedEnd, 0).UTC())
	}

	for _, b := range cp.Buckets {
		tf, ok := a.timeframe(b.Timeframe)
		if !ok {
			continue
		}
		open, err := decimal.NewFromString(b.Open)
		if err != nil {
			return err
		}
		high, err := decimal.NewFromString(b.High)
		if err != nil {
			return err
		}
		low, err := decimal.NewFromString(b.Low)
		if err != nil {
			return err
		}
		cls, err := decimal.NewFromString(b.Close)
		if err != nil {
			return err
		}
		vol, err := decimal.NewFromString(b.Volume)
		if err != nil {
			return err
		}

		start := time.Unix(b.BucketStart, 0).UTC()
		k := bucketKey{symbol: b.Symbol, tf: b.Timeframe, start: b.BucketStart}
		snap := b
		a.index.Apply(k, nil, func(st *bucketState, created bool) {
			if !created {
				return // live state wins over a stale checkpoint
			}
			st.candle = models.Candle{
				Symbol:      snap.Symbol,
				Timeframe:   snap.Timeframe,
				BucketStart: start,
				BucketEnd:   start.Add(tf.Width),
				Open:        open,
				High:        high,
				Low:         low,
				Close:       cls,
				Volume:      vol,
				TickCount:   snap.TickCount,
			}
			st.openEvent = time.Unix(snap.OpenEvent, 0).UTC()
			st.closeEvent = time.Unix(snap.CloseEvent, 0).UTC()
			st.closeArrival = snap.CloseArrival
		})

		for {
			cur := a.arrivalSeq.Load()
			if b.CloseArrival <= cur || a.arrivalSeq.CompareAndSwap(cur, b.CloseArrival) {
				break
			}
		}
	}
	return nil
}
