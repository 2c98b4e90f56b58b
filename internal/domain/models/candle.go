package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents an OHLCV aggregate for one (symbol, timeframe, bucket).
type Candle struct {
	Symbol      string
	Timeframe   string
	BucketStart time.Time
	BucketEnd   time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	TickCount   int64
	Closed      bool
}

// Key returns the storage key of the candle.
func (c Candle) Key() string {
	return fmt.Sprintf("%s:%s:%d", c.Symbol, c.Timeframe, c.BucketStart.Unix())
}

// CheckBounds reports whether low <= open <= high and low <= close <= high.
func (c Candle) CheckBounds() error {
	if c.Open.LessThan(c.Low) || c.Open.GreaterThan(c.High) {
		return fmt.Errorf("candle %s: open %s outside [%s, %s]", c.Key(), c.Open, c.Low, c.High)
	}
	if c.Close.LessThan(c.Low) || c.Close.GreaterThan(c.High) {
		return fmt.Errorf("candle %s: close %s outside [%s, %s]", c.Key(), c.Close, c.Low, c.High)
	}
	return nil
}

// LateDrop records a tick that arrived after its bucket had closed.
type LateDrop struct {
	Symbol      string
	Timeframe   string
	BucketStart time.Time
	EventTime   time.Time
	ArrivedAt   time.Time
	Price       decimal.Decimal
}
