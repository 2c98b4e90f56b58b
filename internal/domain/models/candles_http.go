package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// IngestTickRequest is the HTTP ingest payload. Price and volume are decimal
// strings; timestamp is unix seconds or milliseconds.
type IngestTickRequest struct {
	Symbol    string `json:"symbol" validate:"required"`
	Timestamp int64  `json:"t" validate:"required"`
	Price     string `json:"p" validate:"required"`
	Volume    string `json:"v"`
}

// IngestBatchRequest ingests multiple ticks in one call.
type IngestBatchRequest struct {
	Ticks []IngestTickRequest `json:"ticks" validate:"required,min=1,dive"`
}

// CandlesRequest queries a candle range.
type CandlesRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	TF     string `query:"tf" default:"1m"`
	From   string `query:"from"`
	To     string `query:"to"`
}

// CandleItem is one element of a range response.
type CandleItem struct {
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"tf"`
	BucketStart int64  `json:"bucketStart"`
	BucketEnd   int64  `json:"bucketEnd"`
	Open        string `json:"open"`
	High        string `json:"high"`
	Low         string `json:"low"`
	Close       string `json:"close"`
	Volume      string `json:"volume"`
	TickCount   int64  `json:"tickCount"`
	Closed      bool   `json:"closed"`
}

// ToCandle converts the wire form back into a domain candle.
func (it CandleItem) ToCandle() (Candle, error) {
	open, err := decimal.NewFromString(it.Open)
	if err != nil {
		return Candle{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := decimal.NewFromString(it.High)
	if err != nil {
		return Candle{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := decimal.NewFromString(it.Low)
	if err != nil {
		return Candle{}, fmt.Errorf("parse low: %w", err)
	}
	cls, err := decimal.NewFromString(it.Close)
	if err != nil {
		return Candle{}, fmt.Errorf("parse close: %w", err)
	}
	vol, err := decimal.NewFromString(it.Volume)
	if err != nil {
		return Candle{}, fmt.Errorf("parse volume: %w", err)
	}
	return Candle{
		Symbol:      it.Symbol,
		Timeframe:   it.Timeframe,
		BucketStart: time.Unix(it.BucketStart, 0).UTC(),
		BucketEnd:   time.Unix(it.BucketEnd, 0).UTC(),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       cls,
		Volume:      vol,
		TickCount:   it.TickCount,
		Closed:      it.Closed,
	}, nil
}

// NewCandleItem converts a domain candle into its wire form.
func NewCandleItem(c Candle) CandleItem {
	return CandleItem{
		Symbol:      c.Symbol,
		Timeframe:   c.Timeframe,
		BucketStart: c.BucketStart.Unix(),
		BucketEnd:   c.BucketEnd.Unix(),
		Open:        c.Open.String(),
		High:        c.High.String(),
		Low:         c.Low.String(),
		Close:       c.Close.String(),
		Volume:      c.Volume.String(),
		TickCount:   c.TickCount,
		Closed:      c.Closed,
	}
}
