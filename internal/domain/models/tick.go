package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTick is a price event as received from a producer (feed, Kafka, HTTP).
// Price and Volume arrive as decimal strings so no precision is lost on the
// wire; Timestamp is unix seconds or milliseconds (normalizer decides).
type RawTick struct {
	Symbol    string `json:"symbol"`
	Timestamp int64  `json:"t"`
	Price     string `json:"p"`
	Volume    string `json:"v"`
}

// Tick is a validated, normalized price event. Immutable after normalization.
type Tick struct {
	Symbol string
	Time   time.Time // event time, source-supplied
	Price  decimal.Decimal
	Volume decimal.Decimal
}
