package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"CandleFlow/internal/domain/models"
)

// millisThreshold separates unix-second from unix-millisecond timestamps.
const millisThreshold = 1e11

// Normalize validates a raw event and produces an immutable Tick. It is the
// sole admission gate: no invalid tick may reach aggregation. Pure function.
func Normalize(raw models.RawTick) (models.Tick, error) {
	if raw.Symbol == "" {
		return models.Tick{}, models.NewValidationError("symbol", "is required")
	}
	if raw.Timestamp <= 0 {
		return models.Tick{}, models.NewValidationError("t", "is missing or unparseable")
	}
	ts := raw.Timestamp
	if ts > millisThreshold { // ms
		ts = ts / 1000
	}

	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return models.Tick{}, models.NewValidationError("p", "is not a decimal number")
	}
	if !price.IsPositive() {
		return models.Tick{}, models.NewValidationError("p", "must be positive")
	}

	volume := decimal.Zero
	if raw.Volume != "" {
		volume, err = decimal.NewFromString(raw.Volume)
		if err != nil {
			return models.Tick{}, models.NewValidationError("v", "is not a decimal number")
		}
		if volume.IsNegative() {
			return models.Tick{}, models.NewValidationError("v", "must be non-negative")
		}
	}

	return models.Tick{
		Symbol: raw.Symbol,
		Time:   time.Unix(ts, 0).UTC(),
		Price:  price,
		Volume: volume,
	}, nil
}
