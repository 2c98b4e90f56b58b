package repository

import (
	"context"
	"time"

	"CandleFlow/internal/domain/models"
)

// CandleStore durably persists closed candles and answers range reads.
// Append must be idempotent per (symbol, timeframe, bucketStart): replaying
// the same closed candle is a no-op, never a duplicate.
type CandleStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Append(ctx context.Context, candles []models.Candle) error
	QueryRange(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]models.Candle, error)
	Health(ctx context.Context) error
	Close() error
}
