package repository

import (
	"context"

	"CandleFlow/internal/domain/models"
)

// MarketStream is an upstream tick source. Read's channels close when the
// stream ends; callers drive Reconnect themselves.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.RawTick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher hands raw ticks to the broker when the kafka backend is active.
type Publisher interface {
	Publish(ctx context.Context, t *models.RawTick) error
	PublishBatch(ctx context.Context, ticks []*models.RawTick) error
	Close() error
}

// CheckpointStore persists engine snapshots so open aggregates survive a
// restart.
type CheckpointStore interface {
	Save(ctx context.Context, snapshot []byte) error
	Load(ctx context.Context) ([]byte, error)
	Close() error
}

type Metrics interface {
	RecordTickIngested(symbol string)
	RecordLateDrop(symbol, timeframe string)
	RecordCandleClosed(symbol, timeframe string)
	RecordCandlePersisted(symbol, timeframe string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordWatermark(symbol string, unixSeconds float64)
}
