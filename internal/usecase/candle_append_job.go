package usecase

import (
	"context"
	"fmt"

	"CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
	"CandleFlow/pkg/queue"
)

// CandleAppendMessageType identifies queued append-retry payloads.
const CandleAppendMessageType = "candle_append"

// CandleAppendJob replays failed candle appends from the retry queue.
// Storage appends are idempotent per bucket, so replaying a batch that
// partially landed is safe.
type CandleAppendJob struct {
	store   domrepo.CandleStore
	metrics domrepo.Metrics
}

func NewCandleAppendJob(store domrepo.CandleStore, metrics domrepo.Metrics) *CandleAppendJob {
	return &CandleAppendJob{store: store, metrics: metrics}
}

func (j *CandleAppendJob) Name() string { return "candle_append_retry" }
func (j *CandleAppendJob) Type() string { return CandleAppendMessageType }

func (j *CandleAppendJob) Handle(ctx context.Context, payload interface{}) error {
	items, err := queue.ParsePayload[[]models.CandleItem](payload)
	if err != nil {
		return fmt.Errorf("parse candle batch: %w", err)
	}

	candles := make([]models.Candle, 0, len(*items))
	for _, it := range *items {
		c, err := it.ToCandle()
		if err != nil {
			return fmt.Errorf("decode candle %s:%s: %w", it.Symbol, it.Timeframe, err)
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil
	}

	if err := j.store.Append(ctx, candles); err != nil {
		return err // queue retries with its own backoff
	}
	for _, c := range candles {
		j.metrics.RecordCandlePersisted(c.Symbol, c.Timeframe)
	}
	return nil
}

var _ queue.Job = (*CandleAppendJob)(nil)
