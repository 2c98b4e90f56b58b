package usecase

import (
	"context"

	"CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
	"CandleFlow/internal/engine"
	applogger "CandleFlow/pkg/logger"
)

// TickIngestor normalizes raw ticks and applies them to the aggregation
// engine. It is the single entry point for every producer (feed, Kafka
// consumer, HTTP), so validation and late handling behave identically
// regardless of where a tick came from.
type TickIngestor struct {
	eng     *engine.Aggregator
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewTickIngestor(eng *engine.Aggregator, metrics domrepo.Metrics, l *applogger.Logger) *TickIngestor {
	return &TickIngestor{eng: eng, metrics: metrics, l: l}
}

// Ingest validates and applies one raw tick. A malformed tick returns a
// validation error; a late tick is not an error.
func (i *TickIngestor) Ingest(ctx context.Context, raw models.RawTick) error {
	tick, err := engine.Normalize(raw)
	if err != nil {
		i.metrics.RecordError("normalize")
		return err
	}

	_, drops := i.eng.Ingest(tick)
	if len(drops) > 0 && i.l != nil {
		i.l.Debug("late ticks dropped",
			applogger.String("symbol", tick.Symbol),
			applogger.Int("count", len(drops)),
		)
	}
	return nil
}

// IngestBatch applies ticks in order, stopping at the first malformed one.
func (i *TickIngestor) IngestBatch(ctx context.Context, raws []models.RawTick) (int, error) {
	for n, raw := range raws {
		if err := i.Ingest(ctx, raw); err != nil {
			return n, err
		}
	}
	return len(raws), nil
}

// Engine exposes the aggregator for status and query reads.
func (i *TickIngestor) Engine() *engine.Aggregator { return i.eng }
