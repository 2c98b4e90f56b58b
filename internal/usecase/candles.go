package usecase

import (
	"context"
	"fmt"
	"time"

	"CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
	"CandleFlow/internal/engine"
	"CandleFlow/pkg/cache"
	"CandleFlow/pkg/util"
)

// CandlesUseCase answers range queries by merging durable closed candles
// with the engine's in-progress aggregates, so the newest partial candle is
// visible before its bucket closes.
type CandlesUseCase struct {
	store    domrepo.CandleStore
	eng      *engine.Aggregator
	cache    cache.Service
	cacheTTL time.Duration
}

func NewCandlesUseCase(store domrepo.CandleStore, eng *engine.Aggregator) *CandlesUseCase {
	return &CandlesUseCase{store: store, eng: eng}
}

// WithCache enables read caching of the closed-candle portion.
func (uc *CandlesUseCase) WithCache(c cache.Service, ttl time.Duration) *CandlesUseCase {
	uc.cache = c
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	uc.cacheTTL = ttl
	return uc
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string
	Timeframe string
	From      time.Time
	To        time.Time
	Count     int
	Candles   []models.Candle
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, models.NewValidationError("symbol", "required")
	}
	if !uc.eng.HasTimeframe(string(p.Timeframe)) {
		return nil, fmt.Errorf("timeframe %q: %w", p.Timeframe, models.ErrInvalidRange)
	}
	if p.From.After(p.To) {
		return nil, models.ErrInvalidRange
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}

	width, err := p.Timeframe.Duration()
	if err != nil {
		return nil, fmt.Errorf("timeframe %q: %w", p.Timeframe, models.ErrInvalidRange)
	}
	from, to := util.AlignFromTo(p.From, p.To, width)
	// After truncation to may equal from; treat [from, to) as the bucket-start
	// window and include the bucket containing the original "to".
	to = to.Add(width)

	closed, err := uc.closedRange(ctx, p.Symbol, p.Timeframe, from, to, width)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	open := uc.eng.OpenRange(p.Symbol, string(p.Timeframe), from, to)

	candles := mergeCandles(closed, open)
	if len(candles) > p.Limit {
		candles = candles[:p.Limit]
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      from,
		To:        to,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}

func (uc *CandlesUseCase) closedRange(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time, width time.Duration) ([]models.Candle, error) {
	if uc.cache == nil {
		return uc.store.QueryRange(ctx, symbol, tf, from, to)
	}

	// Only candles whose bucket ends at or before the watermark are
	// immutable. A cached result reaching past it would keep serving the
	// pre-close view after a bucket moves from the open half into storage,
	// so the bucket would vanish from the merge until the TTL expires.
	cacheTo, _ := util.AlignFromTo(uc.eng.Watermarks().WatermarkFor(symbol), to, width)
	if cacheTo.After(to) {
		cacheTo = to
	}
	if !cacheTo.After(from) {
		return uc.store.QueryRange(ctx, symbol, tf, from, to)
	}

	head, err := uc.cachedClosedRange(ctx, symbol, tf, from, cacheTo)
	if err != nil {
		return nil, err
	}
	if cacheTo.Before(to) {
		tail, err := uc.store.QueryRange(ctx, symbol, tf, cacheTo, to)
		if err != nil {
			return nil, err
		}
		head = append(head, tail...)
	}
	return head, nil
}

// cachedClosedRange serves [from, to) through the cache; the caller
// guarantees every bucket in the window is below the watermark.
func (uc *CandlesUseCase) cachedClosedRange(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	key := cache.GenerateKeyWithParams("candles", symbol, string(tf), from.Unix(), to.Unix())
	var cached []models.CandleItem
	if err := uc.cache.Get(ctx, key, &cached); err == nil {
		out := make([]models.Candle, 0, len(cached))
		for _, it := range cached {
			c, err := it.ToCandle()
			if err != nil {
				out = nil
				break
			}
			out = append(out, c)
		}
		if out != nil {
			return out, nil
		}
	}

	candles, err := uc.store.QueryRange(ctx, symbol, tf, from, to)
	if err != nil {
		return nil, err
	}
	items := make([]models.CandleItem, len(candles))
	for i, c := range candles {
		items[i] = models.NewCandleItem(c)
	}
	_ = uc.cache.Set(ctx, key, items, uc.cacheTTL)
	return candles, nil
}

// mergeCandles combines closed and open candles sorted by bucket start. Both
// inputs are already sorted. A bucket present in both (possible right after a
// restart replays persisted buckets) resolves to the closed candle.
func mergeCandles(closed, open []models.Candle) []models.Candle {
	out := make([]models.Candle, 0, len(closed)+len(open))
	i, j := 0, 0
	for i < len(closed) && j < len(open) {
		cs, os := closed[i].BucketStart, open[j].BucketStart
		switch {
		case cs.Before(os):
			out = append(out, closed[i])
			i++
		case os.Before(cs):
			out = append(out, open[j])
			j++
		default:
			out = append(out, closed[i])
			i++
			j++
		}
	}
	out = append(out, closed[i:]...)
	out = append(out, open[j:]...)
	return out
}
