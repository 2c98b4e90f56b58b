package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
	pkgch "CandleFlow/pkg/clickhouse"
	applogger "CandleFlow/pkg/logger"
)

// ClickHouseCandleStore persists closed candles in a ReplacingMergeTree keyed
// by (symbol, timeframe, bucket_start). Re-appending the same bucket collapses
// to one row at merge time, which makes Append safe to replay.
type ClickHouseCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewClickHouseCandleStore(ch *pkgch.Client, table string) *ClickHouseCandleStore {
	if table == "" {
		table = "candles"
	}
	return &ClickHouseCandleStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *ClickHouseCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHouseCandleStore) Init(ctx context.Context) error {
	ddl := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            symbol       String,
            timeframe    String,
            bucket_start DateTime64(3, 'UTC'),
            bucket_end   DateTime64(3, 'UTC'),
            open         Decimal(38, 18),
            high         Decimal(38, 18),
            low          Decimal(38, 18),
            close        Decimal(38, 18),
            volume       Decimal(38, 18),
            tick_count   UInt64,
            inserted_at  DateTime64(3, 'UTC') DEFAULT now64(3)
        ) ENGINE = ReplacingMergeTree(inserted_at)
        ORDER BY (symbol, timeframe, bucket_start)
    `, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init candle table: %w", err)
	}
	return nil
}

func (s *ClickHouseCandleStore) Append(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	start := time.Now()

	// Chunked multi-row VALUES to reduce round-trips.
	const chunkSize = 2000
	for lo := 0; lo < len(candles); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(candles) {
			hi = len(candles)
		}

		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*10)
		for _, c := range candles[lo:hi] {
			if c.Symbol == "" || c.Timeframe == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				c.Symbol,
				c.Timeframe,
				c.BucketStart.UTC(),
				c.BucketEnd.UTC(),
				c.Open.String(),
				c.High.String(),
				c.Low.String(),
				c.Close.String(),
				c.Volume.String(),
				uint64(c.TickCount),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (symbol, timeframe, bucket_start, bucket_end, open, high, low, close, volume, tick_count) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse append error",
					applogger.Int("rows", hi-lo),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("append candles: %w", models.ErrStorageUnavailable)
		}
	}

	if s.l != nil {
		s.l.Debug("clickhouse append ok",
			applogger.Int("rows", len(candles)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *ClickHouseCandleStore) QueryRange(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	start := time.Now()
	// FINAL collapses replaced rows so replays never surface duplicates.
	q := fmt.Sprintf(`
        SELECT symbol, timeframe, bucket_start, bucket_end,
               toString(open), toString(high), toString(low), toString(close), toString(volume),
               tick_count
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ? AND bucket_start >= ? AND bucket_start < ?
        ORDER BY bucket_start ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), from.UTC(), to.UTC())
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse query_range error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query candles: %w", models.ErrStorageUnavailable)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse query_range ok",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func scanCandle(rows *sql.Rows) (models.Candle, error) {
	var (
		c                     models.Candle
		open, high, low, cls  string
		volume                string
		ticks                 uint64
	)
	if err := rows.Scan(&c.Symbol, &c.Timeframe, &c.BucketStart, &c.BucketEnd,
		&open, &high, &low, &cls, &volume, &ticks); err != nil {
		return c, fmt.Errorf("scan candle: %w", err)
	}
	var err error
	if c.Open, err = decimal.NewFromString(open); err != nil {
		return c, fmt.Errorf("parse open: %w", err)
	}
	if c.High, err = decimal.NewFromString(high); err != nil {
		return c, fmt.Errorf("parse high: %w", err)
	}
	if c.Low, err = decimal.NewFromString(low); err != nil {
		return c, fmt.Errorf("parse low: %w", err)
	}
	if c.Close, err = decimal.NewFromString(cls); err != nil {
		return c, fmt.Errorf("parse close: %w", err)
	}
	if c.Volume, err = decimal.NewFromString(volume); err != nil {
		return c, fmt.Errorf("parse volume: %w", err)
	}
	c.TickCount = int64(ticks)
	c.Closed = true
	return c, nil
}

func (s *ClickHouseCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseCandleStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}
