package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MarketCore/internal/domain/models"
	domrepo "MarketCore/internal/domain/repository"
	pkgch "MarketCore/pkg/clickhouse"
	applogger "MarketCore/pkg/logger"
)

// DefaultBarTable holds 1-minute OHLCV rows; coarser intervals are aggregated on read.
const DefaultBarTable = "marketcore.bars_1m"

// BarTableSchema creates DefaultBarTable.
const BarTableSchema = `
CREATE TABLE IF NOT EXISTS marketcore.bars_1m (
    bucket DateTime('UTC'),
    symbol LowCardinality(String),
    open   Float64,
    high   Float64,
    low    Float64,
    close  Float64,
    vol    Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, bucket)`

// CHBarStore implements BarSource backed by ClickHouse.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.BarSource = (*CHBarStore)(nil)

func NewCHBarStore(ch *pkgch.Client) *CHBarStore {
	return NewCHBarStoreDB(ch.DB(), DefaultBarTable)
}

// NewCHBarStoreDB reads from table through db.
func NewCHBarStoreDB(db *sql.DB, table string) *CHBarStore {
	if table == "" {
		table = DefaultBarTable
	}
	return &CHBarStore{db: db, table: table, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

const rangeQuery = `
        SELECT toStartOfInterval(bucket, INTERVAL %d SECOND) AS b,
               argMin(open, bucket), max(high), min(low), argMax(close, bucket), sum(vol)
        FROM %s
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        GROUP BY b
        ORDER BY b ASC
    `

const latestQuery = `
        SELECT toStartOfInterval(bucket, INTERVAL %d SECOND) AS b,
               argMin(open, bucket), max(high), min(low), argMax(close, bucket), sum(vol)
        FROM %s
        WHERE symbol = ?
        GROUP BY b
        ORDER BY b DESC
        LIMIT ?
    `

func (s *CHBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time, iv domrepo.Interval) ([]models.Bar, error) {
	if !domrepo.IsValidInterval(iv) {
		return nil, fmt.Errorf("unsupported interval: %s", iv)
	}
	start := time.Now()
	q := fmt.Sprintf(rangeQuery, seconds(iv), s.table)
	bars, err := s.query(ctx, "get_bars", q, iv, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	s.l.Info("clickhouse get_bars ok",
		applogger.String("symbol", symbol),
		applogger.String("interval", iv.String()),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return bars, nil
}

func (s *CHBarStore) GetLatestNBars(ctx context.Context, symbol string, n int, iv domrepo.Interval) ([]models.Bar, error) {
	if !domrepo.IsValidInterval(iv) {
		return nil, fmt.Errorf("unsupported interval: %s", iv)
	}
	if n <= 0 {
		return nil, nil
	}
	start := time.Now()
	q := fmt.Sprintf(latestQuery, seconds(iv), s.table)
	bars, err := s.query(ctx, "latest_bars", q, iv, symbol, n)
	if err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	s.l.Info("clickhouse latest_bars ok",
		applogger.String("symbol", symbol),
		applogger.String("interval", iv.String()),
		applogger.Int("limit", n),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return bars, nil
}

func (s *CHBarStore) query(ctx context.Context, op, q string, iv domrepo.Interval, args ...any) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error",
			applogger.String("table", s.table),
			applogger.String("interval", iv.String()),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 512)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func seconds(iv domrepo.Interval) int64 {
	return int64(iv.Duration() / time.Second)
}
