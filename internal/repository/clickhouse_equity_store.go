package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalGuard/internal/domain/models"
	applogger "SignalGuard/pkg/logger"
)

const equityTable = "risk_equity_samples"

// EquitySchema creates the table CHEquityStore writes to.
var EquitySchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + equityTable + ` (
        ts            DateTime64(3, 'UTC'),
        equity        Float64,
        peak_equity   Float64,
        drawdown_pct  Float64,
        daily_pnl_pct Float64,
        level         LowCardinality(String)
    ) ENGINE = MergeTree
    PARTITION BY toYYYYMM(ts)
    ORDER BY ts
    TTL toDateTime(ts) + INTERVAL 180 DAY`,
}

// CHEquityStore is a SampleSink backed by ClickHouse.
type CHEquityStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHEquityStore(db *sql.DB, l *applogger.Logger) *CHEquityStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHEquityStore{db: db, l: l}
}

func (s *CHEquityStore) WriteSample(ctx context.Context, e models.EquitySample) error {
	const q = `INSERT INTO ` + equityTable + ` (ts, equity, peak_equity, drawdown_pct, daily_pnl_pct, level) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.Timestamp.UTC(), e.Equity, e.PeakEquity, e.DrawdownPct, e.DailyPnLPct, e.Level.String()); err != nil {
		s.l.Error("clickhouse write_sample error", applogger.Error(err))
		return fmt.Errorf("write equity sample: %w", err)
	}
	return nil
}

// Since returns samples recorded at or after from, oldest first, at most limit rows.
func (s *CHEquityStore) Since(ctx context.Context, from time.Time, limit int) ([]models.EquitySample, error) {
	const q = `
        SELECT ts, equity, peak_equity, drawdown_pct, daily_pnl_pct, level
        FROM ` + equityTable + `
        WHERE ts >= ?
        ORDER BY ts ASC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query equity samples: %w", err)
	}
	defer rows.Close()

	out := make([]models.EquitySample, 0, limit)
	for rows.Next() {
		var (
			e     models.EquitySample
			level string
		)
		if err := rows.Scan(&e.Timestamp, &e.Equity, &e.PeakEquity, &e.DrawdownPct, &e.DailyPnLPct, &level); err != nil {
			return nil, fmt.Errorf("scan equity sample: %w", err)
		}
		if e.Level, err = models.ParseRiskLevel(level); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
