package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"SignalGuard/internal/domain/models"
	domrepo "SignalGuard/internal/domain/repository"
	applogger "SignalGuard/pkg/logger"
)

const signalTable = "sealed_signals"

// SignalSchema creates the table CHSignalStore writes to. ReplacingMergeTree collapses
// re-inserts of the same id.
var SignalSchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + signalTable + ` (
        id             String,
        symbol         LowCardinality(String),
        action         LowCardinality(String),
        entry_price    Float64,
        stop_loss      Float64,
        take_profit    Float64,
        confidence     Float64,
        ts             DateTime64(9, 'UTC'),
        hash_version   UInt16,
        integrity_hash FixedString(64)
    ) ENGINE = ReplacingMergeTree
    ORDER BY id`,
}

// CHSignalStore persists sealed signals in ClickHouse. Values round-trip exactly so a stored
// signal re-verifies against its hash.
type CHSignalStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSignalStore(db *sql.DB, l *applogger.Logger) *CHSignalStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSignalStore{db: db, l: l}
}

const signalColumns = `id, symbol, action, entry_price, stop_loss, take_profit, confidence, ts, hash_version, integrity_hash`

func (s *CHSignalStore) Save(ctx context.Context, sig models.Signal) error {
	q := `INSERT INTO ` + signalTable + ` (` + signalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		sig.ID,
		sig.Symbol,
		string(sig.Action),
		sig.EntryPrice,
		sig.StopLoss,
		sig.TakeProfit,
		sig.Confidence,
		sig.Timestamp.UTC(),
		uint16(sig.HashVersion),
		sig.IntegrityHash,
	)
	if err != nil {
		s.l.Error("clickhouse save_signal error", applogger.String("id", sig.ID), applogger.Error(err))
		return fmt.Errorf("save signal: %w", err)
	}
	return nil
}

func (s *CHSignalStore) Get(ctx context.Context, id string) (models.Signal, error) {
	q := `SELECT ` + signalColumns + ` FROM ` + signalTable + ` FINAL WHERE id = ? LIMIT 1`
	sig, err := scanSignal(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Signal{}, domrepo.ErrNotFound
	}
	if err != nil {
		return models.Signal{}, fmt.Errorf("get signal %s: %w", id, err)
	}
	return sig, nil
}

func (s *CHSignalStore) Recent(ctx context.Context, limit int) ([]models.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + signalColumns + ` FROM ` + signalTable + ` FINAL ORDER BY ts DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent signals: %w", err)
	}
	defer rows.Close()

	out := make([]models.Signal, 0, limit)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(r rowScanner) (models.Signal, error) {
	var (
		sig     models.Signal
		action  string
		version uint16
	)
	if err := r.Scan(&sig.ID, &sig.Symbol, &action, &sig.EntryPrice, &sig.StopLoss, &sig.TakeProfit,
		&sig.Confidence, &sig.Timestamp, &version, &sig.IntegrityHash); err != nil {
		return models.Signal{}, err
	}
	sig.Action = models.Action(action)
	sig.HashVersion = int(version)
	sig.Timestamp = sig.Timestamp.UTC()
	return sig, nil
}
