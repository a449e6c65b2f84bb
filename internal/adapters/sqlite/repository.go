package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.RunRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

var _ ports.RunRepository = (*Repository)(nil)

// NewRepository opens (creating if needed) the run journal at cfg.DBPath.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite repository", ports.ErrConfigurationError)
	}
	ctx := context.Background()
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/backtests.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger, now: time.Now}
	if err := repo.initializeSchema(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Debug(ctx, "Run journal opened", ports.Fields{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		parameters TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		initial_capital REAL NOT NULL,
		final_equity REAL NOT NULL,
		total_fees REAL NOT NULL,
		total_funding REAL NOT NULL,
		bars INTEGER NOT NULL,
		stopped INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS run_trades (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		size_usd REAL NOT NULL,
		leverage REAL NOT NULL,
		gross_pnl REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		realized_pnl_pct REAL NOT NULL,
		fees_paid REAL NOT NULL,
		funding_paid REAL NOT NULL,
		exit_reason TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS run_equity (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		time TIMESTAMP NOT NULL,
		equity REAL NOT NULL,
		cash REAL NOT NULL,
		drawdown REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to execute schema initialization: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveRun stores a run atomically and fills run.ID and run.CreatedAt.
func (r *Repository) SaveRun(ctx context.Context, run *ports.RunRecord, trades []domain.Trade, equity []domain.EquityPoint) (string, error) {
	if run == nil || run.Strategy == "" {
		return "", fmt.Errorf("%w: run record needs a strategy name", ports.ErrInvalidInput)
	}
	created := r.now().UTC()
	id, err := newRunID(created)
	if err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to begin transaction: %v", ports.ErrDBConnection, err)
	}
	defer tx.Rollback()

	const insertRun = `
	INSERT INTO runs (id, strategy, symbol, parameters, created_at, initial_capital,
	                  final_equity, total_fees, total_funding, bars, stopped)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertRun,
		id, run.Strategy, run.Symbol, run.Parameters, created, run.InitialCapital,
		run.FinalEquity, run.TotalFees, run.TotalFunding, run.Bars, run.Stopped); err != nil {
		return "", fmt.Errorf("%w: failed to insert run: %v", ports.ErrQueryFailed, err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO run_trades (run_id, seq, entry_time, exit_time, side, entry_price, exit_price,
	                        size_usd, leverage, gross_pnl, realized_pnl, realized_pnl_pct,
	                        fees_paid, funding_paid, exit_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("%w: failed to prepare trade insert: %v", ports.ErrQueryFailed, err)
	}
	defer tradeStmt.Close()
	for i, t := range trades {
		if _, err := tradeStmt.ExecContext(ctx, id, i,
			t.EntryTime.UTC(), t.ExitTime.UTC(), string(t.Side), t.EntryPrice, t.ExitPrice,
			t.SizeUSD, t.Leverage, t.GrossPnL, t.RealizedPnL, t.RealizedPnLPct,
			t.FeesPaid, t.FundingPaid, string(t.ExitReason)); err != nil {
			return "", fmt.Errorf("%w: failed to insert trade %d: %v", ports.ErrQueryFailed, i, err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO run_equity (run_id, seq, time, equity, cash, drawdown) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("%w: failed to prepare equity insert: %v", ports.ErrQueryFailed, err)
	}
	defer equityStmt.Close()
	for i, pt := range equity {
		if _, err := equityStmt.ExecContext(ctx, id, i, pt.Time.UTC(), pt.Equity, pt.Cash, pt.Drawdown); err != nil {
			return "", fmt.Errorf("%w: failed to insert equity point %d: %v", ports.ErrQueryFailed, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: failed to commit run: %v", ports.ErrQueryFailed, err)
	}

	run.ID = id
	run.CreatedAt = created
	r.logger.Info(ctx, "Run saved", ports.Fields{
		"run_id":   id,
		"strategy": run.Strategy,
		"trades":   len(trades),
		"points":   len(equity),
	})
	return id, nil
}

const runColumns = `id, strategy, symbol, parameters, created_at, initial_capital,
	       final_equity, total_fees, total_funding, bars, stopped`

// GetRun retrieves a run summary by ID.
func (r *Repository) GetRun(ctx context.Context, id string) (*ports.RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: run %s", ports.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: failed to query run %s: %v", ports.ErrQueryFailed, id, err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*ports.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list runs: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	runs := make([]*ports.RunRecord, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run during ListRuns: %w", err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// ListTrades retrieves a run's trade log in close order.
func (r *Repository) ListTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	const query = `
	SELECT entry_time, exit_time, side, entry_price, exit_price, size_usd, leverage,
	       gross_pnl, realized_pnl, realized_pnl_pct, fees_paid, funding_paid, exit_reason
	FROM run_trades WHERE run_id = ? ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query trades for run %s: %v", ports.ErrQueryFailed, runID, err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		var t domain.Trade
		var side, reason string
		if err := rows.Scan(&t.EntryTime, &t.ExitTime, &side, &t.EntryPrice, &t.ExitPrice, &t.SizeUSD,
			&t.Leverage, &t.GrossPnL, &t.RealizedPnL, &t.RealizedPnLPct, &t.FeesPaid, &t.FundingPaid, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade during ListTrades: %w", err)
		}
		t.Side = domain.Side(side)
		t.ExitReason = domain.ExitReason(reason)
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// ListEquity retrieves a run's equity curve in time order.
func (r *Repository) ListEquity(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT time, equity, cash, drawdown FROM run_equity WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query equity for run %s: %v", ports.ErrQueryFailed, runID, err)
	}
	defer rows.Close()

	points := make([]domain.EquityPoint, 0)
	for rows.Next() {
		var pt domain.EquityPoint
		if err := rows.Scan(&pt.Time, &pt.Equity, &pt.Cash, &pt.Drawdown); err != nil {
			return nil, fmt.Errorf("failed to scan equity point during ListEquity: %w", err)
		}
		points = append(points, pt)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity rows: %w", err)
	}
	return points, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*ports.RunRecord, error) {
	run := &ports.RunRecord{}
	err := s.Scan(&run.ID, &run.Strategy, &run.Symbol, &run.Parameters, &run.CreatedAt,
		&run.InitialCapital, &run.FinalEquity, &run.TotalFees, &run.TotalFunding, &run.Bars, &run.Stopped)
	if err != nil {
		return nil, err
	}
	return run, nil
}
