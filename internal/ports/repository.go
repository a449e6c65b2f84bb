package ports

import (
	"context"
	"time"

	"perpBacktester/internal/domain"
)

// RunRecord is the persisted summary of a completed backtest run.
type RunRecord struct {
	ID             string    // Time-sortable run identifier, assigned on save
	Strategy       string    // Strategy name
	Symbol         string    // Instrument label (informational)
	Parameters     string    // Free-form parameter description
	CreatedAt      time.Time // When the run was saved
	InitialCapital float64
	FinalEquity    float64
	TotalFees      float64
	TotalFunding   float64
	Bars           int
	Stopped        bool
}

// RunRepository defines the interface for journaling backtest runs.
type RunRepository interface {
	// SaveRun stores the run summary with its trade log and equity curve and returns the run ID.
	SaveRun(ctx context.Context, run *RunRecord, trades []domain.Trade, equity []domain.EquityPoint) (string, error)
	// GetRun retrieves a run summary by ID. Returns ErrNotFound if it does not exist.
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	// ListRuns retrieves the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	// ListTrades retrieves the trade log of a run in close order.
	ListTrades(ctx context.Context, runID string) ([]domain.Trade, error)
	// ListEquity retrieves the equity curve of a run in time order.
	ListEquity(ctx context.Context, runID string) ([]domain.EquityPoint, error)
}
