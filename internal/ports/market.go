package ports

import (
	"context"
	"time"

	"perpBacktester/internal/domain"
)

// BarSource provides historical price bars for a symbol.
// Implementations belong to the data-collection layer; the engine only consumes the result.
type BarSource interface {
	// FetchBars returns bars for symbol/interval in [start, end], ordered by time,
	// with funding rates attached to the bars during which they settled.
	FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.PriceBar, error)
}
