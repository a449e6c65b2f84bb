package domain

// Side represents the direction of a leveraged position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Direction returns +1 for longs and -1 for shorts.
func (s Side) Direction() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideShort {
		return SideLong
	}
	return SideShort
}

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// ExitReason indicates why a position was closed.
type ExitReason string

const (
	ExitReasonSignal      ExitReason = "signal"      // Strategy requested the exit (or a flip)
	ExitReasonLiquidation ExitReason = "liquidation" // Price crossed the liquidation price
	ExitReasonForcedEnd   ExitReason = "forced-end"  // Data exhausted or the strategy stopped the run
)

// ExecutionType selects which fee schedule applies to simulated fills.
type ExecutionType string

const (
	ExecutionTaker ExecutionType = "taker"
	ExecutionMaker ExecutionType = "maker"
)
