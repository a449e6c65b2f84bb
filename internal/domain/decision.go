package domain

import "fmt"

// Action enumerates what a signal function can ask the engine to do on a bar.
type Action int

const (
	ActionHold Action = iota
	ActionEnterLong
	ActionEnterShort
	ActionExit
	ActionStop // Close everything and end the run early
)

// String returns the string representation of the Action.
func (a Action) String() string {
	switch a {
	case ActionHold:
		return "hold"
	case ActionEnterLong:
		return "enter_long"
	case ActionEnterShort:
		return "enter_short"
	case ActionExit:
		return "exit"
	case ActionStop:
		return "stop"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the value returned by a signal function for a single bar.
type Decision struct {
	Action     Action
	Confidence float64 // Sizing multiplier in [0, 1], used by entries only
	Leverage   float64 // Requested leverage; 0 means the run default
}

// Hold keeps the current state.
func Hold() Decision { return Decision{Action: ActionHold} }

// EnterLong opens (or flips into) a long position.
func EnterLong(confidence float64) Decision {
	return Decision{Action: ActionEnterLong, Confidence: confidence}
}

// EnterShort opens (or flips into) a short position.
func EnterShort(confidence float64) Decision {
	return Decision{Action: ActionEnterShort, Confidence: confidence}
}

// Exit closes the open position, if any.
func Exit() Decision { return Decision{Action: ActionExit} }

// Stop closes the open position and ends the run.
func Stop() Decision { return Decision{Action: ActionStop} }

// WithLeverage returns a copy of the decision requesting the given leverage.
func (d Decision) WithLeverage(leverage float64) Decision {
	d.Leverage = leverage
	return d
}

// IsEntry reports whether the decision requests a new position.
func (d Decision) IsEntry() bool {
	return d.Action == ActionEnterLong || d.Action == ActionEnterShort
}

// EntrySide returns the side requested by an entry decision.
func (d Decision) EntrySide() Side {
	if d.Action == ActionEnterShort {
		return SideShort
	}
	return SideLong
}
