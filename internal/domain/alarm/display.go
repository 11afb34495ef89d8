package alarm

// DisplayReason tells why the display is redrawn.
type DisplayReason uint8

const (
	// ReasonStateChanged is an immediate redraw after a state change.
	ReasonStateChanged DisplayReason = iota + 1
	// ReasonCadence is the periodic refresh catching missed triggers.
	ReasonCadence
	// ReasonCountdownTick is the per-second redraw during an entry delay.
	ReasonCountdownTick
)

// String returns the reason name.
func (r DisplayReason) String() string {
	switch r {
	case ReasonStateChanged:
		return "state_changed"
	case ReasonCadence:
		return "cadence"
	case ReasonCountdownTick:
		return "countdown_tick"
	default:
		return "unknown"
	}
}

// DisplayRequest asks the renderer to redraw. Each request supersedes the previous one.
type DisplayRequest struct {
	// Reason is the trigger that won the coalescing for this pass.
	Reason DisplayReason
	// State is the alarm state to show.
	State State
	// Remaining is the countdown value in seconds; zero when no countdown runs.
	Remaining int
	// Connected tells whether the broker link is up, so the display can flag stale data.
	Connected bool
}
