package alarm

import (
	"fmt"
	"strings"
)

// State is the alarm state as reported by the controlling system.
type State uint8

const (
	// StateDisarmed means the alarm is off.
	StateDisarmed State = iota
	// StateArmedHome means the alarm is armed with occupants at home.
	StateArmedHome
	// StateArmedAway means the alarm is armed with nobody at home.
	StateArmedAway
	// StateArmedNight means the alarm is armed in night mode.
	StateArmedNight
	// StatePending means an entry delay is running before the alarm triggers.
	StatePending
	// StateTriggered means the alarm is going off.
	StateTriggered
)

// Wire labels of the alarm states.
const (
	LabelDisarmed   = "disarmed"
	LabelArmedHome  = "armed_home"
	LabelArmedAway  = "armed_away"
	LabelArmedNight = "armed_night"
	LabelPending    = "pending"
	LabelTriggered  = "triggered"
)

// String returns the wire label of the state.
func (s State) String() string {
	switch s {
	case StateDisarmed:
		return LabelDisarmed
	case StateArmedHome:
		return LabelArmedHome
	case StateArmedAway:
		return LabelArmedAway
	case StateArmedNight:
		return LabelArmedNight
	case StatePending:
		return LabelPending
	case StateTriggered:
		return LabelTriggered
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// IsArmed reports whether the alarm is guarding in any mode,
// including an entry delay or an active alarm.
func (s State) IsArmed() bool {
	return s != StateDisarmed
}

// ParseState converts a wire label into a State.
// Labels are matched case-insensitively after trimming whitespace.
// Unknown labels are rejected with ErrUnknownStateLabel.
func ParseState(label string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case LabelDisarmed:
		return StateDisarmed, nil
	case LabelArmedHome:
		return StateArmedHome, nil
	case LabelArmedAway:
		return StateArmedAway, nil
	case LabelArmedNight:
		return StateArmedNight, nil
	case LabelPending:
		return StatePending, nil
	case LabelTriggered:
		return StateTriggered, nil
	default:
		return StateDisarmed, fmt.Errorf("%w: %q", ErrUnknownStateLabel, label)
	}
}
