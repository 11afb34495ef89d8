package credential

import (
	"context"
	"time"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
	"github.com/oshokin/alarm-display/internal/logger"
)

const (
	// KeySubmit completes PIN entry.
	KeySubmit = '#'
	// KeyCancel aborts PIN entry.
	KeyCancel = '*'

	// DefaultPasswordTimeout is the inactivity period after which a partial PIN is dropped.
	DefaultPasswordTimeout = 10 * time.Second
)

// EntryState is the state of PIN entry.
type EntryState uint8

const (
	// EntryIdle means no digits are buffered.
	EntryIdle EntryState = iota
	// EntryAccumulating means digits are being collected.
	EntryAccumulating
)

// Accumulator builds a PIN from individual key presses.
type Accumulator struct {
	// timeout is the inactivity period that cancels entry.
	timeout time.Duration
	// lastKey is when the last key was accepted.
	lastKey time.Time
	// buffer holds the digits entered so far.
	buffer PendingPassword
	// state is the entry state.
	state EntryState
	// overflows counts digits dropped because the buffer was full.
	overflows int
}

// NewAccumulator creates an accumulator with the given inactivity timeout.
// A non-positive timeout falls back to DefaultPasswordTimeout.
func NewAccumulator(timeout time.Duration) *Accumulator {
	if timeout <= 0 {
		timeout = DefaultPasswordTimeout
	}

	return &Accumulator{timeout: timeout}
}

// State returns the current entry state.
func (a *Accumulator) State() EntryState {
	return a.state
}

// Len returns the number of buffered digits.
func (a *Accumulator) Len() int {
	return a.buffer.Len()
}

// Overflows returns how many digits were dropped because the buffer was full.
func (a *Accumulator) Overflows() int {
	return a.overflows
}

// Feed processes one key. It returns a PIN credential when the key submits a
// non-empty entry. Submit and cancel keys in Idle and non-keypad characters
// are ignored.
func (a *Accumulator) Feed(ctx context.Context, key rune, now time.Time) (alarm.Credential, bool) {
	a.Expire(ctx, now)

	switch {
	case key >= '0' && key <= '9':
		a.state = EntryAccumulating
		a.lastKey = now

		if err := a.buffer.Push(byte(key)); err != nil {
			a.overflows++
			logger.DebugKV(ctx, "Keypad digit dropped", "error", err, "length", a.buffer.Len())
		}

		return alarm.Credential{}, false
	case key == KeySubmit:
		if a.state != EntryAccumulating {
			return alarm.Credential{}, false
		}

		pin := alarm.Pin(a.buffer.String(), now)
		a.reset()

		return pin, true
	case key == KeyCancel:
		if a.state == EntryAccumulating {
			logger.Debug(ctx, "Keypad entry cancelled")
		}

		a.reset()

		return alarm.Credential{}, false
	default:
		return alarm.Credential{}, false
	}
}

// Expire cancels a partial entry that has been idle longer than the timeout.
// It reports whether an entry was cancelled.
func (a *Accumulator) Expire(ctx context.Context, now time.Time) bool {
	if a.state != EntryAccumulating || now.Sub(a.lastKey) < a.timeout {
		return false
	}

	logger.DebugKV(ctx, "Keypad entry timed out", "length", a.buffer.Len())
	a.reset()

	return true
}

// reset wipes the buffer and returns to Idle.
func (a *Accumulator) reset() {
	a.buffer.Clear()
	a.state = EntryIdle
	a.lastKey = time.Time{}
}
