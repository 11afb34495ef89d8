package credential

import "time"

// BadgeReader is an RFID reader polled for the identifier of a presented badge.
type BadgeReader interface {
	// PollUID returns a pending badge identifier, or false when none is queued.
	// It must not block.
	PollUID() (string, bool)
}

// Keypad is a key matrix polled for the next pressed key.
type Keypad interface {
	// PollKey returns a pending key, or false when none is queued.
	// It must not block.
	PollKey() (rune, bool)
}

// EventKind tells which device produced an input event.
type EventKind uint8

const (
	// EventBadge is a badge read.
	EventBadge EventKind = iota + 1
	// EventKey is a single key press.
	EventKey
)

// Event is one raw input read from a device.
type Event struct {
	// Kind selects which of UID or Key is set.
	Kind EventKind
	// UID is the badge identifier for EventBadge.
	UID string
	// Key is the pressed key for EventKey.
	Key rune
	// At is the poll time.
	At time.Time
}

// Adapter polls the badge reader and the keypad.
type Adapter struct {
	// badges is the RFID reader, may be nil when the node has none.
	badges BadgeReader
	// keys is the key matrix, may be nil when the node has none.
	keys Keypad
}

// NewAdapter creates an adapter over the provided devices. Either may be nil.
func NewAdapter(badges BadgeReader, keys Keypad) *Adapter {
	return &Adapter{
		badges: badges,
		keys:   keys,
	}
}

// Poll returns at most one input event. Badge reads win over key presses
// because a badge is a complete credential while keys are incremental;
// a pending key stays queued in the keypad for the next poll.
func (a *Adapter) Poll(now time.Time) (Event, bool) {
	if a.badges != nil {
		if uid, ok := a.badges.PollUID(); ok && uid != "" {
			return Event{Kind: EventBadge, UID: uid, At: now}, true
		}
	}

	if a.keys != nil {
		if key, ok := a.keys.PollKey(); ok {
			return Event{Kind: EventKey, Key: key, At: now}, true
		}
	}

	return Event{}, false
}
