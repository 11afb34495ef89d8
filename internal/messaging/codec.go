package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
)

// UpdateKind tells what an inbound message carries.
type UpdateKind uint8

const (
	// UpdateState is an authoritative alarm state.
	UpdateState UpdateKind = iota + 1
	// UpdateAccess is the controlling system's reply to an authentication attempt.
	UpdateAccess
)

// Update is a decoded inbound message.
type Update struct {
	// Kind selects which fields are meaningful.
	Kind UpdateKind
	// State is the authoritative state for UpdateState.
	State alarm.State
	// Countdown is the entry delay in seconds sent with a pending state; zero means the configured seed.
	Countdown int
	// Access is "GRANTED" or "DENIED" for UpdateAccess.
	Access string
	// UID is the badge the access reply refers to.
	UID string
	// Name is the badge owner's name from the access reply.
	Name string
}

// record is the JSON shape of inbound messages.
type record struct {
	// State is the alarm state label.
	State *string `json:"state"`
	// Countdown optionally overrides the entry delay.
	Countdown *int `json:"countdown"`
	// Access is the authentication verdict.
	Access string `json:"access"`
	// UID is the badge identifier the verdict refers to.
	UID string `json:"uid"`
	// Name is the badge owner.
	Name string `json:"name"`
}

// Decode parses an inbound payload. Three forms are accepted: a JSON record
// with a "state" or "access" field, a JSON string and a bare state label as
// retained by the controlling server. Nothing is partially applied: any
// problem returns ErrMalformedMessage or ErrUnknownStateLabel.
func Decode(payload []byte, maxSize int) (Update, error) {
	if maxSize > 0 && len(payload) > maxSize {
		return Update{}, fmt.Errorf("%w: %d bytes exceeds %d", alarm.ErrMalformedMessage, len(payload), maxSize)
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Update{}, fmt.Errorf("%w: empty payload", alarm.ErrMalformedMessage)
	}

	switch trimmed[0] {
	case '{':
		return decodeRecord(trimmed)
	case '"':
		var label string
		if err := json.Unmarshal(trimmed, &label); err != nil {
			return Update{}, fmt.Errorf("%w: %w", alarm.ErrMalformedMessage, err)
		}

		return decodeLabel(label)
	default:
		return decodeLabel(string(trimmed))
	}
}

// decodeRecord parses the JSON object form.
func decodeRecord(data []byte) (Update, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Update{}, fmt.Errorf("%w: %w", alarm.ErrMalformedMessage, err)
	}

	if rec.State == nil {
		access := strings.ToUpper(strings.TrimSpace(rec.Access))
		if access == "" {
			return Update{}, fmt.Errorf("%w: neither state nor access present", alarm.ErrMalformedMessage)
		}

		return Update{Kind: UpdateAccess, Access: access, UID: rec.UID, Name: rec.Name}, nil
	}

	update, err := decodeLabel(*rec.State)
	if err != nil {
		return Update{}, err
	}

	if rec.Countdown != nil {
		if *rec.Countdown < 0 {
			return Update{}, fmt.Errorf("%w: negative countdown %d", alarm.ErrMalformedMessage, *rec.Countdown)
		}

		update.Countdown = *rec.Countdown
	}

	return update, nil
}

// decodeLabel parses a state label.
func decodeLabel(label string) (Update, error) {
	if strings.IndexFunc(label, func(r rune) bool { return !unicode.IsPrint(r) && !unicode.IsSpace(r) }) >= 0 {
		return Update{}, fmt.Errorf("%w: non printable label", alarm.ErrMalformedMessage)
	}

	state, err := alarm.ParseState(label)
	if err != nil {
		return Update{}, err
	}

	return Update{Kind: UpdateState, State: state}, nil
}

// EncodeAttempt renders an authentication attempt for the RFID topic.
func EncodeAttempt(attempt alarm.Attempt) ([]byte, error) {
	data, err := json.Marshal(attempt)
	if err != nil {
		return nil, fmt.Errorf("encode attempt: %w", err)
	}

	return data, nil
}
