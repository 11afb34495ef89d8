package alarm

import "time"

// CredentialKind tells which input produced a credential.
type CredentialKind uint8

const (
	// CredentialBadge is an RFID badge read.
	CredentialBadge CredentialKind = iota + 1
	// CredentialPin is a completed keypad PIN.
	CredentialPin
)

// String returns a short name of the kind.
func (k CredentialKind) String() string {
	switch k {
	case CredentialBadge:
		return "badge"
	case CredentialPin:
		return "pin"
	default:
		return "unknown"
	}
}

// Credential is a unit of identity presented by a user.
// Credentials are never persisted.
type Credential struct {
	// Kind selects which of UID or Code is meaningful.
	Kind CredentialKind
	// UID is the badge identifier for CredentialBadge.
	UID string
	// Code is the entered digit sequence for CredentialPin.
	Code string
	// At is when the credential was presented.
	At time.Time
}

// Badge builds a badge credential.
func Badge(uid string, at time.Time) Credential {
	return Credential{Kind: CredentialBadge, UID: uid, At: at}
}

// Pin builds a PIN credential.
func Pin(code string, at time.Time) Credential {
	return Credential{Kind: CredentialPin, Code: code, At: at}
}

// Attempt is the authentication request sent to the controlling system.
// Field names follow the payload the controlling server validates.
type Attempt struct {
	// UID is the badge identifier, empty for a PIN-only attempt.
	UID string `json:"uid"`
	// Code is the PIN, empty for a badge-only attempt.
	Code string `json:"code"`
	// Hostname identifies the display node so replies reach its own topic.
	Hostname string `json:"hostname"`
	// Action is the requested transition, e.g. "arm_away" or "disarm".
	Action string `json:"action"`
}
