package credential

import (
	"time"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
)

// DefaultSuppressionWindow is how long a repeated read of the same badge is ignored.
const DefaultSuppressionWindow = 3 * time.Second

// LastScan records the most recently accepted badge read.
type LastScan struct {
	// UID is the accepted badge identifier.
	UID string
	// At is when the badge was accepted.
	At time.Time
}

// Gate drops repeated reads of the same badge within the suppression window.
// It is a rate limiter, not a validator: rejected reads are discarded silently.
type Gate struct {
	// window is the suppression window.
	window time.Duration
	// last is the most recently accepted scan, nil before the first one.
	last *LastScan
}

// NewGate creates a gate with the given suppression window.
// A non-positive window falls back to DefaultSuppressionWindow.
func NewGate(window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultSuppressionWindow
	}

	return &Gate{window: window}
}

// Admit reports whether the badge credential should be forwarded.
// Accepted scans overwrite LastScan; suppressed scans leave it untouched.
func (g *Gate) Admit(c alarm.Credential) bool {
	if c.Kind != alarm.CredentialBadge || c.UID == "" {
		return false
	}

	if g.last != nil && g.last.UID == c.UID && c.At.Sub(g.last.At) <= g.window {
		return false
	}

	g.last = &LastScan{UID: c.UID, At: c.At}

	return true
}

// Last returns the most recently accepted scan.
func (g *Gate) Last() (LastScan, bool) {
	if g.last == nil {
		return LastScan{}, false
	}

	return *g.last, true
}
