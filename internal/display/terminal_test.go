package display

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
)

// TestTerminalRenderer_Frames checks frames carry the state, countdown and link status.
func TestTerminalRenderer_Frames(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	r := NewTerminalRenderer(&buf, "alarmdisplay1.home")

	err := r.Render(context.Background(), alarm.DisplayRequest{
		Reason:    alarm.ReasonCountdownTick,
		State:     alarm.StatePending,
		Remaining: 12,
		Connected: true,
	})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "alarmdisplay1.home")
	require.Contains(t, out, "PENDING")
	require.Contains(t, out, "12 s")
	require.NotContains(t, out, "offline")

	buf.Reset()
	r.SetMessage("Access granted: Jamie")

	err = r.Render(context.Background(), alarm.DisplayRequest{
		Reason: alarm.ReasonCadence,
		State:  alarm.StateArmedAway,
	})
	require.NoError(t, err)

	out = buf.String()
	require.Contains(t, out, "ARMED AWAY")
	require.Contains(t, out, "Access granted: Jamie")
	require.Contains(t, out, "offline")
}

// TestTerminalRenderer_CRLF checks that raw terminals get carriage returns on every line.
func TestTerminalRenderer_CRLF(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	r := NewTerminalRenderer(&buf, "alarmdisplay1.home")
	r.UseCRLF()

	err := r.Render(context.Background(), alarm.DisplayRequest{
		Reason: alarm.ReasonStateChanged,
		State:  alarm.StateDisarmed,
	})
	require.NoError(t, err)

	out := buf.String()
	require.Equal(t, strings.Count(out, "\n"), strings.Count(out, "\r\n"))
	require.True(t, strings.HasSuffix(out, "\r\n"))
}
