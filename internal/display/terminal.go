package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
)

// stateColors maps states to their frame colors.
//
//nolint:gochecknoglobals // Read-only lookup table.
var stateColors = map[alarm.State]lipgloss.Color{
	alarm.StateDisarmed:   lipgloss.Color("42"),
	alarm.StateArmedHome:  lipgloss.Color("33"),
	alarm.StateArmedAway:  lipgloss.Color("27"),
	alarm.StateArmedNight: lipgloss.Color("57"),
	alarm.StatePending:    lipgloss.Color("214"),
	alarm.StateTriggered:  lipgloss.Color("196"),
}

// TerminalRenderer draws display requests as a framed panel on a terminal.
type TerminalRenderer struct {
	// out receives the rendered frames.
	out io.Writer
	// hostname is shown in the frame title.
	hostname string
	// frame is the base box style.
	frame lipgloss.Style
	// mu serializes writes.
	mu sync.Mutex
	// message is a transient line shown under the state, e.g. an access verdict.
	message string
	// crlf ends lines with "\r\n" for terminals in raw mode.
	crlf bool
}

// NewTerminalRenderer creates a renderer writing to out.
func NewTerminalRenderer(out io.Writer, hostname string) *TerminalRenderer {
	return &TerminalRenderer{
		out:      out,
		hostname: hostname,
		frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(32).
			Align(lipgloss.Center),
	}
}

// SetMessage sets the line shown under the state until the next call.
func (r *TerminalRenderer) SetMessage(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.message = message
}

// UseCRLF makes frames end lines with "\r\n", which a terminal in raw mode needs.
func (r *TerminalRenderer) UseCRLF() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.crlf = true
}

// Render writes one frame for request.
func (r *TerminalRenderer) Render(_ context.Context, request alarm.DisplayRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := r.frameFor(request) + "\n"
	if r.crlf {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}

	if _, err := io.WriteString(r.out, text); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// frameFor builds the frame text.
func (r *TerminalRenderer) frameFor(request alarm.DisplayRequest) string {
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(r.hostname),
		lipgloss.NewStyle().
			Bold(true).
			Foreground(stateColors[request.State]).
			Render(strings.ToUpper(strings.ReplaceAll(request.State.String(), "_", " "))),
	}

	if request.State == alarm.StatePending || request.Reason == alarm.ReasonCountdownTick {
		lines = append(lines, fmt.Sprintf("%d s", request.Remaining))
	}

	if r.message != "" {
		lines = append(lines, r.message)
	}

	if !request.Connected {
		lines = append(lines, lipgloss.NewStyle().Faint(true).Render("offline"))
	}

	return r.frame.
		BorderForeground(stateColors[request.State]).
		Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
}
