package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/oshokin/alarm-display/internal/logger"
)

const (
	// keyQueueSize is the number of key presses kept between polls.
	keyQueueSize = 32
	// keyInterrupt is Ctrl+C as delivered by a terminal in raw mode.
	keyInterrupt = 0x03
)

// ConsoleKeypad reads keypad presses (digits, '*' and '#') from a terminal.
type ConsoleKeypad struct {
	// keys holds presses until polled.
	keys chan rune
	// restore puts the terminal back into its original mode, may be nil.
	restore func() error
}

// OpenConsoleKeypad switches in to raw mode when it is a terminal and starts
// reading it. interrupt is called on Ctrl+C, which raw mode no longer turns
// into a signal.
func OpenConsoleKeypad(ctx context.Context, in *os.File, interrupt func()) (*ConsoleKeypad, error) {
	var restore func() error

	fd := int(in.Fd()) //nolint:gosec // File descriptors fit into int.
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("switch terminal to raw mode: %w", err)
		}

		restore = func() error {
			return term.Restore(fd, state)
		}
	}

	keypad := NewKeypad(ctx, in, interrupt)
	keypad.restore = restore

	return keypad, nil
}

// NewKeypad starts reading key presses from r.
func NewKeypad(ctx context.Context, r io.Reader, interrupt func()) *ConsoleKeypad {
	k := &ConsoleKeypad{keys: make(chan rune, keyQueueSize)}

	go k.read(logger.WithName(ctx, "keypad"), r, interrupt)

	return k
}

// PollKey returns the next key press without blocking.
func (k *ConsoleKeypad) PollKey() (rune, bool) {
	select {
	case key := <-k.keys:
		return key, true
	default:
		return 0, false
	}
}

// Close restores the terminal mode.
func (k *ConsoleKeypad) Close() error {
	if k.restore == nil {
		return nil
	}

	return k.restore()
}

// read forwards keypad characters until the source ends.
func (k *ConsoleKeypad) read(ctx context.Context, r io.Reader, interrupt func()) {
	reader := bufio.NewReader(r)

	for {
		b, err := reader.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.ErrorKV(ctx, "Keypad read failed", "error", err)
			}

			return
		}

		if b == keyInterrupt {
			if interrupt != nil {
				interrupt()
			}

			continue
		}

		if !IsKeypadKey(rune(b)) {
			continue
		}

		select {
		case k.keys <- rune(b):
		case <-ctx.Done():
			return
		default:
			logger.Warn(ctx, "Key press dropped, queue is full")
		}
	}
}

// IsKeypadKey reports whether key exists on a 4x3 keypad.
func IsKeypadKey(key rune) bool {
	return (key >= '0' && key <= '9') || key == '*' || key == '#'
}
