package power

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnsupportedOS indicates the current OS is not supported for reboot.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// commandRunner starts an external command; replaced in tests.
//
//nolint:gochecknoglobals // Test seam for the OS command.
var commandRunner = func(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Start()
}

// RebootCommand returns the reboot command for goos:
// - Linux/macOS: `shutdown -r now`
// - Windows:     `shutdown.exe -r -f -t 0` (force, no delay)
func RebootCommand(goos string) (string, []string, error) {
	osName := strings.ToLower(goos)

	switch {
	case strings.Contains(osName, "linux") || strings.Contains(osName, "darwin"):
		return "shutdown", []string{"-r", "now"}, nil
	case strings.Contains(osName, "windows"):
		return "shutdown.exe", []string{"-r", "-f", "-t", "0"}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operating system: %s: %w", goos, ErrUnsupportedOS)
	}
}

// Reboot triggers an OS restart. The command is started asynchronously;
// the OS takes over the rest.
func Reboot(ctx context.Context) error {
	name, args, err := RebootCommand(runtime.GOOS)
	if err != nil {
		return err
	}

	if err = commandRunner(ctx, name, args...); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	return nil
}
