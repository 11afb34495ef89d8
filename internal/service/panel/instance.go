package panel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"
)

// errAlreadyRunning is returned when another display process owns the devices.
var errAlreadyRunning = errors.New("another instance is already running")

// processLister lists running processes; replaced in tests.
var processLister = ps.Processes //nolint:gochecknoglobals // Test seam.

// ensureSingleInstance fails when another process runs the same executable.
func ensureSingleInstance() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	return checkSingleInstance(filepath.Base(executable), os.Getpid())
}

// checkSingleInstance looks for processes named name other than self.
func checkSingleInstance(name string, self int) error {
	processList, err := processLister()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processList {
		if process.Pid() == self {
			continue
		}

		if process.Executable() != name {
			continue
		}

		return fmt.Errorf("%w: pid %d", errAlreadyRunning, process.Pid())
	}

	return nil
}
