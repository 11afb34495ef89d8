package panel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/alarm-display/internal/config"
	"github.com/oshokin/alarm-display/internal/domain/alarm"
	"github.com/oshokin/alarm-display/internal/logger"
)

// TestRun_MissingSettings checks that Run fails before touching any device without settings.
func TestRun_MissingSettings(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "load settings")
}

// TestRestartFunc_Exit checks exit mode ends the process with the stall exit code.
//
//nolint:paralleltest // Replaces the package-level exit function.
func TestRestartFunc_Exit(t *testing.T) {
	original := exitProcess
	t.Cleanup(func() { exitProcess = original })

	var code int

	exitProcess = func(c int) { code = c }

	restart := restartFunc(config.RestartExit)
	require.NoError(t, restart(context.Background(), alarm.ErrLoopStall))
	require.Equal(t, exitCodeStall, code)
}

// TestApplyLogLevel checks the flag wins over the settings and unknown levels are ignored.
//
//nolint:paralleltest // Changes the global logger level.
func TestApplyLogLevel(t *testing.T) {
	original := logger.Level()
	t.Cleanup(func() { logger.SetLevel(original) })

	ctx := context.Background()

	applyLogLevel(ctx, "warn", "")
	require.Equal(t, zapcore.WarnLevel, logger.Level())

	applyLogLevel(ctx, "warn", "debug")
	require.Equal(t, zapcore.DebugLevel, logger.Level())

	applyLogLevel(ctx, "", "loud")
	require.Equal(t, zapcore.DebugLevel, logger.Level())

	applyLogLevel(ctx, "", "")
	require.Equal(t, zapcore.DebugLevel, logger.Level())
}

// TestNewEngine_LoadFailure checks a broken state file stops the start.
func TestNewEngine_LoadFailure(t *testing.T) {
	t.Parallel()

	settings := &config.Config{
		Hostname: "alarmdisplay1",
		Broker:   config.Broker{Host: "broker.local"},
	}
	require.NoError(t, config.Validate(settings))

	_, err := newEngine(context.Background(), settings, &dependencies{
		repository: &memoryRepository{loadErr: errTestLoad},
		transport:  newFakeTransport(),
		renderer:   new(recordingRenderer),
	})
	require.ErrorIs(t, err, errTestLoad)
}
