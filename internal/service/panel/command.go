package panel

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	healthapi "github.com/oshokin/alarm-display/internal/api/grpc/health"
	"github.com/oshokin/alarm-display/internal/clock"
	"github.com/oshokin/alarm-display/internal/config"
	"github.com/oshokin/alarm-display/internal/credential"
	"github.com/oshokin/alarm-display/internal/device"
	"github.com/oshokin/alarm-display/internal/display"
	"github.com/oshokin/alarm-display/internal/domain/alarm"
	"github.com/oshokin/alarm-display/internal/logger"
	"github.com/oshokin/alarm-display/internal/messaging"
	repository "github.com/oshokin/alarm-display/internal/repository/state"
	"github.com/oshokin/alarm-display/internal/service/power"
	"github.com/oshokin/alarm-display/internal/transport/mqtt"
	"github.com/oshokin/alarm-display/internal/version"
	"github.com/oshokin/alarm-display/internal/watchdog"
)

// exitCodeStall is the process exit code after a loop stall in exit mode.
const exitCodeStall = 3

// exitProcess ends the process; replaced in tests.
var exitProcess = os.Exit //nolint:gochecknoglobals // Test seam.

// Options controls the alarm-display process.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the log level from the settings file.
	LogLevel string
}

// dependencies are the outer capabilities the engine is built on.
type dependencies struct {
	// clock provides the time.
	clock clock.Clock
	// repository keeps the last authoritative state, may be nil.
	repository repository.Repository
	// transport is the broker link.
	transport messaging.Transport
	// badges is the badge reader, may be nil.
	badges credential.BadgeReader
	// keys is the keypad, may be nil.
	keys credential.Keypad
	// renderer draws the display; it also shows access replies when it implements Notifier.
	renderer display.Renderer
	// restart is called by the watchdog on a loop stall.
	restart watchdog.RestartFunc
	// observer is told about broker link changes, may be nil.
	observer messaging.StateObserver
}

// Run starts the display node and blocks until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-display")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	applyLogLevel(ctx, settings.LogLevel, opts.LogLevel)

	ctx = logger.WithKV(ctx, "hostname", settings.Hostname)

	if err = ensureSingleInstance(); err != nil {
		return fmt.Errorf("check single instance: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	renderer := display.NewTerminalRenderer(os.Stdout, settings.Hostname)

	deps := &dependencies{
		clock:      clock.Real(),
		repository: repository.NewFileRepository(settings.StateFile),
		transport: mqtt.New(ctx, mqtt.Options{
			BrokerURL:      settings.BrokerURL(),
			ClientID:       settings.Broker.ClientID,
			Username:       settings.Broker.Username,
			Password:       settings.Broker.Password,
			TLS:            settings.Broker.TLS,
			ConnectTimeout: settings.Timings.ConnectTimeout,
			Trace:          settings.Broker.Trace,
		}),
		renderer: renderer,
		restart:  restartFunc(settings.RestartMode),
	}

	closers, err := openDevices(ctx, settings, deps, renderer, cancel)
	defer closeAll(ctx, closers)

	if err != nil {
		return err
	}

	var status *healthapi.Server
	if settings.StatusAddress != "" {
		status = healthapi.NewServer()
		deps.observer = status.SetConnectionState
	}

	loop, err := newEngine(ctx, settings, deps)
	if err != nil {
		return fmt.Errorf("initialise engine: %w", err)
	}

	statusDone := make(chan struct{})

	if status != nil {
		lc := net.ListenConfig{}

		lis, listenErr := lc.Listen(ctx, "tcp", settings.StatusAddress)
		if listenErr != nil {
			loop.reconciler.Close()

			return fmt.Errorf("listen on %s: %w", settings.StatusAddress, listenErr)
		}

		go func() {
			defer close(statusDone)

			if serveErr := status.Serve(ctx, lis); serveErr != nil {
				logger.ErrorKV(ctx, "Health endpoint failed", "error", serveErr)
			}
		}()
	} else {
		close(statusDone)
	}

	go func() {
		if stallErr := loop.watchdog.Run(ctx); stallErr != nil {
			cancel()
		}
	}()

	logger.InfoKV(ctx, "Alarm display started", append(version.Fields(),
		"broker", settings.BrokerURL(),
		"initial_state", loop.store.State())...)

	loop.run(ctx, settings.Timings.LoopInterval)

	loop.reconciler.Close()
	<-statusDone

	logger.Info(ctx, "Alarm display stopped")

	return nil
}

// newEngine assembles the control loop from settings and deps.
func newEngine(ctx context.Context, settings *config.Config, deps *dependencies) (*engine, error) {
	initial, err := loadInitialState(ctx, deps.repository)
	if err != nil {
		return nil, err
	}

	reconciler := messaging.NewReconciler(deps.transport, messaging.Options{
		SharedTopic:    settings.Topics.Display,
		DeviceTopic:    settings.DeviceTopic(),
		MaxAttempts:    settings.MaxReconnectAttempts,
		RetryDelay:     settings.Timings.RetryDelay,
		ReconnectDelay: settings.Timings.ReconnectDelay,
		MaxPayloadSize: settings.MaxPayloadSize,
	})

	if deps.observer != nil {
		reconciler.OnStateChange(deps.observer)
	}

	reconciler.OnStateChange(func(state alarm.ConnectionState) {
		logger.InfoKV(ctx, "Broker link changed", "connection", state, "attempts", reconciler.Attempts())
	})

	scheduler := display.NewScheduler(initial, settings.Timings.DisplayRefresh, settings.Timings.CountdownInterval)

	// Renderers that can show a message line also show access replies.
	notifier, _ := deps.renderer.(Notifier)

	store := newStore(initial, StoreOptions{
		Hostname:      settings.Hostname,
		RFIDTopic:     settings.Topics.RFID,
		ArmAction:     settings.ArmAction,
		DisarmAction:  settings.DisarmAction,
		CountdownSeed: settings.CountdownSeed,
		PairingWindow: settings.Timings.PasswordTimeout,
	}, deps.clock, deps.repository, reconciler, scheduler, notifier)

	return &engine{
		clock: deps.clock,
		watchdog: watchdog.New(deps.clock,
			settings.Timings.WatchdogTimeout, settings.Timings.WatchdogInterval, deps.restart),
		adapter:     credential.NewAdapter(deps.badges, deps.keys),
		gate:        credential.NewGate(settings.Timings.ScanSuppression),
		accumulator: credential.NewAccumulator(settings.Timings.PasswordTimeout),
		store:       store,
		reconciler:  reconciler,
		scheduler:   scheduler,
		renderer:    deps.renderer,
	}, nil
}

// openDevices opens the configured credential sources into deps and
// returns what has to be closed on exit.
func openDevices(
	ctx context.Context,
	settings *config.Config,
	deps *dependencies,
	renderer *display.TerminalRenderer,
	interrupt func(),
) ([]io.Closer, error) {
	var closers []io.Closer

	if settings.BadgeDevice != "" {
		badges, err := device.OpenBadgeReader(ctx, settings.BadgeDevice)
		if err != nil {
			return closers, err
		}

		deps.badges = badges
		closers = append(closers, badges)
	}

	if settings.ConsoleKeypad {
		keys, err := device.OpenConsoleKeypad(ctx, os.Stdin, interrupt)
		if err != nil {
			return closers, fmt.Errorf("open console keypad: %w", err)
		}

		deps.keys = keys
		closers = append(closers, keys)

		// Raw mode turns off output post-processing.
		renderer.UseCRLF()
	}

	return closers, nil
}

// closeAll closes devices in reverse order.
func closeAll(ctx context.Context, closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close device", "error", err)
		}
	}
}

// applyLogLevel sets the log level from the flag or, when empty, from the settings.
func applyLogLevel(ctx context.Context, fromSettings, fromFlag string) {
	value := fromFlag
	if value == "" {
		value = fromSettings
	}

	if value == "" {
		return
	}

	level, ok := logger.ParseLogLevel(value)
	if !ok {
		logger.WarnKV(ctx, "Unknown log level, keeping default", "log_level", value)

		return
	}

	logger.SetLevel(level)
}

// restartFunc returns the watchdog action for mode.
func restartFunc(mode string) watchdog.RestartFunc {
	if mode == config.RestartExit {
		return func(ctx context.Context, reason error) error {
			logger.ErrorKV(ctx, "Exiting after loop stall", "error", reason)
			exitProcess(exitCodeStall)

			return nil
		}
	}

	return func(ctx context.Context, _ error) error {
		return power.Reboot(ctx)
	}
}
