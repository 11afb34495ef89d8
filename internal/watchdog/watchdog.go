package watchdog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oshokin/alarm-display/internal/clock"
	"github.com/oshokin/alarm-display/internal/domain/alarm"
	"github.com/oshokin/alarm-display/internal/logger"
)

const (
	// DefaultTimeout is the longest tolerated gap between heartbeats.
	DefaultTimeout = 300 * time.Second
	// DefaultInterval is how often the heartbeat is checked.
	DefaultInterval = 10 * time.Second
)

// RestartFunc restarts the device. It is not expected to return on success.
type RestartFunc func(ctx context.Context, reason error) error

// Watchdog tracks control loop heartbeats.
type Watchdog struct {
	// clock provides the time for Run.
	clock clock.Clock
	// restart is called when the loop stalls.
	restart RestartFunc
	// timeout is the heartbeat ceiling.
	timeout time.Duration
	// interval is the check period.
	interval time.Duration
	// lastSeen is the UnixNano time of the last heartbeat.
	lastSeen atomic.Int64
	// ticks counts heartbeats since Reset.
	ticks atomic.Uint64
	// fired is set once a restart has been requested.
	fired atomic.Bool
}

// New creates a watchdog. Non-positive durations fall back to their defaults.
func New(c clock.Clock, timeout, interval time.Duration, restart RestartFunc) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if interval <= 0 {
		interval = DefaultInterval
	}

	w := &Watchdog{
		clock:    c,
		restart:  restart,
		timeout:  timeout,
		interval: interval,
	}
	w.Reset(c.Now())

	return w
}

// Reset zeroes the heartbeat counter and marks now as the last beat.
// It is called when the control loop starts.
func (w *Watchdog) Reset(now time.Time) {
	w.ticks.Store(0)
	w.lastSeen.Store(now.UnixNano())
}

// Beat records a control loop pass.
func (w *Watchdog) Beat(now time.Time) {
	w.ticks.Add(1)
	w.lastSeen.Store(now.UnixNano())
}

// Ticks returns the number of heartbeats since Reset.
func (w *Watchdog) Ticks() uint64 {
	return w.ticks.Load()
}

// Check returns ErrLoopStall when more than the timeout elapsed since the last beat.
func (w *Watchdog) Check(now time.Time) error {
	elapsed := now.Sub(time.Unix(0, w.lastSeen.Load()))
	if elapsed > w.timeout {
		return fmt.Errorf("%w: no heartbeat for %s", alarm.ErrLoopStall, elapsed.Truncate(time.Millisecond))
	}

	return nil
}

// Run checks the heartbeat every interval until ctx is done or a stall is
// detected. On a stall it calls the restart function once and returns the
// stall error.
func (w *Watchdog) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "watchdog")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := w.Check(w.clock.Now())
			if err == nil {
				continue
			}

			if !w.fired.CompareAndSwap(false, true) {
				return err
			}

			logger.ErrorKV(ctx, "Control loop stalled, restarting", "error", err, "ticks", w.Ticks())

			if w.restart != nil {
				if restartErr := w.restart(ctx, err); restartErr != nil {
					logger.ErrorKV(ctx, "Restart failed", "error", restartErr)
				}
			}

			return err
		}
	}
}
