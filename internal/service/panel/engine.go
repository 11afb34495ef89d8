package panel

import (
	"context"
	"time"

	"github.com/oshokin/alarm-display/internal/clock"
	"github.com/oshokin/alarm-display/internal/credential"
	"github.com/oshokin/alarm-display/internal/display"
	"github.com/oshokin/alarm-display/internal/domain/alarm"
	"github.com/oshokin/alarm-display/internal/logger"
	"github.com/oshokin/alarm-display/internal/messaging"
	"github.com/oshokin/alarm-display/internal/watchdog"
)

// DefaultLoopInterval is the pause between control loop passes.
const DefaultLoopInterval = 20 * time.Millisecond

// engine is the single control loop. Every component it holds is mutated
// only from the goroutine running pass.
type engine struct {
	// clock provides the pass time.
	clock clock.Clock
	// watchdog receives a heartbeat per pass.
	watchdog *watchdog.Watchdog
	// adapter polls the credential devices.
	adapter *credential.Adapter
	// gate suppresses repeated badge reads.
	gate *credential.Gate
	// accumulator builds PINs from key presses.
	accumulator *credential.Accumulator
	// store holds the alarm state.
	store *Store
	// reconciler owns the broker link.
	reconciler *messaging.Reconciler
	// scheduler decides redraws.
	scheduler *display.Scheduler
	// renderer draws requests.
	renderer display.Renderer
}

// pass runs one loop iteration: heartbeat, credential arbitration, state
// reconciliation, then the display decision.
func (e *engine) pass(ctx context.Context) {
	now := e.clock.Now()

	e.watchdog.Beat(now)
	e.accumulator.Expire(ctx, now)

	if event, ok := e.adapter.Poll(now); ok {
		e.arbitrate(ctx, event)
	}

	e.reconciler.Pass(ctx, now, e.store)
	e.store.ExpireMessage(now)

	request, ok := e.scheduler.Pass(ctx, now, e.reconciler.Connected(), e.store)
	if !ok {
		return
	}

	if err := e.renderer.Render(ctx, request); err != nil {
		logger.WarnKV(ctx, "Failed to render display", "reason", request.Reason, "error", err)
	}
}

// arbitrate turns a raw input event into at most one transition request.
func (e *engine) arbitrate(ctx context.Context, event credential.Event) {
	var presented alarm.Credential

	switch event.Kind {
	case credential.EventBadge:
		presented = alarm.Badge(event.UID, event.At)
		if !e.gate.Admit(presented) {
			logger.DebugKV(ctx, "Badge read suppressed", "uid", event.UID)

			return
		}
	case credential.EventKey:
		pin, ok := e.accumulator.Feed(ctx, event.Key, event.At)
		if !ok {
			return
		}

		presented = pin
	default:
		return
	}

	if err := e.store.RequestLocalTransition(ctx, presented); err != nil {
		logger.WarnKV(ctx, "Transition request dropped", "credential", presented.Kind, "error", err)
	}
}

// run calls pass every interval until ctx is done.
func (e *engine) run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultLoopInterval
	}

	e.watchdog.Reset(e.clock.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		e.pass(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
