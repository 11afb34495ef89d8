package display

import (
	"context"
	"time"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
)

const (
	// DefaultRefreshInterval is the cadence redraw interval.
	DefaultRefreshInterval = 5 * time.Second
	// DefaultTickInterval is the countdown tick.
	DefaultTickInterval = time.Second
)

// Renderer draws display requests.
type Renderer interface {
	Render(ctx context.Context, request alarm.DisplayRequest) error
}

// Escalator is asked to escalate the alarm when the countdown runs out.
type Escalator interface {
	Escalate(ctx context.Context)
}

// Scheduler decides when to redraw.
type Scheduler struct {
	// refresh is the cadence redraw interval.
	refresh time.Duration
	// tick is the countdown tick interval.
	tick time.Duration
	// lastRedraw is when the last request was emitted.
	lastRedraw time.Time
	// lastTick is the reference time of the countdown ticks.
	lastTick time.Time
	// state is the state to display.
	state alarm.State
	// remaining is the countdown value in seconds.
	remaining int
	// counting is set while a countdown runs.
	counting bool
	// tickStarted is set once lastTick has been anchored to a pass time.
	tickStarted bool
	// dirty is set by StateChanged until the next request.
	dirty bool
	// drawn is set after the first request.
	drawn bool
	// redraw is set by Redraw until the next request.
	redraw bool
}

// NewScheduler creates a scheduler showing initial on its first pass.
// Non-positive intervals fall back to their defaults.
func NewScheduler(initial alarm.State, refresh, tick time.Duration) *Scheduler {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}

	if tick <= 0 {
		tick = DefaultTickInterval
	}

	return &Scheduler{
		refresh: refresh,
		tick:    tick,
		state:   initial,
		dirty:   true,
	}
}

// StateChanged requests an immediate redraw of state. A positive countdown
// starts the entry delay; any other value stops a running one.
func (s *Scheduler) StateChanged(state alarm.State, countdown int) {
	s.state = state
	s.dirty = true
	s.counting = countdown > 0
	s.remaining = max(countdown, 0)
	s.tickStarted = false
}

// Redraw requests a redraw of the unchanged state on the next pass.
func (s *Scheduler) Redraw() {
	s.redraw = true
}

// Remaining returns the countdown value and whether a countdown runs.
func (s *Scheduler) Remaining() (int, bool) {
	return s.remaining, s.counting
}

// Pass combines the three triggers into at most one request. When the
// countdown reaches zero the escalator is invoked after the request is
// decided, so its state change is drawn on the following pass.
func (s *Scheduler) Pass(
	ctx context.Context,
	now time.Time,
	connected bool,
	escalator Escalator,
) (alarm.DisplayRequest, bool) {
	ticked, expired := s.advanceCountdown(now)

	var reason alarm.DisplayReason

	switch {
	case s.dirty:
		reason = alarm.ReasonStateChanged
	case ticked:
		reason = alarm.ReasonCountdownTick
	case s.redraw || !s.drawn || now.Sub(s.lastRedraw) > s.refresh:
		reason = alarm.ReasonCadence
	}

	var (
		request alarm.DisplayRequest
		emit    = reason != 0
	)

	if emit {
		request = alarm.DisplayRequest{
			Reason:    reason,
			State:     s.state,
			Remaining: s.remaining,
			Connected: connected,
		}

		s.dirty = false
		s.redraw = false
		s.drawn = true
		s.lastRedraw = now
	}

	if expired && escalator != nil {
		escalator.Escalate(ctx)
	}

	return request, emit
}

// advanceCountdown moves the countdown forward by whole ticks.
// It reports whether a tick happened and whether the countdown ran out.
func (s *Scheduler) advanceCountdown(now time.Time) (bool, bool) {
	if !s.counting {
		return false, false
	}

	if !s.tickStarted {
		s.lastTick = now
		s.tickStarted = true

		return false, false
	}

	elapsed := now.Sub(s.lastTick)
	if elapsed < s.tick {
		return false, false
	}

	steps := int(elapsed / s.tick)
	s.lastTick = s.lastTick.Add(time.Duration(steps) * s.tick)
	s.remaining = max(s.remaining-steps, 0)

	if s.remaining > 0 {
		return true, false
	}

	s.counting = false

	return true, true
}
