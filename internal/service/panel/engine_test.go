package panel

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-display/internal/clock"
	"github.com/oshokin/alarm-display/internal/config"
	"github.com/oshokin/alarm-display/internal/domain/alarm"
)

const (
	// sharedTopic is the default shared inbound topic.
	sharedTopic = "home/alarm/display"
	// deviceTopic is the per-device topic of the test node.
	deviceTopic = "home/alarm/display/alarmdisplay1"
	// rfidTopic is the default outbound topic.
	rfidTopic = "home/alarm/rfid"
)

// engineFixture bundles an engine with its fake devices and collaborators.
type engineFixture struct {
	// engine is the loop under test.
	engine *engine
	// clock drives the pass time.
	clock *clock.FakeClock
	// transport is the in-memory broker link.
	transport *fakeTransport
	// repo records persisted snapshots.
	repo *memoryRepository
	// renderer records drawn requests.
	renderer *recordingRenderer
	// badges feeds badge reads.
	badges *queuedBadges
	// keys feeds key presses.
	keys *queuedKeys
	// restarts records watchdog restart reasons.
	restarts []error
}

// newEngineFixture builds an engine over fakes with default settings.
func newEngineFixture(t *testing.T, repository *memoryRepository) *engineFixture {
	t.Helper()

	settings := &config.Config{
		Hostname: "alarmdisplay1",
		Broker:   config.Broker{Host: "broker.local"},
	}
	require.NoError(t, config.Validate(settings))

	f := &engineFixture{
		clock:     clock.Fake(testTime),
		transport: newFakeTransport(),
		repo:      repository,
		renderer:  new(recordingRenderer),
		badges:    new(queuedBadges),
		keys:      new(queuedKeys),
	}

	loop, err := newEngine(context.Background(), settings, &dependencies{
		clock:      f.clock,
		repository: f.repo,
		transport:  f.transport,
		badges:     f.badges,
		keys:       f.keys,
		renderer:   f.renderer,
		restart: func(_ context.Context, reason error) error {
			f.restarts = append(f.restarts, reason)

			return nil
		},
	})
	require.NoError(t, err)

	f.engine = loop

	return f
}

// step advances the clock by d and runs one pass.
func (f *engineFixture) step(d time.Duration) {
	f.clock.Advance(d)
	f.engine.pass(context.Background())
}

// TestEngine_FirstPassConnectsAndDraws checks the first pass subscribes both topics and draws the initial state.
func TestEngine_FirstPassConnectsAndDraws(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, new(memoryRepository))

	f.step(0)

	require.Equal(t, []string{sharedTopic, deviceTopic}, f.transport.subscriptions)
	require.Len(t, f.renderer.requests, 1)
	require.Equal(t, alarm.DisplayRequest{
		Reason:    alarm.ReasonStateChanged,
		State:     alarm.StateDisarmed,
		Connected: true,
	}, f.renderer.last())
	require.Equal(t, uint64(1), f.engine.watchdog.Ticks())

	// Nothing changed: no redraw until the cadence interval passes.
	f.step(time.Second)
	require.Len(t, f.renderer.requests, 1)

	f.step(5 * time.Second)
	require.Len(t, f.renderer.requests, 2)
	require.Equal(t, alarm.ReasonCadence, f.renderer.last().Reason)
}

// TestEngine_RestoresPersistedState checks the last saved state is shown at boot.
func TestEngine_RestoresPersistedState(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, &memoryRepository{
		snapshot: newSnapshot(alarm.StateArmedNight),
	})

	f.step(0)

	require.Equal(t, alarm.StateArmedNight, f.engine.store.State())
	require.Equal(t, alarm.StateArmedNight, f.renderer.last().State)
}

// TestEngine_BadgeArbitration checks badge reads are gated and forwarded as attempts.
func TestEngine_BadgeArbitration(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, new(memoryRepository))
	f.step(0)

	f.badges.uids = []string{"04A1B2C3"}
	f.step(10 * time.Millisecond)

	// The same badge within the suppression window is dropped.
	f.badges.uids = []string{"04A1B2C3"}
	f.step(time.Second)

	// A different badge is accepted right away.
	f.badges.uids = []string{"DEADBEEF"}
	f.step(10 * time.Millisecond)

	// The first badge again after the window.
	f.badges.uids = []string{"04A1B2C3"}
	f.step(4 * time.Second)

	attempts := f.transport.attempts(rfidTopic)
	require.Len(t, attempts, 3)
	require.Equal(t, "04A1B2C3", attempts[0].UID)
	require.Equal(t, "DEADBEEF", attempts[1].UID)
	require.Equal(t, "04A1B2C3", attempts[2].UID)

	for _, attempt := range attempts {
		require.Equal(t, "alarmdisplay1", attempt.Hostname)
		require.Equal(t, "arm_away", attempt.Action)
	}

	// Local requests never change the state.
	require.Equal(t, alarm.StateDisarmed, f.engine.store.State())
}

// TestEngine_BadgeWinsOverKey checks a simultaneous key press is kept for the next pass.
func TestEngine_BadgeWinsOverKey(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, new(memoryRepository))
	f.step(0)

	f.badges.uids = []string{"04A1B2C3"}
	f.keys.press("1")
	f.step(10 * time.Millisecond)

	require.Len(t, f.transport.attempts(rfidTopic), 1)
	require.Equal(t, []rune{'1'}, f.keys.keys)

	f.step(10 * time.Millisecond)
	require.Empty(t, f.keys.keys)
	require.Equal(t, 1, f.engine.accumulator.Len())
}

// TestEngine_PinEntry checks that a keypad PIN becomes one attempt paired with a recent badge.
func TestEngine_PinEntry(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, &memoryRepository{snapshot: newSnapshot(alarm.StateArmedAway)})
	f.step(0)

	f.badges.uids = []string{"04A1B2C3"}
	f.step(10 * time.Millisecond)

	f.keys.press("2580#")

	for range 5 {
		f.step(10 * time.Millisecond)
	}

	attempts := f.transport.attempts(rfidTopic)
	require.Len(t, attempts, 2)
	require.Equal(t, "2580", attempts[1].Code)
	require.Equal(t, "04A1B2C3", attempts[1].UID)
	require.Equal(t, "disarm", attempts[1].Action)

	// A partial PIN expires after the password timeout.
	f.keys.press("12")
	f.step(10 * time.Millisecond)
	f.step(10 * time.Millisecond)
	require.Equal(t, 2, f.engine.accumulator.Len())

	f.step(11 * time.Second)
	require.Zero(t, f.engine.accumulator.Len())
	require.Len(t, f.transport.attempts(rfidTopic), 2)
}

// TestEngine_CountdownEscalates checks the full pending sequence: state change, 30 ticks, then triggered.
func TestEngine_CountdownEscalates(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, new(memoryRepository))
	f.step(0)

	f.transport.deliver(sharedTopic, "pending")
	f.step(10 * time.Millisecond)

	require.Equal(t, alarm.StatePending, f.engine.store.State())
	require.Equal(t, alarm.ReasonStateChanged, f.renderer.last().Reason)
	require.Equal(t, 30, f.renderer.last().Remaining)

	for remaining := 29; remaining >= 0; remaining-- {
		f.step(time.Second)

		require.Equal(t, alarm.ReasonCountdownTick, f.renderer.last().Reason)
		require.Equal(t, remaining, f.renderer.last().Remaining)
	}

	require.Equal(t, alarm.StateTriggered, f.engine.store.State())

	f.step(10 * time.Millisecond)
	require.Equal(t, alarm.ReasonStateChanged, f.renderer.last().Reason)
	require.Equal(t, alarm.StateTriggered, f.renderer.last().State)
	require.Equal(t, alarm.StateTriggered, f.repo.saved[len(f.repo.saved)-1].State)
}

// TestEngine_RestoredPendingCountsDown checks a restored entry delay starts counting once the broker confirms it.
func TestEngine_RestoredPendingCountsDown(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, &memoryRepository{
		snapshot: newSnapshot(alarm.StatePending),
	})
	f.step(0)

	require.Equal(t, alarm.StatePending, f.renderer.last().State)
	require.Zero(t, f.renderer.last().Remaining)

	f.transport.deliver(sharedTopic, "pending")
	f.step(10 * time.Millisecond)

	require.Equal(t, alarm.ReasonStateChanged, f.renderer.last().Reason)
	require.Equal(t, 30, f.renderer.last().Remaining)

	for range 30 {
		f.step(time.Second)
	}

	require.Equal(t, alarm.StateTriggered, f.engine.store.State())
	require.Equal(t, alarm.StateTriggered, f.repo.saved[len(f.repo.saved)-1].State)
}

// TestEngine_DisarmCancelsCountdown checks that an authoritative disarm stops the entry delay.
func TestEngine_DisarmCancelsCountdown(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, new(memoryRepository))
	f.step(0)

	f.transport.deliver(deviceTopic, `{"state":"pending","countdown":10}`)
	f.step(10 * time.Millisecond)
	require.Equal(t, 10, f.renderer.last().Remaining)

	f.step(time.Second)
	f.step(time.Second)
	require.Equal(t, 8, f.renderer.last().Remaining)

	f.transport.deliver(sharedTopic, `"disarmed"`)
	f.step(10 * time.Millisecond)
	require.Equal(t, alarm.StateDisarmed, f.renderer.last().State)

	for range 15 {
		f.step(time.Second)
	}

	require.Equal(t, alarm.StateDisarmed, f.engine.store.State())

	for _, request := range f.renderer.requests {
		require.NotEqual(t, alarm.StateTriggered, request.State)
	}
}

// TestEngine_AccessReplyAndRejects checks replies reach the display and bad messages are absorbed.
func TestEngine_AccessReplyAndRejects(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, new(memoryRepository))
	f.step(0)

	f.transport.deliver(deviceTopic, `{"access":"GRANTED","uid":"04A1B2C3","name":"Jamie"}`)
	f.transport.deliver(sharedTopic, "on_fire")
	f.transport.deliver(sharedTopic, `{"state":`)
	f.step(10 * time.Millisecond)

	require.Equal(t, "ACCESS GRANTED: Jamie", f.renderer.message)
	require.Equal(t, alarm.StateDisarmed, f.engine.store.State())
	require.Equal(t, 2, f.engine.reconciler.Stats().Rejected)

	// The verdict is drawn in the same pass it arrived in.
	require.Len(t, f.renderer.requests, 2)

	// It is cleared and redrawn once the message timeout passes.
	f.step(DefaultMessageTimeout)
	require.Empty(t, f.renderer.message)
	require.Len(t, f.renderer.requests, 3)
}

// TestEngine_ReconnectsAfterLinkLoss checks a lost link is re-established and both topics are re-subscribed.
func TestEngine_ReconnectsAfterLinkLoss(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, new(memoryRepository))
	f.step(0)
	require.True(t, f.renderer.last().Connected)

	f.transport.Disconnect()
	f.step(10 * time.Millisecond)

	// The reconnect attempt happens after the retry delay.
	require.Equal(t, alarm.ConnectionBackoff, f.engine.reconciler.State())

	f.step(6 * time.Second)
	require.Equal(t, alarm.ConnectionConnected, f.engine.reconciler.State())
	require.Equal(t, []string{sharedTopic, deviceTopic, sharedTopic, deviceTopic}, f.transport.subscriptions)
}

// TestEngine_Run checks the loop beats the watchdog until cancelled.
func TestEngine_Run(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newEngineFixture(t, new(memoryRepository))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		go func() {
			f.engine.run(ctx, 100*time.Millisecond)
			close(done)
		}()

		time.Sleep(time.Second)
		synctest.Wait()
		cancel()
		<-done

		require.GreaterOrEqual(t, f.engine.watchdog.Ticks(), uint64(10))
		require.Len(t, f.renderer.requests, 1)
		require.Empty(t, f.restarts)
	})
}
