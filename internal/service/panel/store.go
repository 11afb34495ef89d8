package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/alarm-display/internal/clock"
	"github.com/oshokin/alarm-display/internal/domain/alarm"
	"github.com/oshokin/alarm-display/internal/logger"
	"github.com/oshokin/alarm-display/internal/messaging"
	repo "github.com/oshokin/alarm-display/internal/repository/state"
)

// errUnknownCredential is returned for credentials of an unknown kind.
var errUnknownCredential = errors.New("unknown credential kind")

// Publisher sends outbound payloads.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// DefaultMessageTimeout is how long an access verdict stays on the display.
const DefaultMessageTimeout = 5 * time.Second

// Listener is told about every applied state and about message line changes.
type Listener interface {
	StateChanged(state alarm.State, countdown int)
	Redraw()
}

// Notifier shows a short message next to the state, may be absent.
type Notifier interface {
	SetMessage(message string)
}

// StoreOptions holds the immutable store settings.
type StoreOptions struct {
	// Hostname identifies the node in authentication attempts.
	Hostname string
	// RFIDTopic is where attempts are published.
	RFIDTopic string
	// ArmAction is requested while the alarm is disarmed.
	ArmAction string
	// DisarmAction is requested while the alarm is armed.
	DisarmAction string
	// CountdownSeed is the entry delay in seconds when a message carries none.
	CountdownSeed int
	// PairingWindow is how long a badge is paired with the next PIN.
	PairingWindow time.Duration
	// MessageTimeout is how long an access verdict is shown.
	MessageTimeout time.Duration
}

// Store holds the alarm state. State only changes on authoritative updates
// and on local escalation; local credentials are only forwarded.
type Store struct {
	// opts holds the immutable settings.
	opts StoreOptions
	// clock stamps persisted snapshots.
	clock clock.Clock
	// repo keeps the last authoritative state, may be nil.
	repo repo.Repository
	// publisher sends attempts.
	publisher Publisher
	// listener is notified about applied states.
	listener Listener
	// notifier shows access replies, may be nil.
	notifier Notifier
	// state is the current alarm state.
	state alarm.State
	// lastBadge is the last accepted badge, paired with the next PIN.
	lastBadge alarm.Credential
	// hasBadge is set while lastBadge is waiting for a PIN.
	hasBadge bool
	// confirmed is set once an authoritative state arrived; a restored state is unconfirmed.
	confirmed bool
	// messageUntil is when the shown access verdict expires, zero when none is shown.
	messageUntil time.Time
}

// loadInitialState returns the persisted state, or Disarmed when nothing was saved yet.
func loadInitialState(ctx context.Context, repository repo.Repository) (alarm.State, error) {
	if repository == nil {
		return alarm.StateDisarmed, nil
	}

	snapshot, err := repository.Load(ctx)
	switch {
	case err == nil:
		if snapshot != nil {
			return snapshot.State, nil
		}
	case errors.Is(err, repo.ErrNotFound):
		// Keep default state.
	default:
		return alarm.StateDisarmed, fmt.Errorf("load state: %w", err)
	}

	return alarm.StateDisarmed, nil
}

// newStore creates a store holding initial.
func newStore(
	initial alarm.State,
	opts StoreOptions,
	c clock.Clock,
	repository repo.Repository,
	publisher Publisher,
	listener Listener,
	notifier Notifier,
) *Store {
	if opts.MessageTimeout <= 0 {
		opts.MessageTimeout = DefaultMessageTimeout
	}

	return &Store{
		opts:      opts,
		clock:     c,
		repo:      repository,
		publisher: publisher,
		listener:  listener,
		notifier:  notifier,
		state:     initial,
	}
}

// State returns the current alarm state.
func (s *Store) State() alarm.State {
	return s.state
}

// RequestLocalTransition asks the controlling system to arm or disarm on
// behalf of credential. The state itself is left untouched until the
// authoritative answer arrives.
func (s *Store) RequestLocalTransition(ctx context.Context, credential alarm.Credential) error {
	attempt := alarm.Attempt{
		Hostname: s.opts.Hostname,
		Action:   s.action(),
	}

	switch credential.Kind {
	case alarm.CredentialBadge:
		attempt.UID = credential.UID
		s.lastBadge = credential
		s.hasBadge = true
	case alarm.CredentialPin:
		attempt.Code = credential.Code

		if s.hasBadge && credential.At.Sub(s.lastBadge.At) <= s.opts.PairingWindow {
			attempt.UID = s.lastBadge.UID
		}

		s.hasBadge = false
	default:
		return fmt.Errorf("request transition: %w: %d", errUnknownCredential, credential.Kind)
	}

	payload, err := messaging.EncodeAttempt(attempt)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Requesting transition",
		"credential", credential.Kind,
		"uid", attempt.UID,
		"action", attempt.Action,
		"state", s.state)

	if err = s.publisher.Publish(ctx, s.opts.RFIDTopic, payload); err != nil {
		return fmt.Errorf("publish attempt: %w", err)
	}

	return nil
}

// ApplyAuthoritative overwrites the state with one received from the
// controlling system. A repeated state is ignored, so a repeated Pending
// does not restart a running countdown. The first update after start is
// always applied: it confirms the restored state and arms its countdown.
func (s *Store) ApplyAuthoritative(ctx context.Context, state alarm.State, countdown int) {
	confirmed := s.confirmed
	s.confirmed = true

	if confirmed && state == s.state {
		logger.DebugKV(ctx, "State unchanged", "state", state)

		return
	}

	if state == alarm.StatePending && countdown <= 0 {
		countdown = s.opts.CountdownSeed
	}

	s.apply(ctx, state, countdown)
}

// AccessReply shows the controlling system's verdict on an attempt until
// the message timeout passes.
func (s *Store) AccessReply(ctx context.Context, granted bool, uid, name string) {
	logger.InfoKV(ctx, "Access reply received", "granted", granted, "uid", uid, "name", name)

	if s.notifier == nil {
		return
	}

	message := "ACCESS DENIED"
	if granted {
		message = "ACCESS GRANTED"
		if name != "" {
			message += ": " + name
		}
	}

	s.notifier.SetMessage(message)
	s.messageUntil = s.clock.Now().Add(s.opts.MessageTimeout)

	if s.listener != nil {
		s.listener.Redraw()
	}
}

// ExpireMessage removes an access verdict shown for longer than the message timeout.
func (s *Store) ExpireMessage(now time.Time) {
	if s.messageUntil.IsZero() || now.Before(s.messageUntil) {
		return
	}

	s.messageUntil = time.Time{}
	s.notifier.SetMessage("")

	if s.listener != nil {
		s.listener.Redraw()
	}
}

// Escalate moves the state to Triggered when the entry delay runs out.
func (s *Store) Escalate(ctx context.Context) {
	if s.state != alarm.StatePending {
		return
	}

	logger.Warn(ctx, "Entry delay expired, alarm triggered")

	s.apply(ctx, alarm.StateTriggered, 0)
}

// apply stores state, persists it and notifies the listener.
func (s *Store) apply(ctx context.Context, state alarm.State, countdown int) {
	previous := s.state
	s.state = state

	if state != alarm.StatePending {
		countdown = 0
	}

	logger.InfoKV(ctx, "Alarm state updated", "from", previous, "to", state, "countdown", countdown)

	if s.repo != nil {
		snapshot := &repo.Snapshot{State: state, UpdatedAt: s.clock.Now()}
		if err := s.repo.Save(ctx, snapshot); err != nil {
			logger.Errorf(ctx, "Failed to persist alarm state: %v", err)
		}
	}

	if s.listener != nil {
		s.listener.StateChanged(state, countdown)
	}
}

// action returns the transition requested from the current state.
func (s *Store) action() string {
	if s.state.IsArmed() {
		return s.opts.DisarmAction
	}

	return s.opts.ArmAction
}
