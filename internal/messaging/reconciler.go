package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
	"github.com/oshokin/alarm-display/internal/logger"
)

const (
	// DefaultMaxAttempts is the number of quick retries before the long backoff.
	DefaultMaxAttempts = 10
	// DefaultRetryDelay is the pause between quick retries.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultReconnectDelay is the long backoff.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultMaxPayloadSize is the largest accepted inbound payload.
	DefaultMaxPayloadSize = 512
	// DefaultInboxSize is the number of inbound messages buffered between passes.
	DefaultInboxSize = 16
)

// Sink receives authoritative updates decoded from inbound messages.
type Sink interface {
	// ApplyAuthoritative overwrites the alarm state.
	ApplyAuthoritative(ctx context.Context, state alarm.State, countdown int)
	// AccessReply reports the controlling system's verdict on an attempt.
	AccessReply(ctx context.Context, granted bool, uid, name string)
}

// Options configures the reconciler.
type Options struct {
	// SharedTopic is the topic shared by all display nodes.
	SharedTopic string
	// DeviceTopic is the topic scoped to this node.
	DeviceTopic string
	// MaxAttempts is the number of quick retries before the long backoff.
	MaxAttempts int
	// RetryDelay is the pause between quick retries.
	RetryDelay time.Duration
	// ReconnectDelay is the long backoff.
	ReconnectDelay time.Duration
	// MaxPayloadSize is the largest accepted inbound payload.
	MaxPayloadSize int
	// InboxSize is the inbound queue capacity.
	InboxSize int
}

// Message is an inbound message waiting to be applied.
type Message struct {
	// Topic is where the message arrived.
	Topic string
	// Payload is the message body; nil when the message was oversized.
	Payload []byte
	// Size is the original payload length.
	Size int
}

// Stats are counters of absorbed failures.
type Stats struct {
	// SoftFailures counts publishes dropped while not connected.
	SoftFailures int
	// ConnectFailures counts failed connection attempts and lost links.
	ConnectFailures int
	// Rejected counts inbound messages that were malformed or carried an unknown state.
	Rejected int
	// Overflowed counts inbound messages dropped because the inbox was full.
	Overflowed int
}

// StateObserver is notified about connection state changes. It runs on the loop goroutine.
type StateObserver func(state alarm.ConnectionState)

// errNotConnected is returned when publishing without a link.
var errNotConnected = errors.New("not connected")

// Reconciler owns the broker connection state and the inbound message flow.
type Reconciler struct {
	// transport is the broker link.
	transport Transport
	// opts are the validated options.
	opts Options
	// inbox buffers inbound messages until the next pass.
	inbox chan Message
	// observers are notified about connection state changes.
	observers []StateObserver
	// nextAttempt is the earliest time of the next connection attempt.
	nextAttempt time.Time
	// state is the connection state.
	state alarm.ConnectionState
	// attempts counts consecutive failures, clamped to MaxAttempts.
	attempts int
	// broken is set when a publish failed while connected.
	broken bool
	// stats counts absorbed failures.
	stats Stats
	// overflowed counts inbox overflows; written from transport goroutines.
	overflowed atomic.Int64
	// mu serializes handler registration with Close.
	mu sync.Mutex
	// closed rejects messages after Close.
	closed bool
}

// NewReconciler creates a reconciler over transport. Zero options fall back to defaults.
func NewReconciler(transport Transport, opts Options) *Reconciler {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}

	if opts.MaxPayloadSize <= 0 {
		opts.MaxPayloadSize = DefaultMaxPayloadSize
	}

	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}

	r := &Reconciler{
		transport: transport,
		opts:      opts,
		inbox:     make(chan Message, opts.InboxSize),
		state:     alarm.ConnectionDisconnected,
	}

	transport.SetMessageHandler(r.enqueue)

	return r
}

// OnStateChange registers an observer of connection state changes.
func (r *Reconciler) OnStateChange(observer StateObserver) {
	r.observers = append(r.observers, observer)
}

// State returns the connection state.
func (r *Reconciler) State() alarm.ConnectionState {
	return r.state
}

// Attempts returns the consecutive failure counter.
func (r *Reconciler) Attempts() int {
	return r.attempts
}

// NextAttempt returns the earliest time of the next connection attempt.
func (r *Reconciler) NextAttempt() time.Time {
	return r.nextAttempt
}

// Connected reports whether publishing is possible.
func (r *Reconciler) Connected() bool {
	return r.state == alarm.ConnectionConnected
}

// Stats returns the failure counters.
func (r *Reconciler) Stats() Stats {
	stats := r.stats
	stats.Overflowed = int(r.overflowed.Load())

	return stats
}

// Pass runs one reconciliation step: it maintains the connection and
// applies every queued inbound message to sink.
func (r *Reconciler) Pass(ctx context.Context, now time.Time, sink Sink) {
	r.maintain(ctx, now)
	r.drain(ctx, sink)
}

// Publish sends payload to topic. Outside Connected the message is dropped
// and counted as a soft failure; it is not retried because the next
// successful connection resynchronizes state through fresh subscriptions.
func (r *Reconciler) Publish(ctx context.Context, topic string, payload []byte) error {
	if r.state != alarm.ConnectionConnected || r.broken {
		r.stats.SoftFailures++

		logger.WarnKV(ctx, "Publish dropped", "topic", topic, "connection", r.state.String(),
			"soft_failures", r.stats.SoftFailures)

		return fmt.Errorf("%w: %w", alarm.ErrConnectionFailure, errNotConnected)
	}

	if err := r.transport.Publish(ctx, topic, payload); err != nil {
		r.broken = true

		logger.ErrorKV(ctx, "Publish failed", "topic", topic, "error", err)

		return fmt.Errorf("%w: publish: %w", alarm.ErrConnectionFailure, err)
	}

	logger.DebugKV(ctx, "Published", "topic", topic, "bytes", len(payload))

	return nil
}

// Close stops accepting inbound messages and disconnects the transport.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.transport.Disconnect()
}

// maintain advances the connection state machine.
func (r *Reconciler) maintain(ctx context.Context, now time.Time) {
	switch r.state {
	case alarm.ConnectionConnected:
		if r.broken || !r.transport.IsConnected() {
			logger.Warn(ctx, "Broker link lost")
			r.fail(ctx, now, errNotConnected)
		}
	case alarm.ConnectionBackoff:
		if now.Before(r.nextAttempt) {
			return
		}

		r.connect(ctx, now)
	case alarm.ConnectionDisconnected, alarm.ConnectionConnecting:
		r.connect(ctx, now)
	}
}

// connect makes one connection attempt and subscribes to both inbound topics.
func (r *Reconciler) connect(ctx context.Context, now time.Time) {
	r.setState(alarm.ConnectionConnecting)

	logger.DebugKV(ctx, "Connecting to broker", "attempt", r.attempts+1)

	if err := r.transport.Connect(ctx); err != nil {
		r.fail(ctx, now, err)
		return
	}

	for _, topic := range []string{r.opts.SharedTopic, r.opts.DeviceTopic} {
		if topic == "" {
			continue
		}

		if err := r.transport.Subscribe(ctx, topic); err != nil {
			r.transport.Disconnect()
			r.fail(ctx, now, fmt.Errorf("subscribe %s: %w", topic, err))

			return
		}
	}

	r.attempts = 0
	r.broken = false
	r.nextAttempt = time.Time{}
	r.setState(alarm.ConnectionConnected)

	logger.InfoKV(ctx, "Connected to broker", "shared_topic", r.opts.SharedTopic, "device_topic", r.opts.DeviceTopic)
}

// fail records a connection failure and schedules the next attempt.
func (r *Reconciler) fail(ctx context.Context, now time.Time, err error) {
	r.stats.ConnectFailures++
	r.broken = false

	if r.transport.IsConnected() {
		r.transport.Disconnect()
	}

	if r.attempts < r.opts.MaxAttempts {
		r.attempts++
	}

	delay := r.opts.RetryDelay
	if r.attempts >= r.opts.MaxAttempts {
		delay = r.opts.ReconnectDelay
	}

	r.nextAttempt = now.Add(delay)
	r.setState(alarm.ConnectionBackoff)

	logger.WarnKV(ctx, "Broker connection failed",
		"error", fmt.Errorf("%w: %w", alarm.ErrConnectionFailure, err),
		"attempts", r.attempts,
		"retry_in", delay.String())
}

// setState changes the connection state and notifies observers.
func (r *Reconciler) setState(state alarm.ConnectionState) {
	if r.state == state {
		return
	}

	r.state = state

	for _, observer := range r.observers {
		observer(state)
	}
}

// enqueue is the transport callback. Oversized payloads are not copied.
func (r *Reconciler) enqueue(topic string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	msg := Message{Topic: topic, Size: len(payload)}
	if len(payload) <= r.opts.MaxPayloadSize {
		msg.Payload = bytes.Clone(payload)
	}

	select {
	case r.inbox <- msg:
	default:
		r.overflowed.Add(1)
	}
}

// drain applies every queued message without blocking.
func (r *Reconciler) drain(ctx context.Context, sink Sink) {
	for {
		select {
		case msg := <-r.inbox:
			r.handle(ctx, msg, sink)
		default:
			return
		}
	}
}

// handle dispatches one inbound message by topic.
func (r *Reconciler) handle(ctx context.Context, msg Message, sink Sink) {
	if msg.Topic != r.opts.SharedTopic && msg.Topic != r.opts.DeviceTopic {
		logger.DebugKV(ctx, "Ignoring message on foreign topic", "topic", msg.Topic)
		return
	}

	var (
		update Update
		err    error
	)

	if msg.Payload == nil && msg.Size > r.opts.MaxPayloadSize {
		err = fmt.Errorf("%w: %d bytes exceeds %d", alarm.ErrMalformedMessage, msg.Size, r.opts.MaxPayloadSize)
	} else {
		update, err = Decode(msg.Payload, r.opts.MaxPayloadSize)
	}

	if err != nil {
		r.stats.Rejected++

		logger.WarnKV(ctx, "Inbound message rejected", "topic", msg.Topic, "bytes", msg.Size, "error", err)

		return
	}

	switch update.Kind {
	case UpdateState:
		logger.InfoKV(ctx, "Authoritative state received", "topic", msg.Topic, "state", update.State.String())
		sink.ApplyAuthoritative(ctx, update.State, update.Countdown)
	case UpdateAccess:
		sink.AccessReply(ctx, update.Access == "GRANTED", update.UID, update.Name)
	}
}
