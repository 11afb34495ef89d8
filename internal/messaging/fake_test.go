package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
)

// errTestConnect is returned by fakeTransport when connecting is set to fail.
var errTestConnect = errors.New("test connect error")

// fakeTransport is an in-memory Transport for reconciler tests.
type fakeTransport struct {
	// mu protects the fields below.
	mu sync.Mutex
	// failConnect makes Connect fail.
	failConnect bool
	// failPublish makes Publish fail.
	failPublish bool
	// connected is the link state.
	connected bool
	// connects counts Connect calls.
	connects int
	// subscriptions records subscribed topics in order.
	subscriptions []string
	// published records published payloads by topic.
	published map[string][][]byte
	// handler is the registered inbound callback.
	handler MessageHandler
}

// newFakeTransport returns an empty fake transport.
func newFakeTransport() *fakeTransport {
	return &fakeTransport{published: make(map[string][][]byte)}
}

// Connect records the attempt and fails when configured to.
func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++
	if f.failConnect {
		return errTestConnect
	}

	f.connected = true

	return nil
}

// IsConnected reports the fake link state.
func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected
}

// Subscribe records the topic.
func (f *fakeTransport) Subscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscriptions = append(f.subscriptions, topic)

	return nil
}

// Publish records the payload.
func (f *fakeTransport) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failPublish {
		return errTestConnect
	}

	f.published[topic] = append(f.published[topic], payload)

	return nil
}

// SetMessageHandler stores the callback.
func (f *fakeTransport) SetMessageHandler(handler MessageHandler) {
	f.handler = handler
}

// Disconnect drops the link.
func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = false
}

// deliver simulates an inbound message.
func (f *fakeTransport) deliver(topic, payload string) {
	f.handler(topic, []byte(payload))
}

// recordingSink records applied updates.
type recordingSink struct {
	// states are the applied states in order.
	states []alarm.State
	// countdowns are the countdowns passed with each state.
	countdowns []int
	// replies are the access verdicts.
	replies []bool
}

// ApplyAuthoritative records the update.
func (s *recordingSink) ApplyAuthoritative(_ context.Context, state alarm.State, countdown int) {
	s.states = append(s.states, state)
	s.countdowns = append(s.countdowns, countdown)
}

// AccessReply records the verdict.
func (s *recordingSink) AccessReply(_ context.Context, granted bool, _, _ string) {
	s.replies = append(s.replies, granted)
}
