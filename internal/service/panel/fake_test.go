package panel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
	"github.com/oshokin/alarm-display/internal/messaging"
	repo "github.com/oshokin/alarm-display/internal/repository/state"
)

// errTestPublish is returned by fakes configured to fail.
var errTestPublish = errors.New("test publish error")

// memoryRepository is a minimal in-memory Repository implementation for tests.
type memoryRepository struct {
	// snapshot is returned from Load.
	snapshot *repo.Snapshot
	// loadErr is returned from Load.
	loadErr error
	// saved records every snapshot passed to Save.
	saved []*repo.Snapshot
}

// Load returns the configured snapshot and error.
func (m *memoryRepository) Load(context.Context) (*repo.Snapshot, error) {
	return m.snapshot, m.loadErr
}

// Save records the snapshot.
func (m *memoryRepository) Save(_ context.Context, snapshot *repo.Snapshot) error {
	m.saved = append(m.saved, snapshot)

	return nil
}

// recordingPublisher records published attempts.
type recordingPublisher struct {
	// fail makes Publish return an error.
	fail bool
	// topics are the publish topics in order.
	topics []string
	// attempts are the decoded payloads in order.
	attempts []alarm.Attempt
}

// Publish decodes and records the payload.
func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	if p.fail {
		return errTestPublish
	}

	var attempt alarm.Attempt
	if err := json.Unmarshal(payload, &attempt); err != nil {
		return err
	}

	p.topics = append(p.topics, topic)
	p.attempts = append(p.attempts, attempt)

	return nil
}

// recordingListener records state notifications.
type recordingListener struct {
	// states are the notified states in order.
	states []alarm.State
	// countdowns are the countdowns passed with each state.
	countdowns []int
	// redraws counts redraw requests.
	redraws int
}

// StateChanged records the notification.
func (l *recordingListener) StateChanged(state alarm.State, countdown int) {
	l.states = append(l.states, state)
	l.countdowns = append(l.countdowns, countdown)
}

// Redraw counts the request.
func (l *recordingListener) Redraw() {
	l.redraws++
}

// recordingRenderer records rendered requests and the message line.
type recordingRenderer struct {
	// requests are the rendered requests in order.
	requests []alarm.DisplayRequest
	// message is the last message set.
	message string
}

// Render records the request.
func (r *recordingRenderer) Render(_ context.Context, request alarm.DisplayRequest) error {
	r.requests = append(r.requests, request)

	return nil
}

// SetMessage records the message.
func (r *recordingRenderer) SetMessage(message string) {
	r.message = message
}

// last returns the most recent request.
func (r *recordingRenderer) last() alarm.DisplayRequest {
	return r.requests[len(r.requests)-1]
}

// fakeTransport is an in-memory broker link.
type fakeTransport struct {
	// mu protects the fields below.
	mu sync.Mutex
	// connected is the link state.
	connected bool
	// subscriptions records subscribed topics in order.
	subscriptions []string
	// published records payloads by topic.
	published map[string][][]byte
	// handler is the registered inbound callback.
	handler messaging.MessageHandler
}

// newFakeTransport returns an empty fake transport.
func newFakeTransport() *fakeTransport {
	return &fakeTransport{published: make(map[string][][]byte)}
}

// Connect always succeeds.
func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = true

	return nil
}

// IsConnected reports the link state.
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

	f.published[topic] = append(f.published[topic], payload)

	return nil
}

// SetMessageHandler stores the callback.
func (f *fakeTransport) SetMessageHandler(handler messaging.MessageHandler) {
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

// attempts decodes every attempt published on topic.
func (f *fakeTransport) attempts(topic string) []alarm.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]alarm.Attempt, 0, len(f.published[topic]))

	for _, payload := range f.published[topic] {
		var attempt alarm.Attempt
		if err := json.Unmarshal(payload, &attempt); err == nil {
			result = append(result, attempt)
		}
	}

	return result
}

// queuedBadges is a badge reader fed by the test.
type queuedBadges struct {
	// uids are returned in order by PollUID.
	uids []string
}

// PollUID pops the next UID.
func (q *queuedBadges) PollUID() (string, bool) {
	if len(q.uids) == 0 {
		return "", false
	}

	uid := q.uids[0]
	q.uids = q.uids[1:]

	return uid, true
}

// queuedKeys is a keypad fed by the test.
type queuedKeys struct {
	// keys are returned in order by PollKey.
	keys []rune
}

// PollKey pops the next key.
func (q *queuedKeys) PollKey() (rune, bool) {
	if len(q.keys) == 0 {
		return 0, false
	}

	key := q.keys[0]
	q.keys = q.keys[1:]

	return key, true
}

// press queues every key of sequence.
func (q *queuedKeys) press(sequence string) {
	q.keys = append(q.keys, []rune(sequence)...)
}
