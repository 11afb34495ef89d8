package messaging

import "context"

// MessageHandler receives inbound messages. It may be called from any goroutine.
type MessageHandler func(topic string, payload []byte)

// Transport is the broker link used by the reconciler.
type Transport interface {
	// Connect makes one connection attempt. It returns once the attempt
	// succeeded or failed and is not retried internally.
	Connect(ctx context.Context) error
	// IsConnected reports whether the link is currently usable.
	IsConnected() bool
	// Subscribe subscribes to topic; messages go to the registered handler.
	Subscribe(ctx context.Context, topic string) error
	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// SetMessageHandler registers the inbound message callback.
	SetMessageHandler(handler MessageHandler)
	// Disconnect closes the link.
	Disconnect()
}
