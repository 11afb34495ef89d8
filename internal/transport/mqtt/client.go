package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/oshokin/alarm-display/internal/logger"
	"github.com/oshokin/alarm-display/internal/messaging"
)

const (
	// DefaultConnectTimeout bounds one connection attempt.
	DefaultConnectTimeout = 3 * time.Second
	// DefaultOperationTimeout bounds subscribe and publish round trips.
	DefaultOperationTimeout = 2 * time.Second

	// qosAtMostOnce is the delivery level of every subscription and publish.
	qosAtMostOnce byte = 0
	// disconnectQuiesce is how long Disconnect waits for in-flight work, in milliseconds.
	disconnectQuiesce uint = 250
)

var (
	// errTimeout is returned when the broker does not answer in time.
	errTimeout = errors.New("broker operation timed out")
	// errNotConnected is returned when the client has no link.
	errNotConnected = errors.New("not connected")
)

// Options configures the broker connection.
type Options struct {
	// BrokerURL is the broker address, e.g. "tcp://broker.local:1883".
	BrokerURL string
	// ClientID is the MQTT client identifier.
	ClientID string
	// Username is the optional broker user.
	Username string
	// Password is the optional broker password.
	Password string
	// TLS enables an encrypted connection.
	TLS bool
	// ConnectTimeout bounds one connection attempt.
	ConnectTimeout time.Duration
	// OperationTimeout bounds subscribe and publish round trips.
	OperationTimeout time.Duration
	// Trace logs paho's packet-level debug output.
	Trace bool
}

// Client is a single broker link without automatic reconnection;
// the reconnect policy is owned by the caller.
type Client struct {
	// client is the underlying paho client.
	client paho.Client
	// opts is the validated configuration.
	opts Options
	// mu protects handler.
	mu sync.RWMutex
	// handler receives inbound messages.
	handler messaging.MessageHandler
}

// New creates a client. Nothing is dialed until Connect.
func New(ctx context.Context, opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}

	c := &Client{opts: opts}

	routePahoLogs(ctx, opts.Trace)

	ctx = logger.WithFields(logger.WithName(ctx, "mqtt"), zap.String("broker", opts.BrokerURL))

	clientOptions := paho.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOrderMatters(false).
		SetDefaultPublishHandler(c.onMessage).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.WarnKV(ctx, "Broker connection lost", "error", err)
		})

	if opts.Username != "" {
		clientOptions.SetUsername(opts.Username)
		clientOptions.SetPassword(opts.Password)
	}

	if opts.TLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	c.client = paho.NewClient(clientOptions)

	return c
}

// Connect makes one connection attempt.
func (c *Client) Connect(ctx context.Context) error {
	if err := wait(ctx, c.client.Connect(), c.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("connect to %s: %w", c.opts.BrokerURL, err)
	}

	return nil
}

// IsConnected reports whether the link is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Subscribe subscribes to topic; messages go to the registered handler.
func (c *Client) Subscribe(ctx context.Context, topic string) error {
	if !c.IsConnected() {
		return errNotConnected
	}

	if err := wait(ctx, c.client.Subscribe(topic, qosAtMostOnce, c.onMessage), c.opts.OperationTimeout); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	return nil
}

// Publish sends payload to topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.IsConnected() {
		return errNotConnected
	}

	if err := wait(ctx, c.client.Publish(topic, qosAtMostOnce, false, payload), c.opts.OperationTimeout); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

// SetMessageHandler registers the inbound message callback.
func (c *Client) SetMessageHandler(handler messaging.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler = handler
}

// Disconnect closes the link.
func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(disconnectQuiesce)
	}
}

// onMessage forwards a paho message to the registered handler.
func (c *Client) onMessage(_ paho.Client, message paho.Message) {
	c.dispatch(message.Topic(), message.Payload())
}

// dispatch calls the handler if one is registered.
func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(topic, payload)
	}
}

// wait blocks until the token completes, the timeout passes or ctx is done.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
