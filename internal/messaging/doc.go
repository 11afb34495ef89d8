// Package messaging reconciles the node with the controlling system over MQTT.
//
// The Reconciler owns the broker connection state machine with bounded quick
// retries followed by an indefinitely repeated long backoff, publishes
// authentication attempts only while connected, and turns inbound messages
// from the shared and per-device topics into authoritative state updates.
//
// Inbound messages are handed over by the transport on its own goroutines;
// they are queued in a bounded inbox and applied only from the control loop.
package messaging
