// Package health exposes the broker link status of the display node
// through the standard gRPC health checking protocol.
package health
