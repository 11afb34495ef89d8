// Package panel runs the alarm display node: it owns the alarm state store
// and the single control loop that arbitrates credentials, reconciles state
// with the broker and schedules redraws.
package panel
