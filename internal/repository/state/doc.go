// Package state implements persistence for the last authoritative alarm state.
//
// The FileRepository stores the state as JSON on disk so the display can show
// the last known value after a restart until the broker confirms it. It
// exposes a Repository interface that the panel service depends on.
package state
