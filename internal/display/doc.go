// Package display decides when the alarm display must be redrawn and renders it.
//
// The Scheduler coalesces state change notifications, the periodic refresh and
// the entry delay countdown into at most one DisplayRequest per loop pass.
package display
