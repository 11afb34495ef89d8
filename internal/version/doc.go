// Package version exposes build metadata of alarm-display.
//
// Version, Commit and BuildTime are injected with -ldflags at build time.
package version
