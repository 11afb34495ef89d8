// Package logger wraps zap for the display node.
//
// A global sugared logger writes to stderr (stdout is the display). The
// logger travels in the context: WithName, WithKV and WithFields scope it,
// WithMinLevel detaches it from the global level, and the package-level
// helpers (InfoKV, Warnf, ...) log through whatever the context carries.
package logger
