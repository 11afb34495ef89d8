// Package alarm contains core domain types for the alarm display node.
//
// It defines the closed State enumeration with its wire parser, the
// Credential union produced by badge and keypad input, the broker
// ConnectionState, DisplayRequest records and the sentinel errors shared
// by the engine components.
package alarm
