// Package config defines the display node settings and provides helpers to
// load, validate and save them in YAML format.
//
// Settings are read once at startup and treated as immutable afterwards.
// Validate fills every omitted timing and topic with its default.
package config
