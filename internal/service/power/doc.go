// Package power restarts the machine the display node runs on.
package power
