// Package credential merges badge and keypad input into authentication credentials.
//
// The Adapter polls the two input devices without blocking, the Gate rate
// limits repeated badge reads, and the Accumulator turns individual key
// presses into a bounded PIN that is submitted with '#' and cancelled with '*'.
package credential
