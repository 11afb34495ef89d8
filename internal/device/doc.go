// Package device provides credential sources backed by files and terminals:
// a line-oriented RFID badge reader and a console keypad.
// Both read on their own goroutine and expose non-blocking polls.
package device
