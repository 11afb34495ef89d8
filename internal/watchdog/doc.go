// Package watchdog detects a stalled control loop and forces a restart.
//
// The loop calls Beat at the start of every pass. Run checks the time since
// the last beat on its own ticker, independent of the loop, and calls the
// restart function once the ceiling is exceeded. There is no graceful
// degradation: a stalled alarm node is restarted unconditionally.
package watchdog
