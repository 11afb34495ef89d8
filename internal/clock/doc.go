// Package clock provides an injectable time source.
//
// Engine components receive a Clock instead of calling time.Now directly so
// tests can move time forward deterministically with a FakeClock.
package clock
