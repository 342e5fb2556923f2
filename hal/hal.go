// Package hal defines the external collaborator interfaces the core
// protocol (sender, receiver) is built against, and provides a
// simulated in-process implementation used by property and scenario
// tests. Hardware backends live alongside these interfaces behind
// tinygo build tags.
package hal

import "errors"

// ErrBusy is returned by FlashDevice operations that must be retried;
// it is never returned by Radio, Clock, Sleeper or RNG, which never
// fail.
var ErrBusy = errors.New("hal: flash controller busy")

// ErrFlashFault is returned by FlashDevice operations for any error
// that is not transient BUSY. It is fatal to the caller.
var ErrFlashFault = errors.New("hal: flash controller fault")

// Radio is the best-effort broadcast datagram service the protocol is
// carried over. Send never fails and never blocks long; Recv is
// non-blocking and returns ok=false when nothing is waiting.
type Radio interface {
	Send(frame []byte)
	Recv() (frame []byte, ok bool)
}

// Clock reports monotonic milliseconds since an arbitrary epoch. It
// wraps at 32 bits; all comparisons in this module use wraparound-safe
// signed-delta arithmetic (see Elapsed).
type Clock interface {
	NowMS() uint32
}

// Sleeper cooperatively yields for at least ms milliseconds.
type Sleeper interface {
	Sleep(ms uint32)
}

// RNG returns a uniform pseudo-random integer in [0, n). Implementations
// need not be cryptographically secure; this is jitter, not security.
type RNG interface {
	Intn(n int) int
}

// FlashDevice is the supervisor-call trampoline for page erase/write.
// Both operations may return ErrBusy, which callers must retry; any
// other error is fatal.
type FlashDevice interface {
	ErasePage(addr uint32) error
	Write(addr uint32, data []byte) error
}

// Elapsed returns now-since using 32-bit wraparound-safe signed
// arithmetic, so a timer armed shortly before the millisecond counter
// wraps is still measured correctly. Grounded on the teacher's
// int32(a-b) comparison idiom in its timer scheduler.
func Elapsed(now, since uint32) uint32 {
	return uint32(int32(now - since))
}

// Due reports whether now has reached or passed deadline, using the
// same wraparound-safe signed comparison as Elapsed. Use this (not
// Elapsed) for "has this future deadline arrived" checks.
func Due(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}
