//go:build tinygo

package hal

import (
	"runtime/volatile"
	"time"
	"unsafe"
)

// RP2040/RP2350 timer peripheral, 1MHz free-running 64-bit counter.
// Grounded on the teacher's own targets/rp2040/clock.go register map.
const (
	timerBase     = 0x40054000
	timerTIMEHR   = timerBase + 0x08 // high word, latched by a read of 0x0C
	timerTIMERAWL = timerBase + 0x0C
)

var (
	timerHR   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMEHR)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// HWClock reads the RP2040 hardware microsecond timer and reports
// milliseconds, matching Clock's documented units. The full 64-bit
// count is divided before truncating, so the millisecond value wraps at
// 32 bits as Clock documents.
type HWClock struct{}

// NowMS implements Clock.
func (HWClock) NowMS() uint32 {
	lo := timerRAWL.Get()
	hi := timerHR.Get()
	return uint32((uint64(hi)<<32 | uint64(lo)) / 1000)
}

// HWSleeper cooperatively yields using the runtime scheduler, which on
// TinyGo parks the current goroutine rather than busy-waiting.
type HWSleeper struct{}

// Sleep implements Sleeper.
func (HWSleeper) Sleep(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
