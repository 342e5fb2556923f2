//go:build tinygo

package hal

import "runtime/interrupt"

// intState wraps the interrupt state tinygo's runtime/interrupt
// package hands back from Disable, so NRF24Radio's IRQ-fed receive
// queue can be safely drained from the main loop while the edge watcher
// callback appends to it from interrupt context.
type intState interrupt.State

func disableInterrupts() intState {
	return intState(interrupt.Disable())
}

func restoreInterrupts(s intState) {
	interrupt.Restore(interrupt.State(s))
}
