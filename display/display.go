// Package display provides optional, purely cosmetic progress
// reporting for a flashing session: a debug-log writer in the shape of
// the teacher firmware's DebugPrintln, and (on TinyGo builds) a pixel
// progress bar on an attached Displayer. Neither is read by any
// correctness-relevant code path; a node with no display attached
// behaves identically.
package display

import "sync"

// Writer is a platform debug-output sink, e.g. a UART or USB CDC port.
type Writer func(string)

var (
	mu     sync.Mutex
	writer Writer = func(string) {}
)

// SetWriter installs the platform-specific debug output function.
func SetWriter(w Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = func(string) {}
	}
	writer = w
}

// Log writes msg using the installed Writer. The default Writer is a
// no-op, so Log is always safe to call even before SetWriter.
func Log(msg string) {
	mu.Lock()
	w := writer
	mu.Unlock()
	w(msg)
}
