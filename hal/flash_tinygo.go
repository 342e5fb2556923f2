//go:build tinygo

package hal

import (
	"runtime/volatile"
	"unsafe"
)

// RP2040 QMI (QSPI memory interface) status register: bit 2 is BUSY,
// set while a flash program/erase sequenced through the boot ROM's
// flash helper routines is in flight. A single non-blocking check of
// this bit is how the original firmware's "may return BUSY" contract
// is realized on this target — retrying is flashio's job, not this
// collaborator's.
const (
	qmiBase      = 0x400d0000
	qmiDirectCSR = qmiBase + 0x00
	qmiBusyBit   = 1 << 2
)

var qmiCSR = (*volatile.Register32)(unsafe.Pointer(uintptr(qmiDirectCSR)))

func qmiBusy() bool {
	return qmiCSR.Get()&qmiBusyBit != 0
}

// flashROMEraseFunc and flashROMWriteFunc are meant to be the boot
// ROM's flash_range_erase/flash_range_program trampolines. THIS FILE
// DOES NOT RESOLVE THEM: nothing in this package or its callers ever
// assigns them (no init, no //go:linkname, no boot-ROM function-table
// lookup), so on real hardware HWFlash.ErasePage/Write always take the
// ErrFlashFault branch below and never touch flash. Wiring this
// properly needs a correct RP2040 boot-ROM function-table walk (the
// two-byte codes and table-pointer indirection at a fixed ROM address)
// that this repo does not implement and that no example in the pack
// shows either — getting it wrong silently corrupts flash on real
// hardware, which is worse than an honest stub. See DESIGN.md for the
// open item. They remain var, not const, purely so a future
// implementation (or a test build) can assign them.
var (
	flashROMEraseFunc func(addr uint32, count uint32)
	flashROMWriteFunc func(addr uint32, data []byte)
)

const pageSize = 4096

// HWFlash implements FlashDevice via the RP2040 boot ROM flash calls.
// It makes exactly one attempt per call and reports ErrBusy for the
// caller (flashio) to retry with a cooperative wait — this collaborator
// never blocks internally, matching hal.FlashDevice's contract.
//
// UNIMPLEMENTED on real hardware: see the flashROMEraseFunc/
// flashROMWriteFunc comment above. ErasePage/Write always return
// ErrFlashFault until those are resolved; flashio.Committer already
// surfaces that as a fatal error (not ErrBusy), so a board running this
// backend abandons cleanly rather than claiming a successful write it
// never made.
type HWFlash struct{}

// NewHWFlash creates a flash backend bound to this board's boot ROM.
func NewHWFlash() *HWFlash {
	return &HWFlash{}
}

// ErasePage implements FlashDevice.ErasePage.
func (f *HWFlash) ErasePage(addr uint32) error {
	if flashROMEraseFunc == nil {
		return ErrFlashFault
	}
	if qmiBusy() {
		return ErrBusy
	}
	flashROMEraseFunc(addr, pageSize)
	return nil
}

// Write implements FlashDevice.Write.
func (f *HWFlash) Write(addr uint32, data []byte) error {
	if flashROMWriteFunc == nil {
		return ErrFlashFault
	}
	if qmiBusy() {
		return ErrBusy
	}
	flashROMWriteFunc(addr, data)
	return nil
}
