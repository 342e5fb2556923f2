// Package flashio implements the per-page flash commit wrapper:
// erase/write through a hal.FlashDevice, retrying cooperatively on
// ErrBusy, fatal on anything else. Spec invariant: the wrapper never
// issues a write to a slot it has not erased since last boot.
package flashio

import (
	"fmt"

	"radioflash/hal"
)

// Committer wraps a hal.FlashDevice with the retry-until-success (or
// fatal) policy spec.md §4.4 describes.
type Committer struct {
	dev     hal.FlashDevice
	sleeper hal.Sleeper
	// retryWait is how long to cooperatively wait between BUSY polls.
	retryWait uint32
	erased    map[uint32]bool
}

// NewCommitter creates a Committer over dev, using sleeper for the
// low-power wait between BUSY retries.
func NewCommitter(dev hal.FlashDevice, sleeper hal.Sleeper, retryWaitMS uint32) *Committer {
	return &Committer{
		dev:       dev,
		sleeper:   sleeper,
		retryWait: retryWaitMS,
		erased:    make(map[uint32]bool),
	}
}

// Erase issues a page erase at addr, retrying indefinitely on
// hal.ErrBusy. Any other error is fatal and returned to the caller.
func (c *Committer) Erase(addr uint32) error {
	for {
		err := c.dev.ErasePage(addr)
		switch {
		case err == nil:
			c.erased[addr] = true
			return nil
		case err == hal.ErrBusy:
			c.sleeper.Sleep(c.retryWait)
		default:
			return fmt.Errorf("flashio: erase 0x%x: %w", addr, err)
		}
	}
}

// Write commits buf to addr, retrying indefinitely on hal.ErrBusy. It
// panics if addr has not been erased through this Committer since
// construction — a caller bug, not a runtime condition, exactly as
// spec.md's invariant 3 requires ("no other write to that slot
// intervenes between erase and the single commit").
func (c *Committer) Write(addr uint32, buf []byte) error {
	if !c.erased[addr] {
		panic(fmt.Sprintf("flashio: write to un-erased page at 0x%x", addr))
	}
	for {
		err := c.dev.Write(addr, buf)
		switch {
		case err == nil:
			return nil
		case err == hal.ErrBusy:
			c.sleeper.Sleep(c.retryWait)
		default:
			return fmt.Errorf("flashio: write 0x%x: %w", addr, err)
		}
	}
}
