//go:build tinygo

// Command radioflash-recv runs on a node waiting to receive and flash
// an image. On completion it resets through the watchdog so the newly
// committed image runs from the reset vector, the same mechanism the
// original firmware's "restart into the new program" step used.
package main

import (
	"machine"

	"radioflash/flashio"
	"radioflash/hal"
	"radioflash/receiver"
)

const (
	radioChannel = 76
	recID        = 1
	userBase     = 0x10020000 // flash offset past this firmware's own image
)

type watchdogResetter struct{}

func (watchdogResetter) Reset() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
	}
}

func main() {
	clock := hal.HWClock{}
	radio := hal.NewNRF24Radio(machine.SPI0, machine.Pin(9), machine.Pin(10), machine.Pin(2), radioChannel)
	rng := hal.NewHWRNG(clock)
	flash := flashio.NewCommitter(hal.NewHWFlash(), hal.HWSleeper{}, 5)

	r := receiver.New(userBase, recID, radio, clock, hal.HWSleeper{}, rng, flash, watchdogResetter{})

	for {
		outcome := r.Run()
		if outcome == receiver.OutcomeComplete {
			return // watchdogResetter.Reset never returns; unreachable in practice
		}
		// OutcomeAbandoned: the sender went quiet, or a flash erase/write
		// failed fatally, before a complete image was committed. Wait for
		// the next attempt from scratch.
		r = receiver.New(userBase, recID, radio, clock, hal.HWSleeper{}, rng, flash, watchdogResetter{})
	}
}
