//go:build tinygo

// Command radioflash-send runs on the node that already holds the
// image and broadcasts it to every receiver in radio range.
package main

import (
	"machine"

	"radioflash/diagnostics"
	"radioflash/hal"
	"radioflash/sender"
	"radioflash/userprog"
)

const radioChannel = 76

func main() {
	clock := hal.HWClock{}
	radio := hal.NewNRF24Radio(machine.SPI0, machine.Pin(9), machine.Pin(10), machine.Pin(2), radioChannel)
	rng := hal.NewHWRNG(clock)

	var reporter sender.Reporter
	if usb := machine.USBCDC; usb != nil {
		reporter = diagnostics.NewSerialReporter(usb)
	}

	image := userprog.Default()
	s := sender.New(image, radio, clock, hal.HWSleeper{}, rng, reporter)
	s.Run()

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
	}
}
