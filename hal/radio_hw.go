//go:build tinygo

package hal

import (
	"machine"
	"time"
)

// NRF24Radio is a minimal NRF24L01+ SPI driver adapted for the
// HAL's broadcast Radio contract: one fixed 32-byte payload pipe, no
// auto-ack (the wire protocol has no acknowledgement concept at all —
// reliability is built entirely out of NAK/retransmission above this
// layer), dynamic payload disabled. Register layout and init sequence
// are grounded on the pack's standalone nrf24 reference driver,
// trimmed to exactly what a broadcast-only datagram service needs.
type NRF24Radio struct {
	spi     machine.SPI
	ce      machine.Pin
	csn     machine.Pin
	irq     machine.Pin
	scratch [Header + Payload + 1]byte
	rxQueue [][]byte
	rxState intState
}

const (
	nrfCONFIG     = 0x00
	nrfEN_AA      = 0x01
	nrfEN_RXADDR  = 0x02
	nrfSETUP_AW   = 0x03
	nrfRF_CH      = 0x05
	nrfRF_SETUP   = 0x06
	nrfSTATUS     = 0x07
	nrfRX_ADDR_P0 = 0x0A
	nrfTX_ADDR    = 0x10
	nrfRX_PW_P0   = 0x11

	nrfW_REGISTER   = 0x20
	nrfR_RX_PAYLOAD = 0x61
	nrfW_TX_PAYLOAD = 0xA0
	nrfFLUSH_TX     = 0xE1
	nrfFLUSH_RX     = 0xE2
	nrfNOP          = 0xFF

	nrfPWR_UP  = 1 << 1
	nrfPRIM_RX = 1 << 0
	nrfRX_DR   = 1 << 6
	nrfEN_CRC  = 1 << 3
)

// broadcastAddr is the fixed 5-byte pipe address every node in the
// cell shares — there is no per-node addressing at this layer, only
// the radio-group concept spec.md's "same radio cell" implies.
var broadcastAddr = [5]byte{0xE7, 0xE7, 0xE7, 0xE7, 0xE7}

// NewNRF24Radio configures spi/ce/csn/irq as a broadcast-only radio
// on the given channel and puts it into continuous receive mode.
func NewNRF24Radio(spi machine.SPI, ce, csn, irq machine.Pin, channel uint8) *NRF24Radio {
	r := &NRF24Radio{spi: spi, ce: ce, csn: csn, irq: irq}

	ce.Configure(machine.PinConfig{Mode: machine.PinOutput})
	csn.Configure(machine.PinConfig{Mode: machine.PinOutput})
	csn.High()
	ce.Low()

	irq.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	irq.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		r.onIRQ()
	})

	r.writeRegister(nrfCONFIG, 0)
	r.command(nrfFLUSH_TX)
	r.command(nrfFLUSH_RX)
	r.writeRegister(nrfSTATUS, nrfRX_DR)
	r.writeRegister(nrfRF_CH, channel)
	r.writeRegister(nrfSETUP_AW, 0x03) // 5-byte address width
	r.writeRegister(nrfRF_SETUP, 1<<3) // 2Mbps, max power
	r.writeRegister(nrfEN_AA, 0)       // no auto-ack: the wire has none
	r.writeRegister(nrfEN_RXADDR, 0x01)
	r.writeRegisterN(nrfRX_ADDR_P0, broadcastAddr[:])
	r.writeRegisterN(nrfTX_ADDR, broadcastAddr[:])
	r.writeRegister(nrfRX_PW_P0, Header+Payload)
	r.writeRegister(nrfCONFIG, nrfPWR_UP|nrfPRIM_RX|nrfEN_CRC)
	time.Sleep(2 * time.Millisecond)

	ce.High()
	return r
}

func (r *NRF24Radio) transfer(n int) []byte {
	r.csn.Low()
	r.spi.Tx(r.scratch[:n], r.scratch[:n])
	r.csn.High()
	return r.scratch[1:n]
}

func (r *NRF24Radio) command(cmd byte) {
	r.scratch[0] = cmd
	r.transfer(1)
}

func (r *NRF24Radio) writeRegister(reg, val byte) {
	r.scratch[0] = nrfW_REGISTER | reg
	r.scratch[1] = val
	r.transfer(2)
}

func (r *NRF24Radio) writeRegisterN(reg byte, data []byte) {
	r.scratch[0] = nrfW_REGISTER | reg
	copy(r.scratch[1:], data)
	r.transfer(1 + len(data))
}

func (r *NRF24Radio) readStatus() byte {
	r.scratch[0] = nrfNOP
	r.transfer(1)
	return r.scratch[0]
}

// onIRQ runs in interrupt context when RX_DR fires. It only ever
// appends to rxQueue under the interrupt-safe critical section —
// exactly the "merely deposits a frame into a queue drained by the
// next receive call" boundary spec.md §5 requires.
func (r *NRF24Radio) onIRQ() {
	if r.readStatus()&nrfRX_DR == 0 {
		return
	}
	r.scratch[0] = nrfR_RX_PAYLOAD
	for i := 1; i <= Header+Payload; i++ {
		r.scratch[i] = nrfNOP
	}
	data := r.transfer(1 + Header + Payload)
	frame := make([]byte, len(data))
	copy(frame, data)
	r.writeRegister(nrfSTATUS, nrfRX_DR)

	state := disableInterrupts()
	r.rxQueue = append(r.rxQueue, frame)
	restoreInterrupts(state)
}

// Recv implements Radio by draining the IRQ-fed queue.
func (r *NRF24Radio) Recv() ([]byte, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	if len(r.rxQueue) == 0 {
		return nil, false
	}
	frame := r.rxQueue[0]
	r.rxQueue = r.rxQueue[1:]
	return frame, true
}

// Send implements Radio: best-effort, never returns an error. It
// briefly drops out of RX to transmit then resumes listening, the
// same stop/transmit/resume dance the reference driver uses.
func (r *NRF24Radio) Send(frame []byte) {
	r.ce.Low()
	r.writeRegister(nrfCONFIG, nrfPWR_UP|nrfEN_CRC)

	r.scratch[0] = nrfW_TX_PAYLOAD
	n := copy(r.scratch[1:], frame)
	for i := n + 1; i <= Header+Payload; i++ {
		r.scratch[i] = 0
	}
	r.transfer(1 + Header + Payload)

	r.ce.High()
	time.Sleep(15 * time.Microsecond)
	r.ce.Low()

	deadline := time.Now().Add(2 * time.Millisecond)
	for time.Now().Before(deadline) {
		if r.readStatus()&(1<<5) != 0 { // TX_DS
			break
		}
	}
	r.command(nrfFLUSH_TX)
	r.writeRegister(nrfSTATUS, 1<<5)

	r.writeRegister(nrfCONFIG, nrfPWR_UP|nrfPRIM_RX|nrfEN_CRC)
	r.ce.High()
}
