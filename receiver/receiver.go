// Package receiver implements the receiver half of the radio image
// transfer protocol: spec.md §4.3. Like sender, it is built entirely
// against injected collaborators and owns no hardware directly.
package receiver

import (
	"radioflash/flashio"
	"radioflash/hal"
	"radioflash/wireframe"
)

// Timing constants, shared with sender (spec.md §5).
const (
	TSleepMS  = 100
	NAKWindow = 3 * TSleepMS

	recoveryWatchdogMS    = 4 * NAKWindow
	abandonmentWatchdogMS = 100 * NAKWindow
)

// pageState is the receiver's per-page sub-state.
type pageState int

const (
	stateReceiving pageState = iota
	stateRecovery
)

// Outcome is what Run returns once the receiver stops running.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeAbandoned
)

// Resetter is invoked once the transfer completes, right after the
// receiver's STATS frame is sent and before Run returns
// OutcomeComplete: on real hardware this resets the processor so the
// committed image is entered from the reset vector. The receiver does
// not disable the radio before calling it. Host tests use a fake that
// just records the call.
type Resetter interface {
	Reset()
}

// Receiver accumulates one page at a time into a page-sized buffer,
// tracks which sequence numbers are present, and commits each
// completed page to flashio before moving on to the next.
type Receiver struct {
	radio   hal.Radio
	clock   hal.Clock
	sleeper hal.Sleeper
	rng     hal.RNG
	flash   *flashio.Committer
	reset   Resetter

	userBase uint32
	recID    uint16

	currentPage     uint16
	totalPages      uint16
	totalPackets    uint16
	packetsThisPage int
	state           pageState
	sessionStarted  bool
	flashFailed     bool

	buffer   []byte
	present  []bool
	heardNAK []bool

	lastRxTime  uint32
	lastNakTime uint32
	readyToNak  bool
	readyAt     uint32

	nakRoundsEmitted int
	packetsSentAsNAK int
	firstPacketAt    uint32
}

// New creates a Receiver that will commit pages starting at userBase,
// in wireframe.Page-sized slots, reporting recID in its end-of-session
// STATS frame.
func New(userBase uint32, recID uint16, radio hal.Radio, clock hal.Clock, sleeper hal.Sleeper, rng hal.RNG, flash *flashio.Committer, reset Resetter) *Receiver {
	r := &Receiver{
		radio:    radio,
		clock:    clock,
		sleeper:  sleeper,
		rng:      rng,
		flash:    flash,
		reset:    reset,
		userBase: userBase,
		recID:    recID,
	}
	r.resetPageState(1, wireframe.PPP)
	return r
}

func (r *Receiver) resetPageState(page uint16, packetsThisPage int) {
	r.currentPage = page
	r.packetsThisPage = packetsThisPage
	r.state = stateReceiving
	r.buffer = make([]byte, wireframe.Page)
	r.present = make([]bool, packetsThisPage+1) // 1-based
	r.heardNAK = make([]bool, packetsThisPage+1)
	r.readyToNak = false
}

// Run processes frames and background ticks until the image is fully
// received and committed (OutcomeComplete) or the abandonment
// watchdog fires (OutcomeAbandoned).
func (r *Receiver) Run() Outcome {
	for {
		if frame, ok := r.radio.Recv(); ok {
			if f, err := wireframe.Parse(frame); err == nil {
				r.handleFrame(f)
			}
		}

		if r.flashFailed {
			// A flash erase/write returned a fatal (non-ErrBusy) error.
			// spec.md §7: abandon without resetting.
			return OutcomeAbandoned
		}

		if outcome, done := r.tick(); done {
			return outcome
		}

		r.sleeper.Sleep(TSleepMS / 2)
	}
}

func (r *Receiver) handleFrame(f wireframe.Frame) {
	switch f.Kind {
	case wireframe.KindData:
		r.handleData(f)
	case wireframe.KindNAK:
		r.handleNAK(f)
	case wireframe.KindEndOfPage:
		r.handleEndOfPage(f)
	}
}

func (r *Receiver) handleData(f wireframe.Frame) {
	if f.Page < r.currentPage {
		return // stale, from a prior page
	}
	if f.Page > r.currentPage+1 {
		return // protocol error per spec.md §9 open question (iii)
	}
	if f.Page != r.currentPage {
		return
	}
	if int(f.Seq) < 1 || int(f.Seq) > r.packetsThisPage {
		return
	}
	if r.present[f.Seq] {
		return
	}

	if r.currentPage == 1 && f.Seq == 1 && !r.sessionStarted {
		r.sessionStarted = true
		r.totalPackets = f.Total
		r.totalPages = uint16(ceilDivU(int(f.Total), wireframe.PPP))
		r.packetsThisPage = r.packetsInPage(1)
		if len(r.present) < r.packetsThisPage+1 {
			r.present = make([]bool, r.packetsThisPage+1)
			r.heardNAK = make([]bool, r.packetsThisPage+1)
		}
		r.firstPacketAt = r.clock.NowMS()

		// Erase the whole user region once, on this first accepted
		// page-1 DATA frame — not per-page, not per-commit (spec.md §9).
		for p := uint16(0); p < r.totalPages; p++ {
			if err := r.flash.Erase(r.userBase + uint32(p)*wireframe.Page); err != nil {
				r.flashFailed = true
				return
			}
		}
	}

	off := (int(f.Seq) - 1) * wireframe.Payload
	copy(r.buffer[off:off+wireframe.Payload], f.Data)
	r.present[f.Seq] = true
	r.lastRxTime = r.clock.NowMS()

	if r.pageComplete() {
		r.commitPage()
	}
}

func (r *Receiver) handleNAK(f wireframe.Frame) {
	if f.Page != r.currentPage {
		return
	}
	if r.state == stateReceiving {
		r.state = stateRecovery
		r.armReadyToNak(3 * NAKWindow)
		return
	}
	if int(f.Seq) >= 0 && int(f.Seq) < len(r.heardNAK) {
		r.heardNAK[f.Seq] = true
	}
}

func (r *Receiver) handleEndOfPage(f wireframe.Frame) {
	if f.Page != r.currentPage {
		return
	}
	r.state = stateRecovery
	r.armReadyToNak(2 * NAKWindow)
}

func (r *Receiver) armReadyToNak(maxJitterMS int) {
	r.readyToNak = true
	r.readyAt = r.clock.NowMS() + uint32(r.rng.Intn(maxJitterMS+1))
}

// tick runs the background logic spec.md §4.3 describes, once per
// call. It returns (outcome, true) when Run should stop.
func (r *Receiver) tick() (Outcome, bool) {
	now := r.clock.NowMS()

	if r.state == stateRecovery && !r.pageComplete() && r.readyToNak && hal.Due(now, r.readyAt) {
		r.emitNAKs()
	}

	if r.sessionStarted && r.state == stateReceiving && hal.Elapsed(now, r.lastRxTime) > recoveryWatchdogMS {
		r.state = stateRecovery
		r.armReadyToNak(3 * NAKWindow)
	}

	if r.sessionStarted && hal.Elapsed(now, r.lastRxTime) > abandonmentWatchdogMS {
		return OutcomeAbandoned, true
	}

	if r.currentPage > r.totalPages && r.sessionStarted {
		r.sendFinalStats()
		r.reset.Reset()
		return OutcomeComplete, true
	}

	return OutcomeComplete, false
}

func (r *Receiver) emitNAKs() {
	r.nakRoundsEmitted++
	for seq := 1; seq <= r.packetsThisPage; seq++ {
		if !r.present[seq] && !r.heardNAK[seq] {
			r.radio.Send(wireframe.EncodeNAK(uint16(seq), r.currentPage))
			r.packetsSentAsNAK++
			r.sleeper.Sleep(TSleepMS)
		}
	}
	for i := range r.heardNAK {
		r.heardNAK[i] = false
	}
	r.readyToNak = false
	r.lastNakTime = r.clock.NowMS()
}

func (r *Receiver) pageComplete() bool {
	for seq := 1; seq <= r.packetsThisPage; seq++ {
		if !r.present[seq] {
			return false
		}
	}
	return true
}

// commitPage writes the completed page and advances to the next one.
// The region erase already happened on the first accepted page-1 DATA
// frame (see handleData), so this only ever writes.
func (r *Receiver) commitPage() {
	addr := r.userBase + uint32(r.currentPage-1)*wireframe.Page
	if err := r.flash.Write(addr, r.buffer); err != nil {
		r.flashFailed = true
		return
	}

	next := r.currentPage + 1
	r.resetPageState(next, r.packetsInPage(next))
}

func (r *Receiver) packetsInPage(page uint16) int {
	if page == 0 || page < r.totalPages || r.totalPages == 0 {
		return wireframe.PPP
	}
	remPackets := int(r.totalPackets) - int(r.totalPages-1)*wireframe.PPP
	if remPackets <= 0 {
		return wireframe.PPP
	}
	return remPackets
}

func (r *Receiver) sendFinalStats() {
	elapsed := hal.Elapsed(r.clock.NowMS(), r.firstPacketAt)
	r.radio.Send(wireframe.EncodeStats(r.recID, uint16(r.nakRoundsEmitted), elapsed, uint16(r.packetsSentAsNAK)))
}

func ceilDivU(a, b int) int {
	return (a + b - 1) / b
}
