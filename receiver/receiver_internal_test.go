package receiver

import (
	"testing"

	"radioflash/flashio"
	"radioflash/hal"
	"radioflash/internal/testhal"
	"radioflash/wireframe"
)

func newTestReceiver(t *testing.T, clock *testhal.FakeClock, sleeper *testhal.FakeSleeper) (*Receiver, *hal.SimFlash, *testhal.FakeResetter) {
	t.Helper()
	simFlash := hal.NewSimFlash()
	committer := flashio.NewCommitter(simFlash, sleeper, 10)
	reset := &testhal.FakeResetter{}
	radio := hal.NewMedium().Attach()
	r := New(0x10000000, 7, radio, clock, sleeper, testhal.NewFakeRNG(0), committer, reset)
	return r, simFlash, reset
}

func fillPage(t *testing.T, r *Receiver, page uint16, total uint16, packets int, image []byte) {
	t.Helper()
	for seq := 1; seq <= packets; seq++ {
		start := (seq - 1) * wireframe.Payload
		end := start + wireframe.Payload
		var payload []byte
		if start < len(image) {
			if end > len(image) {
				end = len(image)
			}
			payload = image[start:end]
		}
		frame := wireframe.EncodeData(uint16(seq), page, total, payload)
		f, err := wireframe.Parse(frame)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		r.handleData(f)
	}
}

func TestReceiverCommitsOnFirstCompletePage(t *testing.T) {
	clock := &testhal.FakeClock{}
	sleeper := &testhal.FakeSleeper{Clock: clock}
	r, simFlash, _ := newTestReceiver(t, clock, sleeper)

	image := make([]byte, wireframe.Page)
	for i := range image {
		image[i] = byte(i)
	}
	total := uint16(wireframe.PPP) // single page exactly

	fillPage(t, r, 1, total, wireframe.PPP, image)

	if simFlash.EraseCalls != 1 {
		t.Fatalf("expected region erase exactly once, got %d calls", simFlash.EraseCalls)
	}
	got := simFlash.ReadPage(0x10000000)
	for i := range image {
		if got[i] != image[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], image[i])
		}
	}
	if r.currentPage != 2 {
		t.Fatalf("expected to advance to page 2, got %d", r.currentPage)
	}
}

func TestReceiverRejectsStaleAndFuturePages(t *testing.T) {
	clock := &testhal.FakeClock{}
	sleeper := &testhal.FakeSleeper{Clock: clock}
	r, _, _ := newTestReceiver(t, clock, sleeper)

	image := make([]byte, 2*wireframe.Page)
	total := uint16(ceilDivU(len(image), wireframe.Payload))
	fillPage(t, r, 1, total, wireframe.PPP, image)
	if r.currentPage != 2 {
		t.Fatalf("setup: expected page 2, got %d", r.currentPage)
	}

	// Stale page-1 data must be dropped silently, not reprocessed.
	staleFrame := wireframe.EncodeData(1, 1, total, image[:wireframe.Payload])
	f, _ := wireframe.Parse(staleFrame)
	r.handleData(f)
	if r.currentPage != 2 {
		t.Fatal("stale-page data should not affect current page")
	}

	// currentPage+2 must be rejected outright as a protocol error (§9),
	// not buffered or advanced into.
	futureFrame := wireframe.EncodeData(1, 4, total, image[:wireframe.Payload])
	f2, _ := wireframe.Parse(futureFrame)
	r.handleData(f2)
	if r.currentPage != 2 {
		t.Fatal("far-future page data should be dropped, not accepted")
	}
}

func TestReceiverTransitionsToRecoveryOnEndOfPage(t *testing.T) {
	clock := &testhal.FakeClock{}
	sleeper := &testhal.FakeSleeper{Clock: clock}
	r, _, _ := newTestReceiver(t, clock, sleeper)

	// Start a session with one packet present, then receive end-of-page
	// before the rest has arrived.
	total := uint16(wireframe.PPP)
	frame := wireframe.EncodeData(1, 1, total, make([]byte, wireframe.Payload))
	f, _ := wireframe.Parse(frame)
	r.handleData(f)

	eop := wireframe.EncodeEndOfPage(1)
	fe, _ := wireframe.Parse(eop)
	r.handleEndOfPage(fe)

	if r.state != stateRecovery {
		t.Fatal("expected transition to recovery state on end-of-page")
	}
	if !r.readyToNak {
		t.Fatal("expected a NAK jitter timer to be armed")
	}
}

func TestReceiverEmitsNAKsOnlyForMissingSeqs(t *testing.T) {
	clock := &testhal.FakeClock{}
	sleeper := &testhal.FakeSleeper{Clock: clock}
	r, _, _ := newTestReceiver(t, clock, sleeper)

	total := uint16(wireframe.PPP)
	frame := wireframe.EncodeData(1, 1, total, make([]byte, wireframe.Payload))
	f, _ := wireframe.Parse(frame)
	r.handleData(f)
	r.state = stateRecovery

	r.emitNAKs()

	if !r.present[1] {
		t.Fatal("test setup sanity: seq 1 should be present")
	}
	// seq 1 should never be NAKed since it's already present.
	// (We can't observe Sends directly without a spy radio; verify via
	// the packetsSentAsNAK counter instead: every other seq should be
	// NAKed exactly once.)
	if r.packetsSentAsNAK != r.packetsThisPage-1 {
		t.Fatalf("expected %d NAKs sent, got %d", r.packetsThisPage-1, r.packetsSentAsNAK)
	}
}

func TestReceiverErasesOnFirstPage1DataFrameNotOnCommit(t *testing.T) {
	clock := &testhal.FakeClock{}
	sleeper := &testhal.FakeSleeper{Clock: clock}
	r, simFlash, _ := newTestReceiver(t, clock, sleeper)

	total := uint16(wireframe.PPP)
	frame := wireframe.EncodeData(1, 1, total, make([]byte, wireframe.Payload))
	f, _ := wireframe.Parse(frame)
	r.handleData(f)

	if simFlash.EraseCalls != 1 {
		t.Fatalf("expected the region erase on the first accepted page-1 DATA frame, before the page completes; got %d erase calls", simFlash.EraseCalls)
	}
	if r.pageComplete() {
		t.Fatal("test setup sanity: page should not be complete after only one packet")
	}
}

func TestReceiverIgnoresDuplicateSeqWithinPage(t *testing.T) {
	clock := &testhal.FakeClock{}
	sleeper := &testhal.FakeSleeper{Clock: clock}
	r, simFlash, _ := newTestReceiver(t, clock, sleeper)

	total := uint16(wireframe.PPP)
	payload1 := make([]byte, wireframe.Payload)
	for i := range payload1 {
		payload1[i] = 0xAA
	}

	frame := wireframe.EncodeData(1, 1, total, payload1)
	f, _ := wireframe.Parse(frame)
	r.handleData(f)
	r.handleData(f) // redeliver the identical frame

	if !r.present[1] {
		t.Fatal("setup: seq 1 should be marked present")
	}

	for seq := 2; seq <= wireframe.PPP; seq++ {
		fr := wireframe.EncodeData(uint16(seq), 1, total, make([]byte, wireframe.Payload))
		pf, _ := wireframe.Parse(fr)
		r.handleData(pf)
	}

	if simFlash.WriteCalls != 1 {
		t.Fatalf("expected exactly one write for the page despite a duplicate DATA frame, got %d", simFlash.WriteCalls)
	}
	got := simFlash.ReadPage(0x10000000)
	for i := 0; i < wireframe.Payload; i++ {
		if got[i] != 0xAA {
			t.Fatalf("duplicate seq-1 frame corrupted committed data at byte %d: got %d want 0xAA", i, got[i])
		}
	}
}

func TestReceiverAbandonsWithoutResetOnFatalEraseError(t *testing.T) {
	clock := &testhal.FakeClock{}
	sleeper := &testhal.FakeSleeper{Clock: clock}
	medium := hal.NewMedium()
	recvRadio := medium.Attach()
	peerRadio := medium.Attach()

	simFlash := hal.NewSimFlash()
	committer := flashio.NewCommitter(simFlash, sleeper, 10)
	resetter := &testhal.FakeResetter{}
	r := New(0x10000000, 7, recvRadio, clock, sleeper, testhal.NewFakeRNG(0), committer, resetter)

	simFlash.InjectFaultOnNextErase()

	total := uint16(wireframe.PPP)
	peerRadio.Send(wireframe.EncodeData(1, 1, total, make([]byte, wireframe.Payload)))

	outcome := r.Run()
	if outcome != OutcomeAbandoned {
		t.Fatalf("expected OutcomeAbandoned on a fatal (non-ErrBusy) erase error, got %v", outcome)
	}
	if resetter.Called != 0 {
		t.Fatal("a fatal flash error must abandon without calling Reset")
	}
	if simFlash.EraseCalls != 0 {
		t.Fatal("the faulted erase attempt must not count as a successful erase")
	}
}

func TestReceiverAbandonsWithoutResetOnFatalWriteError(t *testing.T) {
	clock := &testhal.FakeClock{}
	sleeper := &testhal.FakeSleeper{Clock: clock}
	medium := hal.NewMedium()
	recvRadio := medium.Attach()
	peerRadio := medium.Attach()

	simFlash := hal.NewSimFlash()
	committer := flashio.NewCommitter(simFlash, sleeper, 10)
	resetter := &testhal.FakeResetter{}
	r := New(0x10000000, 7, recvRadio, clock, sleeper, testhal.NewFakeRNG(0), committer, resetter)

	total := uint16(wireframe.PPP)
	for seq := 1; seq <= wireframe.PPP; seq++ {
		if seq == wireframe.PPP {
			// Fault the write triggered by the final, page-completing frame.
			simFlash.InjectFaultOnNextWrite()
		}
		peerRadio.Send(wireframe.EncodeData(uint16(seq), 1, total, make([]byte, wireframe.Payload)))
	}

	outcome := r.Run()
	if outcome != OutcomeAbandoned {
		t.Fatalf("expected OutcomeAbandoned on a fatal (non-ErrBusy) write error, got %v", outcome)
	}
	if resetter.Called != 0 {
		t.Fatal("a fatal flash error must abandon without calling Reset")
	}
	if simFlash.WriteCalls != 0 {
		t.Fatal("the faulted write attempt must not count as a successful write")
	}
}

func TestReceiverAbandonmentWatchdog(t *testing.T) {
	clock := &testhal.FakeClock{}
	sleeper := &testhal.FakeSleeper{Clock: clock}
	r, _, resetter := newTestReceiver(t, clock, sleeper)

	total := uint16(2 * wireframe.PPP) // 2 pages, so completion never happens here
	frame := wireframe.EncodeData(1, 1, total, make([]byte, wireframe.Payload))
	f, _ := wireframe.Parse(frame)
	r.handleData(f)

	clock.Advance(abandonmentWatchdogMS + 1)
	outcome, done := r.tick()
	if !done || outcome != OutcomeAbandoned {
		t.Fatalf("expected abandonment, got outcome=%v done=%v", outcome, done)
	}
	if resetter.Called != 0 {
		t.Fatal("abandonment must not invoke Reset")
	}
}
