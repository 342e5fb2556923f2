// Package sender implements the sender half of the radio image
// transfer protocol: spec.md §4.2. It owns no hardware directly —
// every side effect goes through the hal collaborators it is
// constructed with.
package sender

import (
	"radioflash/hal"
	"radioflash/wireframe"
)

// Timing defaults, spec.md §5.
const (
	TSleepMS   = 100
	NAKWindow  = 3 * TSleepMS
	NEmpty     = 5
	JitterMaxMS = 5
)

// Reporter receives diagnostic STATS frames collected during the
// post-transfer listening window (SPEC_FULL §4.2). The sender core
// never touches a serial port itself; nil is a valid Reporter (no-op).
type Reporter interface {
	Report(s wireframe.Stats)
}

type noopReporter struct{}

func (noopReporter) Report(wireframe.Stats) {}

// Sender runs the page-at-a-time burst/end-of-page/recovery loop over
// an Image until every page has converged (or, for each page, until
// N_EMPTY consecutive quiescent rounds are observed).
type Sender struct {
	radio    hal.Radio
	clock    hal.Clock
	sleeper  hal.Sleeper
	rng      hal.RNG
	reporter Reporter

	image []byte
}

// New creates a Sender over image, which must be the exact bytes to
// be delivered (the sender's [user_start, user_end) range). reporter
// may be nil.
func New(image []byte, radio hal.Radio, clock hal.Clock, sleeper hal.Sleeper, rng hal.RNG, reporter Reporter) *Sender {
	if reporter == nil {
		reporter = noopReporter{}
	}
	return &Sender{radio: radio, clock: clock, sleeper: sleeper, rng: rng, reporter: reporter, image: image}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// TotalPackets is the total_packets field carried on page-1 DATA
// frames, derived from the image size.
func (s *Sender) TotalPackets() uint16 {
	return uint16(ceilDiv(len(s.image), wireframe.Payload))
}

// TotalPages is the number of 4096-byte pages the image spans.
func (s *Sender) TotalPages() uint16 {
	return uint16(ceilDiv(len(s.image), wireframe.Page))
}

func (s *Sender) jitterSleep() {
	s.sleeper.Sleep(TSleepMS + uint32(s.rng.Intn(JitterMaxMS+1)))
}

// packetsInPage returns how many packets page (1-based) carries: PPP
// for interior pages, the remainder for the last page — recomputed
// only for the last page, per spec.md §9 open question (ii).
func (s *Sender) packetsInPage(page, totalPages uint16) int {
	if page < totalPages {
		return wireframe.PPP
	}
	remBytes := len(s.image) - int(page-1)*wireframe.Page
	return ceilDiv(remBytes, wireframe.Payload)
}

func (s *Sender) sendSinglePacket(seq, page int, total uint16) {
	start := (int(page-1)*wireframe.PPP + (seq - 1)) * wireframe.Payload
	end := start + wireframe.Payload
	var payload []byte
	if start >= len(s.image) {
		payload = nil
	} else if end > len(s.image) {
		payload = s.image[start:len(s.image)]
	} else {
		payload = s.image[start:end]
	}
	s.radio.Send(wireframe.EncodeData(uint16(seq), uint16(page), total, payload))
}

func (s *Sender) sendEndOfPage(page uint16) {
	for i := 0; i < 3; i++ {
		s.radio.Send(wireframe.EncodeEndOfPage(page))
		s.jitterSleep()
	}
}

// Run transmits the whole image and returns once the final page's
// quiescent interval has elapsed and the bounded stats-collection
// window has closed.
func (s *Sender) Run() {
	totalPages := s.TotalPages()
	total := s.TotalPackets()

	for page := uint16(1); page <= totalPages; page++ {
		receivedNAKs := newOrderedSeqSet()
		packetsThisPage := s.packetsInPage(page, totalPages)

		// Burst phase.
		for seq := 1; seq <= packetsThisPage; seq++ {
			s.sendSinglePacket(seq, int(page), total)
			s.jitterSleep()
		}

		// End-of-page phase.
		s.sendEndOfPage(page)

		// Recovery phase.
		s.recoverPage(page, total, receivedNAKs)
	}

	s.collectStats()
}

// recoverPage implements spec.md §4.2 step 5: poll for NAKs, retransmit
// on a NAK-window timeout, exit after N_EMPTY consecutive empty rounds.
func (s *Sender) recoverPage(page uint16, total uint16, receivedNAKs *orderedSeqSet) {
	lastNAK := s.clock.NowMS()
	emptyRounds := 0

	for emptyRounds < NEmpty {
		if frame, ok := s.radio.Recv(); ok {
			f, err := wireframe.Parse(frame)
			if err == nil && f.Kind == wireframe.KindNAK && f.Page == page {
				receivedNAKs.add(f.Seq)
				lastNAK = s.clock.NowMS()
			}
		}

		now := s.clock.NowMS()
		switch {
		case receivedNAKs.empty() && hal.Elapsed(now, lastNAK) > 2*NAKWindow:
			emptyRounds++
			lastNAK = now
		case !receivedNAKs.empty() && hal.Elapsed(now, lastNAK) > NAKWindow:
			emptyRounds = 0
			lastNAK = now
			for _, seq := range receivedNAKs.items() {
				s.sendSinglePacket(seq, int(page), total)
			}
			receivedNAKs.clear()
			s.sendEndOfPage(page)
		}

		s.sleeper.Sleep(TSleepMS)
	}
}

// collectStats implements the diagnostics-only tail ported from the
// original firmware's post-transfer recStats/rtts collection
// (SPEC_FULL §4.2): listen for STATS frames until 100*NAK_WINDOW of
// inactivity, handing each to the Reporter.
func (s *Sender) collectStats() {
	lastActivity := s.clock.NowMS()

	for hal.Elapsed(s.clock.NowMS(), lastActivity) <= 100*NAKWindow {
		if frame, ok := s.radio.Recv(); ok {
			f, err := wireframe.Parse(frame)
			if err == nil && f.Kind == wireframe.KindStats && f.Stats != nil {
				lastActivity = s.clock.NowMS()
				s.reporter.Report(*f.Stats)
			}
		}
		s.sleeper.Sleep(TSleepMS)
	}
}

// orderedSeqSet is receivedNAKs: an insertion-ordered set of sequence
// numbers, matching spec.md's "retransmit every seq in the set in
// insertion order".
type orderedSeqSet struct {
	order  []uint16
	lookup map[uint16]bool
}

func newOrderedSeqSet() *orderedSeqSet {
	return &orderedSeqSet{lookup: make(map[uint16]bool)}
}

func (o *orderedSeqSet) add(seq uint16) {
	if o.lookup[seq] {
		return
	}
	o.lookup[seq] = true
	o.order = append(o.order, seq)
}

func (o *orderedSeqSet) empty() bool { return len(o.order) == 0 }

func (o *orderedSeqSet) items() []int {
	out := make([]int, len(o.order))
	for i, s := range o.order {
		out[i] = int(s)
	}
	return out
}

func (o *orderedSeqSet) clear() {
	o.order = o.order[:0]
	o.lookup = make(map[uint16]bool)
}
