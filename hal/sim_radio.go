package hal

import "sync"

// Medium is an in-process broadcast radio cell used by tests: every
// SimRadio attached to the same Medium receives every frame sent by
// every other attached SimRadio, never its own. It exists only to
// exercise the sender/receiver state machines under controlled loss
// and duplication — the real wire has no equivalent. Frames reach each
// destination in send order; Medium has no reordering hook.
type Medium struct {
	mu       sync.Mutex
	radios   []*SimRadio
	// Drop, when non-nil, is consulted once per frame per destination
	// radio; returning true drops that frame for that destination only.
	Drop func(src, dst *SimRadio, frame []byte) bool
	// Duplicate, when non-nil, returns how many extra times (beyond the
	// first) a frame should be delivered to a given destination.
	Duplicate func(src, dst *SimRadio, frame []byte) int
}

// NewMedium creates an empty broadcast cell.
func NewMedium() *Medium {
	return &Medium{}
}

// Attach creates a new radio on this medium.
func (m *Medium) Attach() *SimRadio {
	r := &SimRadio{medium: m}
	m.mu.Lock()
	m.radios = append(m.radios, r)
	m.mu.Unlock()
	return r
}

func (m *Medium) broadcast(src *SimRadio, frame []byte) {
	cp := append([]byte(nil), frame...)

	m.mu.Lock()
	dests := append([]*SimRadio(nil), m.radios...)
	m.mu.Unlock()

	for _, dst := range dests {
		if dst == src {
			continue
		}
		if m.Drop != nil && m.Drop(src, dst, cp) {
			continue
		}
		copies := 1
		if m.Duplicate != nil {
			copies += m.Duplicate(src, dst, cp)
		}
		for i := 0; i < copies; i++ {
			dst.deliver(cp)
		}
	}
}

// SimRadio is one node's view of a Medium: a Send broadcasts to every
// other attached radio; Recv drains this radio's inbound queue.
// Delivery into the queue is guarded the same way a real IRQ-fed ring
// buffer would be, so this also exercises the interrupt/main-loop
// boundary the hardware backend relies on.
type SimRadio struct {
	medium *Medium
	mu     sync.Mutex
	queue  [][]byte
}

// Send broadcasts frame to every other radio on the medium.
func (r *SimRadio) Send(frame []byte) {
	r.medium.broadcast(r, frame)
}

// Recv pops the oldest queued frame, or returns ok=false if empty.
func (r *SimRadio) Recv() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	frame := r.queue[0]
	r.queue = r.queue[1:]
	return frame, true
}

func (r *SimRadio) deliver(frame []byte) {
	r.mu.Lock()
	r.queue = append(r.queue, frame)
	r.mu.Unlock()
}
