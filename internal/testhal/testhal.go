// Package testhal provides small deterministic hal collaborator fakes
// shared by the sender and receiver test suites.
package testhal

// FakeClock is a manually-advanced Clock for deterministic tests.
type FakeClock struct {
	ms uint32
}

// NowMS implements hal.Clock.
func (c *FakeClock) NowMS() uint32 { return c.ms }

// Advance moves the clock forward by ms milliseconds.
func (c *FakeClock) Advance(ms uint32) { c.ms += ms }

// Set pins the clock to an absolute value, for wraparound tests.
func (c *FakeClock) Set(ms uint32) { c.ms = ms }

// FakeSleeper advances an attached FakeClock instead of actually
// sleeping, so tests run instantly but timing-dependent logic still
// sees time pass.
type FakeSleeper struct {
	Clock *FakeClock
	Calls int
}

// Sleep implements hal.Sleeper.
func (s *FakeSleeper) Sleep(ms uint32) {
	s.Calls++
	if s.Clock != nil {
		s.Clock.Advance(ms)
	}
}

// FakeRNG is a deterministic RNG cycling through a fixed sequence (or
// always returning 0 if none is given), for reproducible jitter in
// tests.
type FakeRNG struct {
	seq []int
	pos int
}

// NewFakeRNG creates an RNG that cycles through seq, repeating.
func NewFakeRNG(seq ...int) *FakeRNG {
	if len(seq) == 0 {
		seq = []int{0}
	}
	return &FakeRNG{seq: seq}
}

// Intn implements hal.RNG, returning the next value in the fixed
// sequence modulo n (or 0 if n<=0).
func (r *FakeRNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v := r.seq[r.pos%len(r.seq)]
	r.pos++
	if v >= n {
		v = v % n
	}
	return v
}

// FakeResetter records whether Reset was called, standing in for
// receiver.Resetter in tests.
type FakeResetter struct {
	Called int
}

// Reset implements receiver.Resetter.
func (f *FakeResetter) Reset() { f.Called++ }
