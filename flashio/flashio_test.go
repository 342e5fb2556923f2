package flashio

import (
	"testing"

	"radioflash/hal"
)

type noopSleeper struct{ calls int }

func (s *noopSleeper) Sleep(ms uint32) { s.calls++ }

func TestEraseThenWriteRoundTrip(t *testing.T) {
	dev := hal.NewSimFlash()
	sleeper := &noopSleeper{}
	c := NewCommitter(dev, sleeper, 1)

	if err := c.Erase(0x71000); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := c.Write(0x71000, buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := dev.ReadPage(0x71000); string(got) != string(buf) {
		t.Fatalf("committed page mismatch")
	}
	if dev.EraseCalls != 1 || dev.WriteCalls != 1 {
		t.Fatalf("expected exactly one erase and one write, got erase=%d write=%d", dev.EraseCalls, dev.WriteCalls)
	}
}

func TestWriteToUnerasedPagePanics(t *testing.T) {
	dev := hal.NewSimFlash()
	c := NewCommitter(dev, &noopSleeper{}, 1)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic writing to un-erased page")
		}
	}()
	c.Write(0x71000, make([]byte, 4096))
}

func TestBusyIsRetried(t *testing.T) {
	dev := hal.NewSimFlash()
	dev.InjectBusyOnNextErase(2)
	dev.InjectBusyOnNextWrite(3)
	sleeper := &noopSleeper{}
	c := NewCommitter(dev, sleeper, 1)

	if err := c.Erase(0x71000); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if err := c.Write(0x71000, make([]byte, 4096)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sleeper.calls != 5 {
		t.Fatalf("expected 5 retry sleeps (2 erase + 3 write), got %d", sleeper.calls)
	}
	if dev.EraseCalls != 1 || dev.WriteCalls != 1 {
		t.Fatalf("expected eventual single success each, got erase=%d write=%d", dev.EraseCalls, dev.WriteCalls)
	}
}
