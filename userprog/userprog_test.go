package userprog

import "testing"

func TestDefaultIsNonEmptyAndImmutable(t *testing.T) {
	a := Default()
	if len(a) == 0 {
		t.Fatal("expected a non-empty default payload")
	}
	a[0] = 0xFF
	b := Default()
	if b[0] == 0xFF {
		t.Fatal("Default() must return a copy, not the embedded slice itself")
	}
}
