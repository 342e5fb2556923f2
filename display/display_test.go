package display

import "testing"

func TestLogUsesInstalledWriter(t *testing.T) {
	var got []string
	SetWriter(func(s string) { got = append(got, s) })
	defer SetWriter(nil)

	Log("hello")
	Log("world")

	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Fatalf("unexpected writer log: %+v", got)
	}
}

func TestLogIsNoopBeforeAnyWriterIsSet(t *testing.T) {
	SetWriter(nil) // restore the default no-op
	Log("should not panic")
}
