package progress

import "testing"

func TestTerminal(t *testing.T) {
	for state, want := range map[State]bool{
		StatePending:  false,
		StateProgress: false,
		StateSuccess:  true,
		StateFailure:  true,
	} {
		rec := Record{State: state}
		if rec.Terminal() != want {
			t.Errorf("Terminal(%s) = %v, want %v", state, !want, want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(-5); got != 0 {
		t.Errorf("clamp(-5) = %d", got)
	}
	if got := clamp(250); got != 100 {
		t.Errorf("clamp(250) = %d", got)
	}
	if got := clamp(42); got != 42 {
		t.Errorf("clamp(42) = %d", got)
	}
}
