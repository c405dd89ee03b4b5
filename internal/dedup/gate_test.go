package dedup

import (
	"testing"

	"github.com/nodegate-io/nodegate/internal/hal"
)

func TestGateSequence(t *testing.T) {
	// Raw reads [A, A, none, A, B, A] must admit exactly [A, B, A]: the
	// empty read does not clear memory, so the second A stays suppressed,
	// while the final A is re-admitted because B intervened.
	reads := []struct {
		id      hal.TagID
		present bool
	}{
		{"A", true},
		{"A", true},
		{"", false},
		{"A", true},
		{"B", true},
		{"A", true},
	}

	g := New()
	var admitted []hal.TagID
	for _, read := range reads {
		if id, ok := g.Observe(read.id, read.present); ok {
			admitted = append(admitted, id)
		}
	}

	want := []hal.TagID{"A", "B", "A"}
	if len(admitted) != len(want) {
		t.Fatalf("expected %v, got %v", want, admitted)
	}
	for i := range want {
		if admitted[i] != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], admitted[i])
		}
	}
}

func TestGateFirstReadAlwaysAdmitted(t *testing.T) {
	g := New()
	id, ok := g.Observe("04A3FF", true)
	if !ok || id != "04A3FF" {
		t.Fatalf("expected first read admitted, got id=%q ok=%v", id, ok)
	}
}

func TestGateEmptyReadIsNotAnEvent(t *testing.T) {
	g := New()
	if _, ok := g.Observe("", false); ok {
		t.Fatal("empty read must never be admitted")
	}
	if _, seen := g.Last(); seen {
		t.Fatal("empty read must not touch memory")
	}
}

func TestGateRemovalDoesNotClearMemory(t *testing.T) {
	g := New()
	g.Observe("A", true)
	g.Observe("", false)
	if _, ok := g.Observe("A", true); ok {
		t.Fatal("re-presenting the same tag after removal must stay suppressed")
	}
}

func TestGateReset(t *testing.T) {
	g := New()
	g.Observe("A", true)
	g.Reset()
	if _, ok := g.Observe("A", true); !ok {
		t.Fatal("expected tag admitted after reset")
	}
}
