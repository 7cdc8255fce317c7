package task

import (
	"context"
	"testing"

	"defs"
)

func TestCurrentPanicsWithoutNote(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Current(context.Background())
}

func TestWithAndCurrent(t *testing.T) {
	n := NewNote(1, 2, 0)
	ctx := With(context.Background(), n)
	got := Current(ctx)
	if got != n {
		t.Fatal("Current did not return the installed note")
	}
	if n.ASID() != 2 {
		t.Fatalf("ASID() = %d, want 2", n.ASID())
	}
}

func TestKillAndQuitVal(t *testing.T) {
	n := NewNote(1, 0, 0)
	if n.Killed() {
		t.Fatal("fresh note should not be killed")
	}
	n.Kill(1)
	if !n.Killed() {
		t.Fatal("expected killed after Kill")
	}
	if n.QuitVal() != 1 {
		t.Fatalf("quitval = %d, want 1", n.QuitVal())
	}
	n.Kill(2)
	if n.QuitVal() != 2 {
		t.Fatalf("quitval = %d, want 2", n.QuitVal())
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	n1 := NewNote(1, 5, 0)
	n2 := NewNote(2, 5, 0)
	n3 := NewNote(3, 9, 0)
	r.Add(n1)
	r.Add(n2)
	r.Add(n3)

	if _, ok := r.Lookup(defs.Tid_t(1)); !ok {
		t.Fatal("expected to find task 1")
	}
	byASID := r.ByASID(5)
	if len(byASID) != 2 {
		t.Fatalf("ByASID(5) = %d entries, want 2", len(byASID))
	}
	r.Remove(1)
	if _, ok := r.Lookup(defs.Tid_t(1)); ok {
		t.Fatal("expected task 1 removed")
	}
}

// proc mirrors collab.Proc, the shape a collaborator uses to signal a
// task asynchronously; asserting it here documents that *Note
// satisfies it.
type proc interface {
	ASID() defs.ASID_t
	Kill(quitval int)
}

func TestNoteSatisfiesProc(t *testing.T) {
	var _ proc = NewNote(1, 1, 0)
}
