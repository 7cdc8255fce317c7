package mem

import "testing"

func TestCallocRefcountFree(t *testing.T) {
	p := NewPhysmem(4)
	if p.Free() != 4 {
		t.Fatalf("Free() = %d, want 4", p.Free())
	}
	pa, pg, ok := p.Calloc()
	if !ok || pg == nil {
		t.Fatal("expected successful Calloc")
	}
	if p.Refcnt(pa) != 1 {
		t.Fatalf("Refcnt = %d, want 1", p.Refcnt(pa))
	}
	if p.Free() != 3 {
		t.Fatalf("Free() = %d, want 3", p.Free())
	}
	p.Refup(pa)
	if p.Refcnt(pa) != 2 {
		t.Fatalf("Refcnt = %d, want 2", p.Refcnt(pa))
	}
	if p.Refdown(pa) {
		t.Fatal("Refdown should not have freed the page yet")
	}
	if !p.Refdown(pa) {
		t.Fatal("Refdown should have freed the page")
	}
	if p.Free() != 4 {
		t.Fatalf("Free() = %d, want 4 after release", p.Free())
	}
}

func TestCallocExhaustion(t *testing.T) {
	p := NewPhysmem(1)
	_, _, ok := p.Calloc()
	if !ok {
		t.Fatal("expected first Calloc to succeed")
	}
	_, _, ok = p.Calloc()
	if ok {
		t.Fatal("expected Calloc to fail once exhausted")
	}
}

func TestRemotePoolRollsBackOnFailure(t *testing.T) {
	p := NewPhysmem(2)
	_, ok := p.RemotePool(3)
	if ok {
		t.Fatal("expected RemotePool to fail")
	}
	if p.Free() != 2 {
		t.Fatalf("Free() = %d, want 2 after rollback", p.Free())
	}
}
