package ec

import (
	"context"
	"testing"
	"time"

	"defs"
)

func TestRegisterAndAdvance(t *testing.T) {
	tbl := NewTable(4, 2)
	var e EC1
	e.Init()

	h, err := tbl.Register(&e)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := tbl.Advance(h, nil); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	v, err := tbl.Read(h)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 1 {
		t.Fatalf("Read = %d, want 1", v)
	}
}

func TestRegistrationFullReturnsError(t *testing.T) {
	tbl := NewTable(1, 0)
	var a, b EC1
	a.Init()
	b.Init()
	if _, err := tbl.Register(&a); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := tbl.Register(&b); err != defs.EEC2RegistrationFull {
		t.Fatalf("second Register = %v, want EEC2RegistrationFull", err)
	}
}

func TestAllocateReleaseReusesSlot(t *testing.T) {
	tbl := NewTable(2, 1)
	h1, ec1, err := tbl.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, _, err := tbl.Allocate(); err != defs.EEC2UnableToAllocateL1 {
		t.Fatalf("second Allocate = %v, want EEC2UnableToAllocateL1", err)
	}
	if err := tbl.Release(h1); err != nil {
		t.Fatalf("Release: %v", err)
	}
	h2, ec2, err := tbl.Allocate()
	if err != nil {
		t.Fatalf("Allocate after release: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected reused handle %d, got %d", h1, h2)
	}
	if ec1 != ec2 {
		t.Fatal("expected reused EC1 pointer after Allocate/Release/Allocate")
	}
}

func TestGetUnknownHandleFails(t *testing.T) {
	tbl := NewTable(2, 2)
	if _, err := tbl.Get(99); err != defs.EEC2Level1NotAllocated {
		t.Fatalf("Get(unknown) = %v, want EEC2Level1NotAllocated", err)
	}
}

func TestDirectHandleWrapsCallerEC(t *testing.T) {
	tbl := NewTable(2, 2)
	var e EC1
	e.Init()
	h := tbl.Direct(&e)
	if h <= directBase {
		t.Fatalf("direct handle %d should be above directBase %d", h, directBase)
	}
	got, err := tbl.Get(h)
	if err != nil {
		t.Fatalf("Get(direct): %v", err)
	}
	if got != &e {
		t.Fatal("Get(direct) did not return the wrapped EC1")
	}
}

func TestTableWaitWakesOnAdvance(t *testing.T) {
	tbl := NewTable(2, 2)
	var e EC1
	e.Init()
	h, _ := tbl.Register(&e)

	done := make(chan error, 1)
	go func() { done <- tbl.Wait(context.Background(), h, 1) }()
	time.Sleep(10 * time.Millisecond)
	if err := tbl.Advance(h, nil); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Table.Wait never woke")
	}
}

func TestRegisterReturnsExistingHandle(t *testing.T) {
	tbl := NewTable(4, 0)
	var e EC1
	e.Init()

	h1, err := tbl.Register(&e)
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	h2, err := tbl.Register(&e)
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("Register(same ec1) = %d, then %d, want identical handles", h1, h2)
	}
	if len(tbl.registered) != 1 {
		t.Fatalf("registered table has %d entries, want 1", len(tbl.registered))
	}
}

func TestReleaseWithNoWaitersClearsImmediately(t *testing.T) {
	tbl := NewTable(0, 1)
	h, _, err := tbl.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := tbl.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if tbl.pendingRelease[0] {
		t.Fatal("Release with no active waiters left the entry pending-release")
	}
	if h2, _, err := tbl.Allocate(); err != nil || h2 != h {
		t.Fatalf("Allocate after Release = (%d, %v), want (%d, nil)", h2, err, h)
	}
}

func TestReleaseWithActiveWaiterAdvancesAllAndMarksPending(t *testing.T) {
	tbl := NewTable(0, 1)
	h, ec1, err := tbl.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- ec1.Wait(context.Background(), 1)
	}()
	// Give the waiter time to register before releasing.
	time.Sleep(20 * time.Millisecond)

	if err := tbl.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Wait woke with error %v, want nil (advance-all on release)", err)
	}
	if ec1.Read() != MaxValue {
		t.Fatalf("value after Release = %d, want MaxValue (advance-all)", ec1.Read())
	}

	// The waiter drained synchronously with Release's advance-all, so
	// the next Allocate's pending-release probe reclaims the slot.
	h2, ec2, err := tbl.Allocate()
	if err != nil {
		t.Fatalf("Allocate after Release: %v", err)
	}
	if h2 != h || ec2 != ec1 {
		t.Fatalf("Allocate after drain = (%d, %p), want reused (%d, %p)", h2, ec2, h, ec1)
	}
}
