package filelock

import (
	"testing"

	"defs"
	"uid"
)

func TestSharedLocksAreCompatible(t *testing.T) {
	tbl := NewTable(4)
	u := uid.New(1)
	if _, err := tbl.PrivLock(1, u, ModeShared); err != nil {
		t.Fatalf("PrivLock(1): %v", err)
	}
	if _, err := tbl.PrivLock(2, u, ModeShared); err != nil {
		t.Fatalf("PrivLock(2): %v", err)
	}
}

func TestExclusiveConflictsWithExisting(t *testing.T) {
	tbl := NewTable(4)
	u := uid.New(1)
	if _, err := tbl.PrivLock(1, u, ModeShared); err != nil {
		t.Fatalf("PrivLock(1): %v", err)
	}
	if _, err := tbl.PrivLock(2, u, ModeExclusive); err != defs.EObjectInUse {
		t.Fatalf("PrivLock(2, exclusive) = %v, want EObjectInUse", err)
	}
}

type fakeLockMetrics struct{ conflicts int }

func (f *fakeLockMetrics) FileLockConflict() { f.conflicts++ }

func TestPrivLockReportsConflicts(t *testing.T) {
	tbl := NewTable(4)
	m := &fakeLockMetrics{}
	tbl.SetMetrics(m)
	u := uid.New(1)
	if _, err := tbl.PrivLock(1, u, ModeShared); err != nil {
		t.Fatalf("PrivLock(1): %v", err)
	}
	if _, err := tbl.PrivLock(2, u, ModeExclusive); err != defs.EObjectInUse {
		t.Fatalf("PrivLock(2, exclusive) = %v, want EObjectInUse", err)
	}
	if m.conflicts != 1 {
		t.Fatalf("conflicts = %d, want 1", m.conflicts)
	}
}

func TestUnlockThenExclusiveSucceeds(t *testing.T) {
	tbl := NewTable(4)
	u := uid.New(1)
	idx, err := tbl.PrivLock(1, u, ModeShared)
	if err != nil {
		t.Fatalf("PrivLock: %v", err)
	}
	if err := tbl.PrivUnlock(1, idx); err != nil {
		t.Fatalf("PrivUnlock: %v", err)
	}
	if _, err := tbl.PrivLock(2, u, ModeExclusive); err != nil {
		t.Fatalf("PrivLock after release: %v", err)
	}
}

func TestLocalLockTableFull(t *testing.T) {
	tbl := NewTable(1)
	if _, err := tbl.PrivLock(1, uid.New(1), ModeShared); err != nil {
		t.Fatalf("first PrivLock: %v", err)
	}
	if _, err := tbl.PrivLock(1, uid.New(2), ModeShared); err != defs.ELocalLockTableFull {
		t.Fatalf("second PrivLock = %v, want ELocalLockTableFull", err)
	}
}

func TestPrivUnlockAllReleasesEverything(t *testing.T) {
	tbl := NewTable(4)
	u1, u2 := uid.New(1), uid.New(2)
	tbl.PrivLock(1, u1, ModeExclusive)
	tbl.PrivLock(1, u2, ModeExclusive)

	tbl.PrivUnlockAll(1)

	if _, err := tbl.PrivLock(2, u1, ModeExclusive); err != nil {
		t.Fatalf("PrivLock(u1) after UnlockAll: %v", err)
	}
	if _, err := tbl.PrivLock(2, u2, ModeExclusive); err != nil {
		t.Fatalf("PrivLock(u2) after UnlockAll: %v", err)
	}
}

func TestLocalLockVerify(t *testing.T) {
	tbl := NewTable(4)
	u := uid.New(1)
	tbl.PrivLock(1, u, ModeUpdate)

	if err := tbl.LocalLockVerify(1, u, ModeShared); err != nil {
		t.Fatalf("LocalLockVerify(shared <= held update) = %v, want nil", err)
	}
	if err := tbl.LocalLockVerify(1, u, ModeExclusive); err != defs.EIllegalLockRequest {
		t.Fatalf("LocalLockVerify(exclusive > held update) = %v, want EIllegalLockRequest", err)
	}
	if err := tbl.LocalLockVerify(2, u, ModeShared); err != defs.EIllegalLockRequest {
		t.Fatalf("LocalLockVerify for ASID holding nothing = %v, want EIllegalLockRequest", err)
	}
}

func TestReadLockEntryi(t *testing.T) {
	tbl := NewTable(4)
	u := uid.New(1)
	idx, _ := tbl.PrivLock(1, u, ModeUpdate)
	gotUID, mode, ok := tbl.ReadLockEntryi(1, idx)
	if !ok || gotUID != u || mode != ModeUpdate {
		t.Fatalf("ReadLockEntryi = (%v, %v, %v), want (%v, ModeUpdate, true)", gotUID, mode, ok, u)
	}
}

type fakeReadOnlyVolume struct{ readOnly map[uid.UID]bool }

func (f *fakeReadOnlyVolume) IsReadOnly(u uid.UID) bool { return f.readOnly[u] }

func TestPrivLockRejectsWriteOnReadOnlyVolume(t *testing.T) {
	tbl := NewTable(4)
	u := uid.New(1)
	tbl.SetVolumeInfo(&fakeReadOnlyVolume{readOnly: map[uid.UID]bool{u: true}})

	if _, err := tbl.PrivLock(1, u, ModeExclusive); err != defs.EVolMountedReadOnly {
		t.Fatalf("PrivLock(exclusive, read-only vol) = %v, want EVolMountedReadOnly", err)
	}
	if _, err := tbl.PrivLock(1, u, ModeShared); err != nil {
		t.Fatalf("PrivLock(shared, read-only vol) = %v, want nil", err)
	}
}

type fakeACL struct{ allow bool }

func (f *fakeACL) Allowed(defs.ASID_t, uid.UID, string) bool { return f.allow }

func TestPrivLockRejectsOnACLDenial(t *testing.T) {
	tbl := NewTable(4)
	tbl.SetACL(&fakeACL{allow: false})
	if _, err := tbl.PrivLock(1, uid.New(1), ModeShared); err != defs.EInsufficientRights {
		t.Fatalf("PrivLock with denying ACL = %v, want EInsufficientRights", err)
	}
}

func TestPrivLockAllowedByACL(t *testing.T) {
	tbl := NewTable(4)
	tbl.SetACL(&fakeACL{allow: true})
	if _, err := tbl.PrivLock(1, uid.New(1), ModeShared); err != nil {
		t.Fatalf("PrivLock with allowing ACL: %v", err)
	}
}

func TestRelockSameASIDUpgradesAndRefcounts(t *testing.T) {
	tbl := NewTable(4)
	u := uid.New(1)
	idx1, err := tbl.PrivLock(1, u, ModeShared)
	if err != nil {
		t.Fatalf("first PrivLock: %v", err)
	}
	idx2, err := tbl.PrivLock(1, u, ModeExclusive)
	if err != nil {
		t.Fatalf("second PrivLock (upgrade): %v", err)
	}
	if idx1 == idx2 {
		t.Fatal("expected re-lock to consume a second local slot")
	}
	if mode, ok := tbl.LocalReadLock(1, u); !ok || mode != ModeExclusive {
		t.Fatalf("LocalReadLock after upgrade = (%v, %v), want (ModeExclusive, true)", mode, ok)
	}

	// Releasing only the first slot must not drop the holder: the
	// second slot's upgrade reference is still outstanding.
	if err := tbl.PrivUnlock(1, idx1); err != nil {
		t.Fatalf("PrivUnlock(idx1): %v", err)
	}
	if _, err := tbl.PrivLock(2, u, ModeShared); err != defs.EObjectInUse {
		t.Fatalf("PrivLock(2) while holder still outstanding = %v, want EObjectInUse", err)
	}

	if err := tbl.PrivUnlock(1, idx2); err != nil {
		t.Fatalf("PrivUnlock(idx2): %v", err)
	}
	if _, err := tbl.PrivLock(2, u, ModeExclusive); err != nil {
		t.Fatalf("PrivLock(2) after both slots released: %v", err)
	}
}

func TestUnlockProcReleasesOnlyThatASID(t *testing.T) {
	tbl := NewTable(4)
	u1, u2 := uid.New(1), uid.New(2)
	tbl.PrivLock(1, u1, ModeExclusive)
	tbl.PrivLock(2, u2, ModeExclusive)

	tbl.UnlockProc(1)

	if _, err := tbl.PrivLock(3, u1, ModeExclusive); err != nil {
		t.Fatalf("PrivLock(u1) after UnlockProc(1): %v", err)
	}
	if _, err := tbl.PrivLock(3, u2, ModeExclusive); err != defs.EObjectInUse {
		t.Fatalf("PrivLock(u2) should still be held by ASID 2, got %v", err)
	}
}

func TestPrivUnlockAllZeroReleasesEveryASID(t *testing.T) {
	tbl := NewTable(4)
	u1, u2 := uid.New(1), uid.New(2)
	tbl.PrivLock(1, u1, ModeExclusive)
	tbl.PrivLock(2, u2, ModeExclusive)

	tbl.PrivUnlockAll(0)

	if _, err := tbl.PrivLock(3, u1, ModeExclusive); err != nil {
		t.Fatalf("PrivLock(u1) after PrivUnlockAll(0): %v", err)
	}
	if _, err := tbl.PrivLock(3, u2, ModeExclusive); err != nil {
		t.Fatalf("PrivLock(u2) after PrivUnlockAll(0): %v", err)
	}
}
