package dxm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"defs"
)

func TestAddCallbackAndScanQueueRunsInFIFOOrder(t *testing.T) {
	m := NewManager(4, 4, OverflowAbort)
	var got []uint64
	cb := m.Register(func(arg uint64) { got = append(got, arg) })

	for i := uint64(0); i < 3; i++ {
		if err := m.AddCallback(true, cb, i); err != nil {
			t.Fatalf("AddCallback(%d): %v", i, err)
		}
	}
	n := m.ScanQueue(true)
	if n != 3 {
		t.Fatalf("ScanQueue processed %d, want 3", n)
	}
	for i, v := range got {
		if v != uint64(i) {
			t.Fatalf("got[%d] = %d, want %d (FIFO order)", i, v, i)
		}
	}
}

func TestAddCallbackUnknownCallbackFails(t *testing.T) {
	m := NewManager(2, 2, OverflowAbort)
	if err := m.AddCallback(true, 999, 0); err != defs.EInvalidArg {
		t.Fatalf("AddCallback(unknown) = %v, want EInvalidArg", err)
	}
}

func TestOverflowDropAndLogReportsDrop(t *testing.T) {
	m := NewManager(1, 1, OverflowDropAndLog)
	cb := m.Register(func(uint64) {})
	if err := m.AddCallback(true, cb, 1); err != nil {
		t.Fatalf("first AddCallback: %v", err)
	}
	if err := m.AddCallback(true, cb, 2); err != defs.EDXMNoQueueSlots {
		t.Fatalf("overflow AddCallback = %v, want EDXMNoQueueSlots", err)
	}
	select {
	case n := <-m.Drops():
		if n.Arg != 2 {
			t.Fatalf("dropped arg = %d, want 2", n.Arg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a DropNotice on the drops channel")
	}
}

type fakeDXMMetrics struct{ overruns map[string]int }

func (f *fakeDXMMetrics) DXMOverrun(queue string) {
	if f.overruns == nil {
		f.overruns = make(map[string]int)
	}
	f.overruns[queue]++
}

func TestOverflowDropAndLogReportsMetric(t *testing.T) {
	m := NewManager(1, 1, OverflowDropAndLog)
	metrics := &fakeDXMMetrics{}
	m.SetMetrics(metrics)
	cb := m.Register(func(uint64) {})
	_ = m.AddCallback(true, cb, 1)
	_ = m.AddCallback(true, cb, 2)
	if metrics.overruns["wired"] != 1 {
		t.Fatalf("overruns[wired] = %d, want 1", metrics.overruns["wired"])
	}
}

func TestOverflowAbortPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on queue overflow under OverflowAbort")
		}
	}()
	m := NewManager(1, 1, OverflowAbort)
	cb := m.Register(func(uint64) {})
	_ = m.AddCallback(true, cb, 1)
	_ = m.AddCallback(true, cb, 2)
}

func TestRunHelpersProcessesQueuedWork(t *testing.T) {
	m := NewManager(8, 8, OverflowAbort)
	var n int32
	cb := m.Register(func(uint64) { atomic.AddInt32(&n, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	go m.RunHelpers(ctx)

	if err := m.AddCallback(true, cb, 1); err != nil {
		t.Fatalf("AddCallback: %v", err)
	}
	if err := m.AddCallback(false, cb, 2); err != nil {
		t.Fatalf("AddCallback: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&n) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if got := atomic.LoadInt32(&n); got != 2 {
		t.Fatalf("callbacks ran %d times, want 2", got)
	}
}

func TestAddSignalDispatchesToRegisteredHandler(t *testing.T) {
	m := NewManager(4, 4, OverflowAbort)
	type call struct{ p2, p3, p4, p5 int16 }
	got := make(chan call, 1)
	m.RegisterSignalHandler(7, func(p2, p3, p4, p5 int16) {
		got <- call{p2, p3, p4, p5}
	})

	if err := m.AddSignal(7, 1, 2, 3, 4); err != nil {
		t.Fatalf("AddSignal: %v", err)
	}
	if n := m.ScanQueue(false); n != 1 {
		t.Fatalf("ScanQueue(unwired) processed %d, want 1", n)
	}
	select {
	case c := <-got:
		if c != (call{1, 2, 3, 4}) {
			t.Fatalf("handler got %+v, want {1 2 3 4}", c)
		}
	default:
		t.Fatal("signal handler never ran")
	}
}

func TestAddSignalUnregisteredSignoIsANoop(t *testing.T) {
	m := NewManager(4, 4, OverflowAbort)
	if err := m.AddSignal(99, 0, 0, 0, 0); err != nil {
		t.Fatalf("AddSignal: %v", err)
	}
	if n := m.ScanQueue(false); n != 1 {
		t.Fatalf("ScanQueue(unwired) processed %d, want 1", n)
	}
}
