// Package dxm implements the Deferred Execution Manager: two
// fixed-capacity ring-buffer queues (wired and unwired) of small
// callback entries, drained by helper tasks woken whenever new work
// is queued. The overflow-notification idiom — a channel a consumer
// can drain instead of a blocking call — is grounded on oommsg.go's
// out-of-memory notification channel in the teacher repo.
package dxm

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"defs"
	"ec"
	"ml"
)

// Callback is a deferred action registered ahead of time and invoked
// later by entry id, matching the original's queued function-pointer
// entries; Go callbacks are registered once and referenced by a small
// id so a queue Entry stays a fixed two-uint64 shape.
type Callback func(arg uint64)

// Entry is one 16-byte deferred-execution queue slot: a registered
// callback id plus its opaque argument.
type Entry struct {
	CallbackID uint64
	Arg        uint64
}

// OverflowPolicy selects what AddCallback does when its target queue
// is full.
type OverflowPolicy int

const (
	// OverflowAbort invokes defs.Fatal — the original kernel's
	// response to a full DXM queue, since a deferred callback getting
	// silently lost can leave kernel state permanently inconsistent.
	OverflowAbort OverflowPolicy = iota
	// OverflowDropAndLog drops the entry and posts a DropNotice to a
	// channel the caller can drain, for callers willing to tolerate
	// lost deferred work in exchange for availability.
	OverflowDropAndLog
)

// DropNotice describes one entry dropped under OverflowDropAndLog.
type DropNotice struct {
	Wired      bool
	CallbackID uint64
	Arg        uint64
}

// Metrics receives a count every time a queue overflows, whichever
// OverflowPolicy is in effect. telemetry.Collectors satisfies this
// without dxm importing the telemetry package directly.
type Metrics interface {
	DXMOverrun(queue string)
}

type ring struct {
	buf        []Entry
	head, tail int
	count      int
}

func newRing(cap int) *ring {
	return &ring{buf: make([]Entry, cap)}
}

func (r *ring) push(e Entry) bool {
	if r.count == len(r.buf) {
		return false
	}
	r.buf[r.tail] = e
	r.tail = (r.tail + 1) % len(r.buf)
	r.count++
	return true
}

func (r *ring) pop() (Entry, bool) {
	if r.count == 0 {
		return Entry{}, false
	}
	e := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return e, true
}

// signalRecord is the packaged 10-byte record add_signal enqueues: a
// signal number and four parameter words, mirroring the original
// kernel's signal-dispatch payload.
type signalRecord struct {
	signo          int16
	p2, p3, p4, p5 int16
}

// Manager owns the wired/unwired queues, the callback registry, and
// the signal event count helper tasks block on.
type Manager struct {
	mu        sync.Mutex
	callbacks map[uint64]Callback
	nextCB    uint64

	wired   *ring
	unwired *ring
	policy  OverflowPolicy
	drops   chan DropNotice

	sig ec.EC1

	lockWired   *ml.ResourceLock
	lockUnwired *ml.ResourceLock

	metrics Metrics

	signalHandlers   map[int16]func(p2, p3, p4, p5 int16)
	signalRecs       map[uint64]signalRecord
	nextSignalRec    uint64
	signalDispatchCB uint64
}

// SetMetrics attaches m so every queue overflow is reported to it.
// Passing nil disables reporting.
func (m *Manager) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

// NewManager builds a Manager with the given queue capacities (spec's
// config.Tunables.DXMWiredQueueCap/DXMUnwiredQueueCap).
func NewManager(wiredCap, unwiredCap int, policy OverflowPolicy) *Manager {
	m := &Manager{
		callbacks:      make(map[uint64]Callback),
		wired:          newRing(wiredCap),
		unwired:        newRing(unwiredCap),
		policy:         policy,
		drops:          make(chan DropNotice, wiredCap+unwiredCap),
		lockWired:      ml.NewResourceLock(1),
		lockUnwired:    ml.NewResourceLock(2),
		signalHandlers: make(map[int16]func(p2, p3, p4, p5 int16)),
		signalRecs:     make(map[uint64]signalRecord),
	}
	m.sig.Init()
	m.signalDispatchCB = m.Register(m.dispatchSignal)
	return m
}

// Drops exposes the drop-notification channel for OverflowDropAndLog
// consumers.
func (m *Manager) Drops() <-chan DropNotice {
	return m.drops
}

// Register adds cb to the callback table and returns its id for use
// in AddCallback.
func (m *Manager) Register(cb Callback) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextCB
	m.nextCB++
	m.callbacks[id] = cb
	return id
}

// AddCallback enqueues a deferred call to a previously Registered
// callback on the wired or unwired queue, then wakes the helper tasks
// blocked waiting for new deferred work.
func (m *Manager) AddCallback(wired bool, callbackID, arg uint64) error {
	m.mu.Lock()
	if _, ok := m.callbacks[callbackID]; !ok {
		m.mu.Unlock()
		return defs.EInvalidArg
	}
	q := m.unwired
	if wired {
		q = m.wired
	}
	ok := q.push(Entry{CallbackID: callbackID, Arg: arg})
	m.mu.Unlock()
	if !ok {
		return m.overflow(wired, callbackID, arg)
	}
	m.wakeHelpers()
	return nil
}

func (m *Manager) overflow(wired bool, callbackID, arg uint64) error {
	if m.metrics != nil {
		queue := "unwired"
		if wired {
			queue = "wired"
		}
		m.metrics.DXMOverrun(queue)
	}
	switch m.policy {
	case OverflowDropAndLog:
		select {
		case m.drops <- DropNotice{Wired: wired, CallbackID: callbackID, Arg: arg}:
		default:
		}
		return defs.EDXMNoQueueSlots
	default:
		defs.Fatal(defs.EDXMNoQueueSlots, "deferred execution queue full")
		return defs.EDXMNoQueueSlots
	}
}

// wakeHelpers wakes any helper task blocked waiting for new deferred
// work, the queue-side-effect every AddCallback carries.
func (m *Manager) wakeHelpers() {
	m.sig.AdvanceWithoutDispatch()
}

// RegisterSignalHandler installs fn as the handler invoked when a
// record previously queued by AddSignal for signo is dispatched off
// the unwired queue. A later call for the same signo replaces fn.
func (m *Manager) RegisterSignalHandler(signo int16, fn func(p2, p3, p4, p5 int16)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalHandlers[signo] = fn
}

// AddSignal packages signo and its four parameters into a 10-byte
// record and enqueues a signal-dispatch callback on the unwired
// queue; when scanned, the callback looks signo up in the dispatch
// table installed by RegisterSignalHandler and invokes it.
func (m *Manager) AddSignal(signo, p2, p3, p4, p5 int16) error {
	m.mu.Lock()
	id := m.nextSignalRec
	m.nextSignalRec++
	m.signalRecs[id] = signalRecord{signo, p2, p3, p4, p5}
	cb := m.signalDispatchCB
	m.mu.Unlock()
	return m.AddCallback(false, cb, id)
}

// dispatchSignal is the callback registered once in NewManager and
// referenced by every AddSignal-queued entry: it looks the packaged
// record's signal number up in the dispatch table and invokes the
// handler, discarding the record either way.
func (m *Manager) dispatchSignal(id uint64) {
	m.mu.Lock()
	rec, ok := m.signalRecs[id]
	delete(m.signalRecs, id)
	var handler func(p2, p3, p4, p5 int16)
	if ok {
		handler = m.signalHandlers[rec.signo]
	}
	m.mu.Unlock()
	if handler != nil {
		handler(rec.p2, rec.p3, rec.p4, rec.p5)
	}
}

// ScanQueue drains every entry currently on the named queue, invoking
// each entry's callback in FIFO order, and returns how many ran.
func (m *Manager) ScanQueue(wired bool) int {
	m.mu.Lock()
	q := m.unwired
	if wired {
		q = m.wired
	}
	var todo []Entry
	for {
		e, ok := q.pop()
		if !ok {
			break
		}
		todo = append(todo, e)
	}
	cbs := make(map[uint64]Callback, len(m.callbacks))
	for k, v := range m.callbacks {
		cbs[k] = v
	}
	m.mu.Unlock()

	for _, e := range todo {
		if cb, ok := cbs[e.CallbackID]; ok {
			cb(e.Arg)
		}
	}
	return len(todo)
}

// RunHelpers starts the two helper tasks (one per queue, each holding
// its own position in the resource lock order while it scans) and
// blocks until ctx is canceled. It mirrors the original's pair of
// fixed helper processes bound to the wired and unwired queues.
func (m *Manager) RunHelpers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.helperLoop(ctx, true, m.lockWired) })
	g.Go(func() error { return m.helperLoop(ctx, false, m.lockUnwired) })
	return g.Wait()
}

func (m *Manager) helperLoop(ctx context.Context, wired bool, lock *ml.ResourceLock) error {
	target := int32(1)
	for {
		if err := m.sig.Wait(ctx, target); err != nil {
			if err == ec.ErrQuit {
				return nil
			}
			return err
		}
		target = m.sig.Read() + 1
		lctx := lock.Lock(ctx)
		m.ScanQueue(wired)
		lock.Unlock(lctx)
	}
}
