// Package task models one cooperating kernel task — what the original
// called a process/thread context. The teacher (tinfo.Tnote_t) reads
// its "current task" out of a per-goroutine field stashed via a
// patched runtime (runtime.Gptr/Setgptr) because biscuit *is* the
// runtime. This module runs hosted on the stock Go runtime, which has
// no such hook, so the same "per-task state reachable from wherever
// you're running" idea is carried via context.Context instead —
// idiomatic for hosted Go and how the rest of the retrieved corpus
// (ffromani-dra-driver-memory, hanwen-go-fuse) thread per-call state.
package task

import (
	"context"
	"sync"

	"accnt"
	"defs"
)

// Note is the per-task state threaded through a context.Context,
// standing in for tinfo.Tnote_t.
type Note struct {
	ID    defs.Tid_t
	asid  defs.ASID_t
	Prio  int
	Accnt accnt.Accnt_t

	createdAt int

	mu      sync.Mutex
	killed  bool
	doomed  bool
	quitval int
}

// NewNote constructs a task note for id running under asid, stamping
// its creation time so Accnt can later be Finish'd against it.
func NewNote(id defs.Tid_t, asid defs.ASID_t, prio int) *Note {
	n := &Note{ID: id, asid: asid, Prio: prio}
	n.createdAt = n.Accnt.Now()
	return n
}

// CreatedAt returns the nanosecond timestamp NewNote stamped this note
// with, the baseline callers pass to Accnt.Finish when tearing a task
// down.
func (n *Note) CreatedAt() int {
	return n.createdAt
}

// ASID returns the address space this task runs under, satisfying
// collab.Proc without task importing collab.
func (n *Note) ASID() defs.ASID_t {
	return n.asid
}

// Killed reports whether an asynchronous quit has been delivered.
func (n *Note) Killed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.killed
}

// Doomed reports whether the task is marked for forced termination,
// mirroring tinfo.Tnote_t.Doomed.
func (n *Note) Doomed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.doomed
}

// Kill delivers an asynchronous quit to the task, recording quitval so
// waiters can distinguish successive quits. Matching collab.Proc's
// signature lets a Note stand in directly as the process collaborator
// a kernel subsystem signals, rather than needing a wrapper type.
func (n *Note) Kill(quitval int) {
	n.mu.Lock()
	n.killed = true
	n.quitval = quitval
	n.mu.Unlock()
}

// QuitVal returns the current quit-value counter.
func (n *Note) QuitVal() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.quitval
}

type ctxKey struct{}

// With returns a context carrying n as the current task note.
func With(ctx context.Context, n *Note) context.Context {
	return context.WithValue(ctx, ctxKey{}, n)
}

// Current retrieves the task note stashed in ctx. It panics if none
// was installed, mirroring tinfo.Current's "nuts" panic on a nil
// runtime.Gptr() — callers on the task-cooperative paths this module
// covers always have one.
func Current(ctx context.Context) *Note {
	n, ok := ctx.Value(ctxKey{}).(*Note)
	if !ok || n == nil {
		panic("task: no current task note in context")
	}
	return n
}

// Registry tracks all live task notes by id, mirroring
// tinfo.Threadinfo_t.
type Registry struct {
	mu    sync.Mutex
	notes map[defs.Tid_t]*Note
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{notes: make(map[defs.Tid_t]*Note)}
}

// Add registers n under its ID.
func (r *Registry) Add(n *Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[n.ID] = n
}

// Remove drops the task note for id.
func (r *Registry) Remove(id defs.Tid_t) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notes, id)
}

// Lookup finds the task note for id, if still registered.
func (r *Registry) Lookup(id defs.Tid_t) (*Note, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	return n, ok
}

// ByASID collects every task note currently belonging to asid, used
// by cmd/kernelboot's DXM kill callback to reach every task of an
// ASID.
func (r *Registry) ByASID(asid defs.ASID_t) []*Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Note
	for _, n := range r.notes {
		if n.asid == asid {
			out = append(out, n)
		}
	}
	return out
}
