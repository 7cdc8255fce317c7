// Package netlog implements the kernel's ring-buffered event log: a
// fixed-capacity circular buffer of structured records, generalizing
// circbuf.Circbuf_t's head/tail byte-ring arithmetic from raw bytes to
// one Record per slot. Unlike circbuf, which refuses to accept more
// data once full, a Ring_t is a ring LOG: appending past capacity
// silently drops the oldest unread record, the way a kernel netlog
// keeps the most recent diagnostic history rather than blocking a
// caller on a slow reader. Every appended record is also emitted
// through a logr.Logger, so the in-memory ring and the structured log
// stream carry the same events.
package netlog

import (
	"sync"

	"github.com/go-logr/logr"

	"caller"
)

// Record is one netlog entry.
type Record struct {
	Seq    uint64
	Module string
	Event  string
	KV     []interface{}
}

// Ring_t is a fixed-capacity ring of Records plus a threaded logger.
type Ring_t struct {
	mu      sync.Mutex
	buf     []Record
	head    uint64 // next write position, monotonically increasing
	tail    uint64 // oldest unread position
	nextSeq uint64
	log     logr.Logger
	once    caller.Distinct_caller_t
}

// NewRing allocates a Ring_t holding up to capacity records, emitting
// every appended record through log.
func NewRing(capacity int, log logr.Logger) *Ring_t {
	if capacity <= 0 {
		panic("netlog: capacity must be positive")
	}
	return &Ring_t{
		buf: make([]Record, capacity),
		log: log,
	}
}

// Cap returns the ring's fixed capacity.
func (r *Ring_t) Cap() int {
	return len(r.buf)
}

// Len returns the number of unread records currently buffered.
func (r *Ring_t) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.head - r.tail)
}

// Append records one event under module, logging it through the
// threaded logr.Logger and storing it in the ring. If the ring is
// full, the oldest unread record is dropped to make room.
func (r *Ring_t) Append(module, event string, kv ...interface{}) Record {
	r.mu.Lock()
	rec := Record{Seq: r.nextSeq, Module: module, Event: event, KV: kv}
	r.nextSeq++
	idx := r.head % uint64(len(r.buf))
	r.buf[idx] = rec
	r.head++
	if r.head-r.tail > uint64(len(r.buf)) {
		r.tail = r.head - uint64(len(r.buf))
	}
	r.mu.Unlock()

	fields := make([]interface{}, 0, len(kv)+4)
	fields = append(fields, "module", module, "seq", rec.Seq)
	fields = append(fields, kv...)
	r.log.Info(event, fields...)
	return rec
}

// AppendOnce behaves like Append, but only actually records and logs
// the event the first time it is reached from a given call site;
// later calls from the same site are silently dropped instead of
// flooding the ring, for hot error paths (e.g. a retried helper loop)
// that would otherwise drown everything else out. Call EnableDedup
// once at startup to turn this on; it is a no-op otherwise.
func (r *Ring_t) AppendOnce(module, event string, kv ...interface{}) {
	if r.once.Enabled {
		if novel, _ := r.once.Distinct(); !novel {
			return
		}
	}
	r.Append(module, event, kv...)
}

// EnableDedup turns on AppendOnce's call-site deduplication. Off by
// default so Append's existing callers are unaffected.
func (r *Ring_t) EnableDedup() {
	r.once.Lock()
	r.once.Enabled = true
	r.once.Unlock()
}

// Drain returns every unread record in order and marks the ring
// empty, the netlog equivalent of circbuf's Copyout_n reading the
// whole buffer out to a consumer.
func (r *Ring_t) Drain() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.head - r.tail
	out := make([]Record, 0, n)
	for i := r.tail; i < r.head; i++ {
		out = append(out, r.buf[i%uint64(len(r.buf))])
	}
	r.tail = r.head
	return out
}
