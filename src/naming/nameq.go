// NameQ is a bounded queue of pending name resolutions drained by a
// fixed pool of worker goroutines, supplementing the distilled spec
// with the original's nameq.c — a queue that lets a caller submit a
// lookup without blocking its own goroutine on a possibly slow remote
// resolution, picking up the answer later via a channel. The request/
// answer-channel shape is grounded on fs.Bdev_req_t's AckCh.
package naming

import (
	"context"

	"defs"
	"uid"
	"ustr"
)

// Request is one queued name resolution.
type Request struct {
	ASID defs.ASID_t
	Path []byte
}

// Answer is the result of a queued Request.
type Answer struct {
	UID uid.UID
	Err error
}

// NameQ drains queued resolution requests with a fixed pool of
// workers, each calling back into a Resolver.
type NameQ struct {
	r   *Resolver
	in  chan nameqJob
}

type nameqJob struct {
	req   Request
	reply chan Answer
}

// NewNameQ builds a NameQ over r with queue depth cap, which bounds
// how many submissions may be outstanding before Submit blocks.
func NewNameQ(r *Resolver, cap int) *NameQ {
	return &NameQ{r: r, in: make(chan nameqJob, cap)}
}

// Run starts nworkers goroutines draining the queue and returns at
// once; the workers exit when ctx is canceled.
func (q *NameQ) Run(ctx context.Context, nworkers int) {
	for i := 0; i < nworkers; i++ {
		go q.worker(ctx)
	}
}

func (q *NameQ) worker(ctx context.Context) {
	for {
		select {
		case job := <-q.in:
			u, err := q.r.Resolve(ctx, job.req.ASID, ustr.Ustr(job.req.Path))
			job.reply <- Answer{UID: u, Err: err}
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues req and returns a channel that will receive exactly
// one Answer once a worker has processed it.
func (q *NameQ) Submit(ctx context.Context, req Request) (<-chan Answer, error) {
	reply := make(chan Answer, 1)
	select {
	case q.in <- nameqJob{req: req, reply: reply}:
		return reply, nil
	case <-ctx.Done():
		return nil, defs.EFault
	}
}
