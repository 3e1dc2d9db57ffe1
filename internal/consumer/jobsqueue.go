package consumer

import "sync"

// groupQueue is the FIFO queue plus in-flight counter for one
// subscription group.
type groupQueue struct {
	pending  []*Job
	inFlight int
}

// JobsQueue is a per-subscription-group FIFO work queue shared by
// every worker in the process pool (spec §4.6). Push is non-blocking;
// backpressure comes from the Listener always waiting for its group
// to drain before the next fetch cycle.
type JobsQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	groups map[string]*groupQueue
	closed bool
}

// NewJobsQueue returns an empty, open JobsQueue.
func NewJobsQueue() *JobsQueue {
	q := &JobsQueue{groups: make(map[string]*groupQueue)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *JobsQueue) groupFor(gid string) *groupQueue {
	g, ok := q.groups[gid]
	if !ok {
		g = &groupQueue{}
		q.groups[gid] = g
	}
	return g
}

// Push enqueues job for its executor's subscription group.
func (q *JobsQueue) Push(gid string, job *Job) {
	q.mu.Lock()
	g := q.groupFor(gid)
	g.pending = append(g.pending, job)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pop blocks until a job is available for gid or the queue is closed,
// in which case it returns (nil, false). A popped job counts as
// in-flight until Complete is called for it.
func (q *JobsQueue) Pop(gid string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		g := q.groupFor(gid)
		if len(g.pending) > 0 {
			job := g.pending[0]
			g.pending = g.pending[1:]
			g.inFlight++
			return job, true
		}
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
}

// PopAny blocks until any group has a pending job or the queue is
// closed. Workers use this instead of Pop(gid) because one process
// worker pool drains every subscription group's queue.
func (q *JobsQueue) PopAny() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for gid, g := range q.groups {
			if len(g.pending) > 0 {
				job := g.pending[0]
				g.pending = g.pending[1:]
				g.inFlight++
				_ = gid
				return job, true
			}
		}
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
}

// Complete marks job as finished; its group's in-flight counter
// decrements and any blocked Wait is signaled.
func (q *JobsQueue) Complete(gid string, job *Job) {
	q.mu.Lock()
	g := q.groupFor(gid)
	if g.inFlight > 0 {
		g.inFlight--
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Empty reports whether gid has no pending and no in-flight jobs.
func (q *JobsQueue) Empty(gid string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	g := q.groupFor(gid)
	return len(g.pending) == 0 && g.inFlight == 0
}

// Wait blocks the caller until gid's pending and in-flight counts
// both reach zero.
func (q *JobsQueue) Wait(gid string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		g := q.groupFor(gid)
		if len(g.pending) == 0 && g.inFlight == 0 {
			return
		}
		q.cond.Wait()
	}
}

// Clear drops gid's pending jobs but preserves its in-flight counter,
// so a concurrent Wait remains correct (spec §4.6).
func (q *JobsQueue) Clear(gid string) {
	q.mu.Lock()
	g := q.groupFor(gid)
	g.pending = nil
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Close unblocks every blocked Pop/PopAny permanently.
func (q *JobsQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
