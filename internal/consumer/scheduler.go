package consumer

// Scheduler decides how jobs built by the Listener are handed to the
// JobsQueue (spec §4.7). The default policy enqueues in submission
// order; any reordering a future implementation introduces must still
// preserve per-partition submission order.
type Scheduler interface {
	ScheduleConsumption(q *JobsQueue, jobs []*Job)
	ScheduleRevocation(q *JobsQueue, jobs []*Job)
	ScheduleShutdown(q *JobsQueue, jobs []*Job)
}

// FIFOScheduler is the default Scheduler: push jobs in the order they
// were built.
type FIFOScheduler struct{}

func (FIFOScheduler) ScheduleConsumption(q *JobsQueue, jobs []*Job) { pushAll(q, jobs) }
func (FIFOScheduler) ScheduleRevocation(q *JobsQueue, jobs []*Job)  { pushAll(q, jobs) }
func (FIFOScheduler) ScheduleShutdown(q *JobsQueue, jobs []*Job)    { pushAll(q, jobs) }

func pushAll(q *JobsQueue, jobs []*Job) {
	for _, j := range jobs {
		q.Push(j.GroupID(), j)
	}
}
