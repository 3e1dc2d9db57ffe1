package consumer

import (
	"sync"
	"time"

	"github.com/kafcore/kafcore/kafka"
)

// Coordinator tracks per-(topic,partition) state: the number of
// scheduled-but-not-finished work units, an error-driven pause timer,
// a revocation flag, and retry/throttle counters (spec §4.4).
type Coordinator struct {
	Topic     string
	Partition int32

	mu         sync.Mutex
	count      int
	pauseUntil time.Time
	paused     bool
	revoked    bool
	retryCount int
	lastOffset int64
}

// NewCoordinator returns a Coordinator for (topic, partition).
func NewCoordinator(topic string, partition int32) *Coordinator {
	return &Coordinator{Topic: topic, Partition: partition}
}

// TopicPartition returns the (topic, partition) this coordinator owns.
func (c *Coordinator) TopicPartition() kafka.TopicPartition {
	return kafka.TopicPartition{Topic: c.Topic, Partition: c.Partition}
}

// Start is called ahead of scheduling jobs for a new batch. It changes
// no state; messages is neither stored nor used.
func (c *Coordinator) Start(messages int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// count is intentionally not reset here: Start marks the
	// beginning of scheduling for a new batch, but jobs from a prior
	// batch (e.g. a slow long-running consumer) may still be
	// in-flight and must keep being tracked.
	_ = messages
}

// Increment records one more scheduled job.
func (c *Coordinator) Increment() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

// Decrement records one fewer in-flight job. Called when a worker
// finishes a job for this coordinator.
func (c *Coordinator) Decrement() {
	c.mu.Lock()
	if c.count > 0 {
		c.count--
	}
	c.mu.Unlock()
}

// Finished reports whether this coordinator has no in-flight jobs, or
// has been revoked (in which case it is considered finished
// regardless of the counter, per spec §4.4).
func (c *Coordinator) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revoked || c.count == 0
}

// Pause marks this partition paused until the given time.
func (c *Coordinator) Pause(until time.Time) {
	c.mu.Lock()
	c.paused = true
	c.pauseUntil = until
	c.mu.Unlock()
}

// Resume reports whether the pause has expired, clearing the paused
// flag if so. Returns false if not currently paused or not yet
// expired.
func (c *Coordinator) Resume(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return false
	}
	if now.Before(c.pauseUntil) {
		return false
	}
	c.paused = false
	return true
}

// Paused reports whether this partition is currently paused.
func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Revoke marks the coordinator revoked; Finished now always reports
// true regardless of the in-flight counter.
func (c *Coordinator) Revoke() {
	c.mu.Lock()
	c.revoked = true
	c.mu.Unlock()
}

// Revoked reports whether Revoke has been called.
func (c *Coordinator) Revoked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revoked
}

// IncrementRetry records one more consecutive consumer failure and
// returns the new count, used by the pause-and-retry error policy.
func (c *Coordinator) IncrementRetry() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryCount++
	return c.retryCount
}

// ResetRetry clears the consecutive-failure counter after a
// successful batch.
func (c *Coordinator) ResetRetry() {
	c.mu.Lock()
	c.retryCount = 0
	c.mu.Unlock()
}

// MarkOffset records the offset following the last message known to
// be consumed, i.e. the next offset to deliver. A
// pause-and-retry seek-back (Executor.PauseForRetry) consults this so
// a batch retry never redelivers messages a consumer already
// explicitly marked consumed mid-batch.
func (c *Coordinator) MarkOffset(offset int64) {
	c.mu.Lock()
	if offset > c.lastOffset {
		c.lastOffset = offset
	}
	c.mu.Unlock()
}

// LastOffset returns the last offset recorded via MarkOffset.
func (c *Coordinator) LastOffset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOffset
}

// CoordinatorsBuffer owns the (topic, partition) -> Coordinator
// mapping for one Listener (spec §4.4).
type CoordinatorsBuffer struct {
	mu    sync.Mutex
	items map[kafka.TopicPartition]*Coordinator
}

// NewCoordinatorsBuffer returns an empty CoordinatorsBuffer.
func NewCoordinatorsBuffer() *CoordinatorsBuffer {
	return &CoordinatorsBuffer{items: make(map[kafka.TopicPartition]*Coordinator)}
}

// FindOrCreate returns the Coordinator for tp, creating it if absent.
func (b *CoordinatorsBuffer) FindOrCreate(tp kafka.TopicPartition) *Coordinator {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.items[tp]
	if !ok {
		c = NewCoordinator(tp.Topic, tp.Partition)
		b.items[tp] = c
	}
	return c
}

// Find returns the Coordinator for tp, or nil if none exists.
func (b *CoordinatorsBuffer) Find(tp kafka.TopicPartition) *Coordinator {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items[tp]
}

// Delete removes the coordinator for tp, typically after a partition
// is fully revoked and its executors drained.
func (b *CoordinatorsBuffer) Delete(tp kafka.TopicPartition) {
	b.mu.Lock()
	delete(b.items, tp)
	b.mu.Unlock()
}

// Resume calls fn for every coordinator whose pause has expired as of
// now, actually flipping their paused flag. The caller (Listener) is
// responsible for telling the driver to resume the partition.
func (b *CoordinatorsBuffer) Resume(now time.Time, fn func(tp kafka.TopicPartition)) {
	b.mu.Lock()
	items := make([]*Coordinator, 0, len(b.items))
	for _, c := range b.items {
		items = append(items, c)
	}
	b.mu.Unlock()
	for _, c := range items {
		if c.Resume(now) {
			fn(c.TopicPartition())
		}
	}
}

// Each calls fn for every known coordinator.
func (b *CoordinatorsBuffer) Each(fn func(tp kafka.TopicPartition, c *Coordinator)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for tp, c := range b.items {
		fn(tp, c)
	}
}
