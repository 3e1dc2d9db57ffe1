package consumer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kafcore/kafcore/kafka"
)

// executorKey identifies one Executor within an ExecutorsBuffer: a
// (topic, partition, virtual group) triple (spec §4.5).
type executorKey struct {
	topic        string
	partition    int32
	virtualGroup string
}

// Executor binds a consumer instance to (topic, partition, virtual
// group). If the owning TopicDescriptor has Persistence enabled the
// instance is cached across batches; otherwise Instance rebuilds it
// per batch via Factory.
type Executor struct {
	ID           string
	GroupID      string
	Topic        string
	Partition    int32
	VirtualGroup string

	desc        kafka.TopicDescriptor
	coordinator *Coordinator
	ctl         kafka.ExecutionControl
	monitor     *kafka.Monitor

	mu       sync.Mutex
	instance kafka.Consumer
}

// newExecutor constructs an Executor. desc, ctl and monitor are
// supplied by ExecutorsBuffer.FindOrCreate.
func newExecutor(groupID string, partition int32, virtualGroup string, desc kafka.TopicDescriptor, coord *Coordinator, ctl kafka.ExecutionControl, monitor *kafka.Monitor) *Executor {
	return &Executor{
		ID:           uuid.NewString(),
		GroupID:      groupID,
		Topic:        desc.Name,
		Partition:    partition,
		VirtualGroup: virtualGroup,
		desc:         desc,
		coordinator:  coord,
		ctl:          ctl,
		monitor:      monitor,
	}
}

// Coordinator returns the Coordinator backing this executor's
// partition.
func (e *Executor) Coordinator() *Coordinator { return e.coordinator }

// TopicPartition returns the (topic, partition) this executor serves.
func (e *Executor) TopicPartition() kafka.TopicPartition {
	return kafka.TopicPartition{Topic: e.Topic, Partition: e.Partition}
}

// Instance returns the bound consumer, lazily materializing it on
// first use. If persistence is disabled a fresh instance replaces the
// cached one on every call.
func (e *Executor) Instance() kafka.Consumer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.instance != nil && e.desc.Persistence {
		return e.instance
	}
	inst := WrapConsumer(e.desc.ConsumerFactory(), e.desc, e.monitor)
	inst.Bind(e.ctl)
	e.instance = inst
	return inst
}

// PauseForRetry pauses this executor's partition using the topic's
// PauseConfig, applying exponential backoff bounded by MaxTimeout when
// enabled, then seeks back so the batch is redelivered once the pause
// expires (spec §4.4 "retry backoff", §5 pause_timeout/
// pause_max_timeout, §7 "coordinator applies pause-and-retry").
// Messages the consumer already explicitly marked consumed mid-batch
// (tracked via Coordinator.MarkOffset) are never redelivered.
func (e *Executor) PauseForRetry(attempt int, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}
	until := time.Now().Add(retryBackoff(e.desc.Pause, attempt))
	e.ctl.Pause(until.UnixMilli())

	seekTo := batch[0]
	if last := e.coordinator.LastOffset(); last > seekTo.Offset {
		seekTo.Offset = last
	}
	_ = e.ctl.Seek(seekTo)
}

// retryBackoff computes the pause duration for the attempt'th
// consecutive failure. With ExponentialBackoff disabled it is a flat
// Timeout (capped at MaxTimeout); enabled, it doubles per attempt and
// saturates at MaxTimeout.
func retryBackoff(cfg kafka.PauseConfig, attempt int) time.Duration {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	max := cfg.MaxTimeout
	if max <= 0 {
		max = timeout
	}
	if !cfg.ExponentialBackoff {
		if timeout > max {
			return max
		}
		return timeout
	}
	d := timeout
	for i := 1; i < attempt; i++ {
		if d >= max {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

// Materialized reports whether a consumer instance currently exists
// for this executor. OnRevoked/OnShutdown only fire if this is true
// (spec §4.5).
func (e *Executor) Materialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instance != nil
}

// ExecutorsBuffer owns every Executor for one Listener, keyed by
// (topic, partition, virtual group).
type ExecutorsBuffer struct {
	mu    sync.Mutex
	items map[executorKey]*Executor
}

// NewExecutorsBuffer returns an empty ExecutorsBuffer.
func NewExecutorsBuffer() *ExecutorsBuffer {
	return &ExecutorsBuffer{items: make(map[executorKey]*Executor)}
}

// FindOrCreate returns the Executor for (topic, partition, virtual
// group), creating it if absent. The consumer instance itself is built
// later, by Instance, via desc.ConsumerFactory.
func (b *ExecutorsBuffer) FindOrCreate(groupID string, desc kafka.TopicDescriptor, partition int32, virtualGroup string, coord *Coordinator, ctl kafka.ExecutionControl, monitor *kafka.Monitor) *Executor {
	key := executorKey{desc.Name, partition, virtualGroup}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.items[key]
	if !ok {
		e = newExecutor(groupID, partition, virtualGroup, desc, coord, ctl, monitor)
		b.items[key] = e
	}
	return e
}

// FindAll returns every executor currently bound to (topic,
// partition), across all its virtual groups.
func (b *ExecutorsBuffer) FindAll(topic string, partition int32) []*Executor {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Executor
	for k, e := range b.items {
		if k.topic == topic && k.partition == partition {
			out = append(out, e)
		}
	}
	return out
}

// Revoke removes every executor bound to (topic, partition) and
// returns them so the caller can run their OnRevoked hook.
func (b *ExecutorsBuffer) Revoke(topic string, partition int32) []*Executor {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Executor
	for k, e := range b.items {
		if k.topic == topic && k.partition == partition {
			out = append(out, e)
			delete(b.items, k)
		}
	}
	return out
}

// Each calls fn for every known executor.
func (b *ExecutorsBuffer) Each(fn func(*Executor)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.items {
		fn(e)
	}
}

// Clear removes every executor.
func (b *ExecutorsBuffer) Clear() {
	b.mu.Lock()
	b.items = make(map[executorKey]*Executor)
	b.mu.Unlock()
}
