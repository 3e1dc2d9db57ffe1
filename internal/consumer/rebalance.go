package consumer

import (
	"sync"
	"sync/atomic"

	"github.com/kafcore/kafcore/kafka"
)

// RebalanceManager receives the driver's three rebalance callbacks and
// publishes their effect through plain fields guarded by a mutex
// (spec §4.2: "invoked only from the driver's internal poll thread, so
// no additional locking is required beyond publishing the flags" — we
// still take a mutex here because, unlike the Ruby original, Go gives
// no such single-writer guarantee for free across driver
// implementations; the lock is uncontended in the common case and
// keeps the struct safe to read from the Listener goroutine too).
type RebalanceManager struct {
	mu       sync.Mutex
	assigned map[string]map[int32]struct{}
	revoked  map[string]map[int32]struct{}
	lost     map[string]map[int32]struct{}
	changed  atomic.Bool
	active   atomic.Bool
}

// NewRebalanceManager returns an empty RebalanceManager.
func NewRebalanceManager() *RebalanceManager {
	return &RebalanceManager{
		assigned: make(map[string]map[int32]struct{}),
		revoked:  make(map[string]map[int32]struct{}),
		lost:     make(map[string]map[int32]struct{}),
	}
}

func addTPs(set map[string]map[int32]struct{}, tps []kafka.TopicPartition) {
	for _, tp := range tps {
		m, ok := set[tp.Topic]
		if !ok {
			m = make(map[int32]struct{})
			set[tp.Topic] = m
		}
		m[tp.Partition] = struct{}{}
	}
}

// OnPartitionsAssigned records newly assigned partitions.
func (r *RebalanceManager) OnPartitionsAssigned(tps []kafka.TopicPartition) {
	r.mu.Lock()
	addTPs(r.assigned, tps)
	r.mu.Unlock()
	r.changed.Store(true)
	r.active.Store(true)
}

// OnPartitionsRevoked records cooperatively revoked partitions.
func (r *RebalanceManager) OnPartitionsRevoked(tps []kafka.TopicPartition) {
	r.mu.Lock()
	addTPs(r.revoked, tps)
	r.mu.Unlock()
	r.changed.Store(true)
	r.active.Store(true)
}

// OnPartitionsLost records partitions lost without a clean revoke.
func (r *RebalanceManager) OnPartitionsLost(tps []kafka.TopicPartition) {
	r.mu.Lock()
	addTPs(r.lost, tps)
	addTPs(r.revoked, tps)
	r.mu.Unlock()
	r.changed.Store(true)
	r.active.Store(true)
}

// Changed reports whether any callback fired since the last Clear.
func (r *RebalanceManager) Changed() bool { return r.changed.Load() }

// Active reports whether the driver has delivered its first rebalance
// callback yet (used by Client.Stop's cooperative-sticky wait).
func (r *RebalanceManager) Active() bool { return r.active.Load() }

// Clear resets the changed flag and every recorded set. It is the only
// way the changed flag returns to false.
func (r *RebalanceManager) Clear() {
	r.mu.Lock()
	r.assigned = make(map[string]map[int32]struct{})
	r.revoked = make(map[string]map[int32]struct{})
	r.lost = make(map[string]map[int32]struct{})
	r.mu.Unlock()
	r.changed.Store(false)
}

// RevokedPartitions returns the union of revoked and lost partitions.
func (r *RebalanceManager) RevokedPartitions() []kafka.TopicPartition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return flatten(r.revoked)
}

// LostPartitions returns the partitions lost without a clean revoke.
func (r *RebalanceManager) LostPartitions() []kafka.TopicPartition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return flatten(r.lost)
}

// AssignedPartitions returns the partitions assigned since the last
// Clear.
func (r *RebalanceManager) AssignedPartitions() []kafka.TopicPartition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return flatten(r.assigned)
}

func flatten(set map[string]map[int32]struct{}) []kafka.TopicPartition {
	var out []kafka.TopicPartition
	for topic, parts := range set {
		for p := range parts {
			out = append(out, kafka.TopicPartition{Topic: topic, Partition: p})
		}
	}
	return out
}
