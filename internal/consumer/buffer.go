package consumer

import (
	"sort"

	"github.com/kafcore/kafcore/kafka"
)

// RawMessagesBuffer is an ordered, append-only staging area for
// driver records fetched during one poll cycle (spec §4.3). It is
// cleared every cycle by the Listener.
type RawMessagesBuffer struct {
	records []kafka.RawMessage
}

// NewRawMessagesBuffer returns an empty RawMessagesBuffer.
func NewRawMessagesBuffer() *RawMessagesBuffer {
	return &RawMessagesBuffer{}
}

// Add appends one driver record.
func (b *RawMessagesBuffer) Add(r kafka.RawMessage) {
	b.records = append(b.records, r)
}

// Size returns the number of staged records.
func (b *RawMessagesBuffer) Size() int { return len(b.records) }

// Clear empties the buffer.
func (b *RawMessagesBuffer) Clear() { b.records = b.records[:0] }

// Delete drops every record belonging to (topic, partition), used
// when a partition is revoked mid-poll.
func (b *RawMessagesBuffer) Delete(topic string, partition int32) {
	kept := b.records[:0]
	for _, r := range b.records {
		if r.Topic == topic && r.Partition == partition {
			continue
		}
		kept = append(kept, r)
	}
	b.records = kept
}

// Uniq drops all but the last occurrence of each (topic, partition,
// offset) triple, collapsing duplicates a mid-poll rebalance can
// introduce when a partition is reassigned (spec invariant 6).
// Per-partition relative order of survivors is preserved.
func (b *RawMessagesBuffer) Uniq() {
	type key struct {
		topic     string
		partition int32
		offset    int64
	}
	lastIndex := make(map[key]int, len(b.records))
	for i, r := range b.records {
		lastIndex[key{r.Topic, r.Partition, r.Offset}] = i
	}
	kept := make([]kafka.RawMessage, 0, len(lastIndex))
	for i, r := range b.records {
		if lastIndex[key{r.Topic, r.Partition, r.Offset}] == i {
			kept = append(kept, r)
		}
	}
	b.records = kept
}

// Records returns the staged records in insertion order. Callers must
// not mutate the returned slice.
func (b *RawMessagesBuffer) Records() []kafka.RawMessage { return b.records }

// MessagesBuffer maps (topic, partition) to the deserialized Message
// batch built from a RawMessagesBuffer, preserving per-partition
// order (spec §4.3).
type MessagesBuffer struct {
	batches map[kafka.TopicPartition][]kafka.Message
	order   []kafka.TopicPartition
}

// NewMessagesBuffer returns an empty MessagesBuffer.
func NewMessagesBuffer() *MessagesBuffer {
	return &MessagesBuffer{batches: make(map[kafka.TopicPartition][]kafka.Message)}
}

// Remap deserializes every record in raw via deserialize, grouping by
// (topic, partition) in first-seen order. deserialize looks up the
// TopicDescriptor's Deserializer for the record's topic.
func (m *MessagesBuffer) Remap(raw *RawMessagesBuffer, deserialize func(kafka.RawMessage) (kafka.Message, error)) error {
	m.batches = make(map[kafka.TopicPartition][]kafka.Message)
	m.order = m.order[:0]
	for _, r := range raw.Records() {
		msg, err := deserialize(r)
		if err != nil {
			return err
		}
		tp := kafka.TopicPartition{Topic: r.Topic, Partition: r.Partition}
		if _, ok := m.batches[tp]; !ok {
			m.order = append(m.order, tp)
		}
		m.batches[tp] = append(m.batches[tp], msg)
	}
	for _, tp := range m.order {
		sort.SliceStable(m.batches[tp], func(i, j int) bool {
			return m.batches[tp][i].Offset < m.batches[tp][j].Offset
		})
	}
	return nil
}

// Clear empties the buffer.
func (m *MessagesBuffer) Clear() {
	m.batches = make(map[kafka.TopicPartition][]kafka.Message)
	m.order = nil
}

// Delete drops the batch for (topic, partition), used when that
// partition was revoked mid-poll.
func (m *MessagesBuffer) Delete(tp kafka.TopicPartition) {
	delete(m.batches, tp)
	for i, o := range m.order {
		if o == tp {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Each calls fn once per (topic, partition) batch, in the order
// batches were first populated by Remap.
func (m *MessagesBuffer) Each(fn func(tp kafka.TopicPartition, batch []kafka.Message)) {
	for _, tp := range m.order {
		fn(tp, m.batches[tp])
	}
}

// Size returns the number of distinct (topic, partition) batches.
func (m *MessagesBuffer) Size() int { return len(m.order) }

// Lookup returns the batch for tp and whether one exists.
func (m *MessagesBuffer) Lookup(tp kafka.TopicPartition) ([]kafka.Message, bool) {
	b, ok := m.batches[tp]
	return b, ok
}
