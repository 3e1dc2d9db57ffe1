package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafcore/kafcore/kafka"
)

func TestRawMessagesBuffer_UniqKeepsLastOccurrencePerOffset(t *testing.T) {
	b := NewRawMessagesBuffer()
	b.Add(kafka.RawMessage{Topic: "orders", Partition: 0, Offset: 1, Value: []byte("first")})
	b.Add(kafka.RawMessage{Topic: "orders", Partition: 0, Offset: 2, Value: []byte("second")})
	b.Add(kafka.RawMessage{Topic: "orders", Partition: 0, Offset: 1, Value: []byte("first-redelivered")})

	b.Uniq()

	require.Equal(t, 2, b.Size())
	records := b.Records()
	assert.Equal(t, int64(2), records[0].Offset)
	assert.Equal(t, int64(1), records[1].Offset)
	assert.Equal(t, "first-redelivered", string(records[1].Value))
}

func TestRawMessagesBuffer_DeleteDropsOnlyMatchingPartition(t *testing.T) {
	b := NewRawMessagesBuffer()
	b.Add(kafka.RawMessage{Topic: "orders", Partition: 0, Offset: 1})
	b.Add(kafka.RawMessage{Topic: "orders", Partition: 1, Offset: 1})

	b.Delete("orders", 0)

	require.Equal(t, 1, b.Size())
	assert.Equal(t, int32(1), b.Records()[0].Partition)
}

func TestMessagesBuffer_RemapGroupsByTopicPartitionInOrder(t *testing.T) {
	raw := NewRawMessagesBuffer()
	raw.Add(kafka.RawMessage{Topic: "orders", Partition: 0, Offset: 2})
	raw.Add(kafka.RawMessage{Topic: "orders", Partition: 1, Offset: 5})
	raw.Add(kafka.RawMessage{Topic: "orders", Partition: 0, Offset: 1})

	mb := NewMessagesBuffer()
	err := mb.Remap(raw, func(r kafka.RawMessage) (kafka.Message, error) {
		return kafka.Message{Topic: r.Topic, Partition: r.Partition, Offset: r.Offset}, nil
	})
	require.NoError(t, err)

	require.Equal(t, 2, mb.Size())

	tp0 := kafka.TopicPartition{Topic: "orders", Partition: 0}
	batch, ok := mb.Lookup(tp0)
	require.True(t, ok)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0].Offset, "batch must be sorted by offset within a partition")
	assert.Equal(t, int64(2), batch[1].Offset)
}

func TestMessagesBuffer_DeleteRemovesBatchAndOrderEntry(t *testing.T) {
	raw := NewRawMessagesBuffer()
	raw.Add(kafka.RawMessage{Topic: "orders", Partition: 0, Offset: 1})

	mb := NewMessagesBuffer()
	require.NoError(t, mb.Remap(raw, func(r kafka.RawMessage) (kafka.Message, error) {
		return kafka.Message{Topic: r.Topic, Partition: r.Partition, Offset: r.Offset}, nil
	}))

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	mb.Delete(tp)

	_, ok := mb.Lookup(tp)
	assert.False(t, ok)
	assert.Equal(t, 0, mb.Size())
}
