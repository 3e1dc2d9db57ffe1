package kafka

import (
	"strconv"
	"time"
)

// TopicPartition identifies one partition of one topic, the unit pause,
// resume, seek and assignment operate on.
type TopicPartition struct {
	Topic     string
	Partition int32
	// Offset is meaningful for Seek and for the TPL snapshots Client
	// caches across pause/resume; it is the zero value everywhere else.
	Offset int64
}

func (tp TopicPartition) String() string {
	return tp.Topic + "/" + strconv.FormatInt(int64(tp.Partition), 10)
}

// RawMessage is a single driver record as handed back by Poll, before
// deserialization. It is the unit RawMessagesBuffer stages.
type RawMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// Message is the deserialized, user-facing record delivered to a
// Consumer. Offset is monotonic per partition within one batch.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Raw       []byte
	Payload   any
	Headers   map[string][]byte
	Timestamp time.Time
	Metadata  map[string]string
}

// TopicPartitionOf returns the TopicPartition this message belongs to.
func (m Message) TopicPartitionOf() TopicPartition {
	return TopicPartition{Topic: m.Topic, Partition: m.Partition}
}
