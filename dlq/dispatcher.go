// Package dlq provides the default kafka.Dispatcher: a sarama
// SyncProducer that republishes an exhausted message onto its
// configured dead-letter topic, carrying the original topic/partition/
// offset and the failing error as headers.
package dlq

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"github.com/kafcore/kafcore/kafka"
)

const (
	headerOriginalTopic     = "x-original-topic"
	headerOriginalPartition = "x-original-partition"
	headerOriginalOffset    = "x-original-offset"
	headerCause             = "x-dlq-cause"
)

// KafkaDispatcher is the default kafka.Dispatcher, backed by a
// synchronous sarama producer dedicated to one dead-letter topic.
type KafkaDispatcher struct {
	topic    string
	producer sarama.SyncProducer
}

// NewKafkaDispatcher dials brokers and builds a KafkaDispatcher that
// publishes to topic.
func NewKafkaDispatcher(brokers []string, topic string) (*KafkaDispatcher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "dlq: build producer")
	}
	return &KafkaDispatcher{topic: topic, producer: producer}, nil
}

// Dispatch publishes msg's raw payload to the dead-letter topic,
// tagged with where it originally failed and why.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, msg kafka.Message, cause error) error {
	pm := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.ByteEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Raw),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerOriginalTopic), Value: []byte(msg.Topic)},
			{Key: []byte(headerOriginalPartition), Value: []byte(strconv.FormatInt(int64(msg.Partition), 10))},
			{Key: []byte(headerOriginalOffset), Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			{Key: []byte(headerCause), Value: []byte(cause.Error())},
		},
		Timestamp: time.Now(),
	}
	for k, v := range msg.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: v})
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := d.producer.SendMessage(pm)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "dlq: send message")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the underlying producer.
func (d *KafkaDispatcher) Close() error {
	return d.producer.Close()
}
