package kdriver

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafcore/kafcore/kafka"
)

func TestMapError_NilIsNil(t *testing.T) {
	assert.Nil(t, mapError(nil))
}

func TestMapError_KnownKErrorMapsToDriverErrorCode(t *testing.T) {
	err := mapError(sarama.ErrRebalanceInProgress)

	var derr *kafka.DriverError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, kafka.ErrCodeAssignmentLost, derr.Code)
	assert.ErrorIs(t, derr, sarama.ErrRebalanceInProgress)
}

func TestMapError_UnmappedKErrorPassesThrough(t *testing.T) {
	err := mapError(sarama.ErrInvalidMessage)
	assert.ErrorIs(t, err, sarama.ErrInvalidMessage)

	var derr *kafka.DriverError
	assert.False(t, errors.As(err, &derr))
}

func TestMapError_TransportErrorsMapToTransportCode(t *testing.T) {
	for _, in := range []error{sarama.ErrOutOfBrokers, sarama.ErrNotConnected} {
		err := mapError(in)
		var derr *kafka.DriverError
		require.True(t, errors.As(err, &derr), "expected %v to map", in)
		assert.Equal(t, kafka.ErrCodeTransport, derr.Code)
	}
}

func TestMapError_UnknownErrorPassesThroughUnwrapped(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, mapError(plain))
}

func TestToTopicPartitions_FlattensClaimsAcrossTopics(t *testing.T) {
	claims := map[string][]int32{
		"orders":   {0, 1},
		"payments": {2},
	}

	tps := toTopicPartitions(claims)
	assert.Len(t, tps, 3)

	assert.Contains(t, tps, kafka.TopicPartition{Topic: "orders", Partition: 0})
	assert.Contains(t, tps, kafka.TopicPartition{Topic: "orders", Partition: 1})
	assert.Contains(t, tps, kafka.TopicPartition{Topic: "payments", Partition: 2})
}

func TestToTopicPartitions_EmptyClaimsYieldsNoPartitions(t *testing.T) {
	assert.Empty(t, toTopicPartitions(nil))
}
