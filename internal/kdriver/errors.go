package kdriver

import (
	"errors"

	"github.com/IBM/sarama"

	"github.com/kafcore/kafcore/kafka"
)

// mapError maps a sarama error onto the named error codes the core
// inspects (spec §6/§7). Errors sarama doesn't model by a known code
// are returned unwrapped so the caller treats them as unrecoverable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var kerr sarama.KError
	if errors.As(err, &kerr) {
		if code, ok := kerrorCodes[kerr]; ok {
			return &kafka.DriverError{Code: code, Err: err}
		}
		return err
	}
	switch {
	case errors.Is(err, sarama.ErrOutOfBrokers), errors.Is(err, sarama.ErrNotConnected):
		return &kafka.DriverError{Code: kafka.ErrCodeTransport, Err: err}
	}
	return err
}

var kerrorCodes = map[sarama.KError]kafka.ErrorCode{
	sarama.ErrRebalanceInProgress:       kafka.ErrCodeAssignmentLost,
	sarama.ErrIllegalGeneration:         kafka.ErrCodeAssignmentLost,
	sarama.ErrUnknownMemberId:           kafka.ErrCodeUnknownMemberID,
	sarama.ErrOffsetsLoadInProgress:     kafka.ErrCodeCoordinatorLoadInProgress,
	sarama.ErrConsumerCoordinatorNotAvailable: kafka.ErrCodeCoordinatorLoadInProgress,
	sarama.ErrNetworkException:          kafka.ErrCodeNetworkException,
	sarama.ErrUnknownTopicOrPartition:   kafka.ErrCodeUnknownTopicOrPart,
}
