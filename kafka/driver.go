package kafka

import (
	"context"
	"time"
)

// Driver is the narrow contract the core programs against. It is
// satisfied by internal/kdriver's sarama adapter; the core never
// imports a driver package directly so it can be tested against a
// fake.
type Driver interface {
	Subscribe(topics []string) error
	Poll(ctx context.Context, timeout time.Duration) (*RawMessage, error)
	Pause(tp TopicPartition) error
	Resume(tp TopicPartition) error
	Seek(m Message) error
	SeekToTimestamp(tp TopicPartition, ts time.Time, timeout time.Duration) (int64, error)
	StoreOffset(m Message) error
	Commit(ctx context.Context, tpl []TopicPartition, async bool) error
	Assignment() ([]TopicPartition, error)
	AssignmentLost() bool
	Unsubscribe() error
	Close() error
	Name() string

	OnPartitionsAssigned(func([]TopicPartition))
	OnPartitionsRevoked(func([]TopicPartition))
	OnPartitionsLost(func([]TopicPartition))
}

// DriverFactory builds a fresh Driver bound to one SubscriptionGroup.
// Client calls it again on Reset to rebuild the underlying consumer.
type DriverFactory func(group SubscriptionGroup) (Driver, error)

// ErrorCode names the taxonomy of driver error codes the core
// inspects by name (spec §6/§7). Concrete drivers map their native
// error type onto these.
type ErrorCode string

const (
	ErrCodeAssignmentLost            ErrorCode = "assignment_lost"
	ErrCodeState                     ErrorCode = "state"
	ErrCodeUnknownMemberID           ErrorCode = "unknown_member_id"
	ErrCodeNoOffset                  ErrorCode = "no_offset"
	ErrCodeCoordinatorLoadInProgress ErrorCode = "coordinator_load_in_progress"
	ErrCodeMaxPollExceeded           ErrorCode = "max_poll_exceeded"
	ErrCodeNetworkException          ErrorCode = "network_exception"
	ErrCodeTransport                 ErrorCode = "transport"
	ErrCodeUnknownTopicOrPart        ErrorCode = "unknown_topic_or_part"
)

// DriverError is a driver-originated error carrying a named code so
// the core can branch on it without importing the driver package.
type DriverError struct {
	Code ErrorCode
	Err  error
}

func (e *DriverError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *DriverError) Unwrap() error { return e.Err }
