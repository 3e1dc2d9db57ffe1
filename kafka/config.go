package kafka

import (
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Deserializer turns a raw payload into the user-visible Payload field
// of a Message.
type Deserializer func(raw []byte, headers map[string][]byte) (any, error)

// FilterFunc decides whether a deserialized message should reach the
// consumer's OnConsume. Returning false drops the message from the
// batch OnConsume receives and marks it consumed so it is not
// redelivered; OnBeforeEnqueue, OnBeforeConsume and OnAfterConsume
// still receive the full batch.
type FilterFunc func(Message) bool

// VirtualPartitioner fans a partition's batch out into one or more
// named virtual groups, preserving the partition's commit-time
// ordering guarantee within each group.
type VirtualPartitioner func(batch []Message) map[string][]Message

// ConsumerFactory builds a fresh Consumer for one (topic, partition,
// virtual group) triple.
type ConsumerFactory func() Consumer

// DLQConfig configures dead-letter dispatch for a topic.
type DLQConfig struct {
	Topic      string
	MaxRetries int
	Dispatcher Dispatcher
}

// ThrottleConfig bounds how many messages of a topic may reach the
// consumer within Interval.
type ThrottleConfig struct {
	Limit    int
	Interval time.Duration
}

// PauseConfig governs the error-driven pause/backoff applied to a
// partition after a consumer error.
type PauseConfig struct {
	Timeout            time.Duration
	MaxTimeout         time.Duration
	ExponentialBackoff bool
}

// TopicDescriptor describes one topic within a SubscriptionGroup.
type TopicDescriptor struct {
	Name                   string
	ConsumerFactory        ConsumerFactory
	Deserializer           Deserializer
	ManualOffsetManagement bool
	LongRunningJob         bool
	Persistence            bool
	DLQ                    *DLQConfig
	Throttle               *ThrottleConfig
	VirtualPartitioner     VirtualPartitioner
	Filter                 FilterFunc
	Expiring               *time.Duration
	Delaying               *time.Duration
	Pause                  PauseConfig
}

// SubscriptionGroup is a set of topics polled by one Listener sharing
// one driver consumer instance. Immutable once constructed.
type SubscriptionGroup struct {
	ID          string
	GroupID     string
	Topics      []TopicDescriptor
	KafkaConfig map[string]any
	MaxWaitTime time.Duration
	MaxMessages int
}

// Config is the full, already-validated configuration surface the
// core consumes. Loading it from YAML/env is the appconfig package's
// job, not the core's.
type Config struct {
	ClientID           string
	Concurrency        int
	MaxWaitTime        time.Duration
	PauseTimeout       time.Duration
	PauseMaxTimeout    time.Duration
	PauseExponential   bool
	ShutdownTimeout    time.Duration
	ConsumerPersistence bool
	SubscriptionGroups []SubscriptionGroup

	Logger       *zap.Logger
	MetricsScope tally.Scope
}
