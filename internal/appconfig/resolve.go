package appconfig

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kafcore/kafcore/dlq"
	"github.com/kafcore/kafcore/kafka"
)

// TopicWiring carries the Go-only values a RawTopic cannot express:
// the consumer factory and any deserializer/filter/virtual-partitioner
// functions the application registered for that topic name.
type TopicWiring struct {
	ConsumerFactory    kafka.ConsumerFactory
	Deserializer       kafka.Deserializer
	Filter             kafka.FilterFunc
	VirtualPartitioner kafka.VirtualPartitioner
	DLQProducerBrokers []string
}

// Resolve merges raw with the per-topic Go wiring registered under
// wiring (keyed by topic name) into a validated kafka.Config, and
// returns the broker list Resolve itself does not otherwise surface
// through kafka.Config (the driver factory needs it directly).
func Resolve(raw *Raw, wiring map[string]TopicWiring, logger *zap.Logger) (kafka.Config, []string, error) {
	cfg := kafka.Config{
		ClientID:            raw.ClientID,
		Concurrency:         raw.Concurrency,
		MaxWaitTime:         raw.MaxWaitTime,
		PauseTimeout:        raw.PauseTimeout,
		PauseMaxTimeout:     raw.PauseMaxTimeout,
		PauseExponential:    raw.PauseExponential,
		ShutdownTimeout:     raw.ShutdownTimeout,
		ConsumerPersistence: raw.ConsumerPersistence,
		Logger:              logger,
	}

	for _, rsg := range raw.SubscriptionGroups {
		sg := kafka.SubscriptionGroup{
			ID:          rsg.ID,
			GroupID:     rsg.GroupID,
			KafkaConfig: rsg.KafkaConfig,
			MaxWaitTime: rsg.MaxWaitTime,
			MaxMessages: rsg.MaxMessages,
		}
		for _, rt := range rsg.Topics {
			w, ok := wiring[rt.Name]
			if !ok || w.ConsumerFactory == nil {
				return kafka.Config{}, nil, fmt.Errorf("appconfig: topic %q has no registered consumer factory", rt.Name)
			}
			desc := kafka.TopicDescriptor{
				Name:                   rt.Name,
				ConsumerFactory:        w.ConsumerFactory,
				Deserializer:           w.Deserializer,
				ManualOffsetManagement: rt.ManualOffsetManagement,
				LongRunningJob:         rt.LongRunningJob,
				Filter:                 w.Filter,
				VirtualPartitioner:     w.VirtualPartitioner,
				Pause: kafka.PauseConfig{
					Timeout:            rt.PauseTimeout,
					MaxTimeout:         rt.PauseMaxTimeout,
					ExponentialBackoff: rt.PauseExponential,
				},
			}
			if rt.ThrottleLimit > 0 {
				desc.Throttle = &kafka.ThrottleConfig{Limit: rt.ThrottleLimit, Interval: rt.ThrottleInterval}
			}
			if rt.DLQTopic != "" {
				producer, err := dlq.NewKafkaDispatcher(w.DLQProducerBrokers, rt.DLQTopic)
				if err != nil {
					return kafka.Config{}, nil, fmt.Errorf("appconfig: build dlq dispatcher for %q: %w", rt.Name, err)
				}
				desc.DLQ = &kafka.DLQConfig{Topic: rt.DLQTopic, MaxRetries: rt.DLQMaxRetries, Dispatcher: producer}
			}
			sg.Topics = append(sg.Topics, desc)
		}
		cfg.SubscriptionGroups = append(cfg.SubscriptionGroups, sg)
	}

	return cfg, raw.Brokers, nil
}
