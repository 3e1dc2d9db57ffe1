// Package appconfig loads and validates the process configuration from
// YAML/env, producing the kafka.Config the core consumes. The core
// itself never reads files or env vars; loading is this package's job
// alone (spec §10).
package appconfig

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RawTopic is the YAML/env shape of one subscribed topic, before it is
// resolved into a kafka.TopicDescriptor by the caller (the factories
// for Deserializer/ConsumerFactory/DLQ.Dispatcher are Go values that
// cannot come from config).
type RawTopic struct {
	Name                   string        `mapstructure:"name" validate:"required"`
	ManualOffsetManagement bool          `mapstructure:"manual_offset_management"`
	LongRunningJob         bool          `mapstructure:"long_running_job"`
	DLQTopic               string        `mapstructure:"dlq_topic"`
	DLQMaxRetries          int           `mapstructure:"dlq_max_retries" validate:"gte=0"`
	ThrottleLimit          int           `mapstructure:"throttle_limit" validate:"gte=0"`
	ThrottleInterval       time.Duration `mapstructure:"throttle_interval"`
	PauseTimeout           time.Duration `mapstructure:"pause_timeout"`
	PauseMaxTimeout        time.Duration `mapstructure:"pause_max_timeout"`
	PauseExponential       bool          `mapstructure:"pause_exponential_backoff"`
}

// RawSubscriptionGroup is the YAML/env shape of one subscription
// group.
type RawSubscriptionGroup struct {
	ID          string                 `mapstructure:"id" validate:"required"`
	GroupID     string                 `mapstructure:"group_id" validate:"required"`
	Topics      []RawTopic             `mapstructure:"topics" validate:"required,min=1,dive"`
	KafkaConfig map[string]interface{} `mapstructure:"kafka"`
	MaxWaitTime time.Duration          `mapstructure:"max_wait_time"`
	MaxMessages int                    `mapstructure:"max_messages" validate:"gte=0"`
}

// Raw is the top-level YAML/env shape loaded by Load.
type Raw struct {
	ClientID           string                 `mapstructure:"client_id" validate:"required"`
	Brokers            []string               `mapstructure:"brokers" validate:"required,min=1"`
	Concurrency        int                    `mapstructure:"concurrency" validate:"gte=1"`
	MaxWaitTime        time.Duration          `mapstructure:"max_wait_time" validate:"gt=0"`
	PauseTimeout       time.Duration          `mapstructure:"pause_timeout"`
	PauseMaxTimeout    time.Duration          `mapstructure:"pause_max_timeout"`
	PauseExponential   bool                   `mapstructure:"pause_exponential_backoff"`
	ShutdownTimeout    time.Duration          `mapstructure:"shutdown_timeout" validate:"gtfield=MaxWaitTime"`
	ConsumerPersistence bool                  `mapstructure:"consumer_persistence"`
	SubscriptionGroups []RawSubscriptionGroup `mapstructure:"subscription_groups" validate:"required,min=1,dive"`
}

// Load reads configPath (and any KAFCORE_-prefixed environment
// overrides) into a Raw, defaulting unset numeric knobs, then
// validates it with struct tags.
func Load(configPath string) (*Raw, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("KAFCORE")
	v.AutomaticEnv()

	v.SetDefault("concurrency", 1)
	v.SetDefault("max_wait_time", time.Second)
	v.SetDefault("pause_timeout", time.Second)
	v.SetDefault("pause_max_timeout", 5*time.Minute)
	v.SetDefault("shutdown_timeout", 30*time.Second)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("appconfig: read %s: %w", configPath, err)
	}

	var raw Raw
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("appconfig: unmarshal: %w", err)
	}
	if err := validate.Struct(&raw); err != nil {
		return nil, fmt.Errorf("appconfig: validate: %w", err)
	}
	return &raw, nil
}
