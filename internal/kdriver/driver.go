// Package kdriver adapts github.com/IBM/sarama's consumer group API
// onto the kafka.Driver contract the core programs against. It is the
// only package in the module that imports sarama directly.
package kdriver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kafcore/kafcore/internal/util"
	"github.com/kafcore/kafcore/kafka"
)

const claimBufferSize = 256

// NewFactory returns a kafka.DriverFactory that dials brokers with
// sarama and builds one saramaDriver per SubscriptionGroup, configured
// from the group's KafkaConfig map (spec §4.1/§10).
func NewFactory(brokers []string, clientID string, logger *zap.Logger) kafka.DriverFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(group kafka.SubscriptionGroup) (kafka.Driver, error) {
		return newDriver(brokers, clientID, group, logger)
	}
}

// saramaDriver wraps a sarama.ConsumerGroup and the sarama.Client it
// was built from, running the group's Consume loop in the background
// and exposing the spec's poll-based contract over the callback-driven
// sarama API via groupHandler.
type saramaDriver struct {
	name   string
	topics []string

	client sarama.Client
	group  sarama.ConsumerGroup
	handler *groupHandler

	runCtx    context.Context
	runCancel context.CancelFunc
	runDone   chan struct{}

	closeLifecycle *util.RunLifecycle

	mu sync.Mutex
}

func newDriver(brokers []string, clientID string, sg kafka.SubscriptionGroup, logger *zap.Logger) (*saramaDriver, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Version = sarama.V2_8_0_0
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyCooperativeSticky()

	if v, ok := sg.KafkaConfig["partition.assignment.strategy"].(string); ok {
		switch v {
		case "range":
			cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRange()
		case "roundrobin":
			cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
		case "sticky":
			cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategySticky()
		}
	}
	if v, ok := sg.KafkaConfig["allow.auto.create.topics"].(bool); ok {
		cfg.Metadata.AllowAutoTopicCreation = v
	}
	if sg.MaxWaitTime > 0 {
		cfg.Consumer.MaxWaitTime = sg.MaxWaitTime
	}

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kdriver: dial brokers")
	}
	group, err := sarama.NewConsumerGroupFromClient(sg.GroupID, client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "kdriver: build consumer group")
	}

	topics := make([]string, 0, len(sg.Topics))
	for _, t := range sg.Topics {
		topics = append(topics, t.Name)
	}

	d := &saramaDriver{
		name:           strings.Join(topics, ","),
		topics:         topics,
		client:         client,
		group:          group,
		handler:        newGroupHandler(claimBufferSize),
		runDone:        make(chan struct{}),
		closeLifecycle: util.NewRunLifecycle("kdriver."+sg.GroupID, logger),
	}
	d.runCtx, d.runCancel = context.WithCancel(context.Background())

	_ = d.closeLifecycle.Start(func() error {
		go d.consumeLoop()
		return nil
	})
	return d, nil
}

// consumeLoop calls ConsumerGroup.Consume repeatedly: sarama requires
// the caller to re-invoke it after every rebalance, since each call
// only covers one generation's session.
func (d *saramaDriver) consumeLoop() {
	defer close(d.runDone)
	for {
		if d.runCtx.Err() != nil {
			return
		}
		if err := d.group.Consume(d.runCtx, d.topics, d.handler); err != nil {
			if d.runCtx.Err() != nil {
				return
			}
			time.Sleep(500 * time.Millisecond)
		}
	}
}

func (d *saramaDriver) Subscribe(topics []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.topics = topics
	return nil
}

// Poll returns the next buffered record, waiting up to timeout. A nil
// record with a nil error means the timeout elapsed with nothing
// available.
func (d *saramaDriver) Poll(ctx context.Context, timeout time.Duration) (*kafka.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-d.handler.messages:
		if !ok {
			return nil, nil
		}
		return toRawMessage(msg), nil
	case err, ok := <-d.group.Errors():
		if !ok {
			return nil, nil
		}
		return nil, mapError(err)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func toRawMessage(m *sarama.ConsumerMessage) *kafka.RawMessage {
	headers := make(map[string][]byte, len(m.Headers))
	for _, h := range m.Headers {
		headers[string(h.Key)] = h.Value
	}
	return &kafka.RawMessage{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   headers,
		Timestamp: m.Timestamp,
	}
}

func (d *saramaDriver) Pause(tp kafka.TopicPartition) error {
	d.group.Pause(map[string][]int32{tp.Topic: {tp.Partition}})
	return nil
}

func (d *saramaDriver) Resume(tp kafka.TopicPartition) error {
	d.group.Resume(map[string][]int32{tp.Topic: {tp.Partition}})
	return nil
}

// Seek resets the consumption offset for m's partition on the active
// session. A non-negative m.Offset seeks there directly; -1 (or -2)
// follow sarama's OffsetNewest/OffsetOldest convention for "latest"/
// "earliest".
func (d *saramaDriver) Seek(m kafka.Message) error {
	session := d.handler.currentSession()
	if session == nil {
		return &kafka.DriverError{Code: kafka.ErrCodeState, Err: errors.New("no active session")}
	}
	session.ResetOffset(m.Topic, m.Partition, m.Offset, "")
	return nil
}

// SeekToTimestamp resolves ts to a concrete offset via the driver's
// time index and returns it without seeking; the caller re-invokes
// Seek with the resolved offset (spec §4.1, Open Question: fail loudly
// instead of silently defaulting to latest when unresolved).
func (d *saramaDriver) SeekToTimestamp(tp kafka.TopicPartition, ts time.Time, timeout time.Duration) (int64, error) {
	offset, err := d.client.GetOffset(tp.Topic, tp.Partition, ts.UnixMilli())
	if err != nil {
		return 0, mapError(err)
	}
	return offset, nil
}

func (d *saramaDriver) StoreOffset(m kafka.Message) error {
	session := d.handler.currentSession()
	if session == nil {
		return &kafka.DriverError{Code: kafka.ErrCodeState, Err: errors.New("no active session")}
	}
	session.MarkOffset(m.Topic, m.Partition, m.Offset+1, "")
	return nil
}

// Commit forces a synchronous commit of whatever offsets were marked
// via StoreOffset. tpl and async are accepted for interface symmetry
// with the spec but sarama only exposes a whole-session commit.
func (d *saramaDriver) Commit(ctx context.Context, tpl []kafka.TopicPartition, async bool) error {
	session := d.handler.currentSession()
	if session == nil {
		return &kafka.DriverError{Code: kafka.ErrCodeState, Err: errors.New("no active session")}
	}
	session.Commit()
	return nil
}

func (d *saramaDriver) Assignment() ([]kafka.TopicPartition, error) {
	session := d.handler.currentSession()
	if session == nil {
		return nil, nil
	}
	return toTopicPartitions(session.Claims()), nil
}

func (d *saramaDriver) AssignmentLost() bool {
	return d.handler.assignmentLost.Load()
}

func (d *saramaDriver) Unsubscribe() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.topics = nil
	return nil
}

// Close stops the background consume loop and releases the group and
// client, at most once no matter how many callers race to close the
// same driver.
func (d *saramaDriver) Close() error {
	var closeErr error
	d.closeLifecycle.Stop(func() {
		d.runCancel()
		<-d.runDone
		groupErr := d.group.Close()
		clientErr := d.client.Close()
		switch {
		case groupErr != nil:
			closeErr = mapError(groupErr)
		case clientErr != nil:
			closeErr = mapError(clientErr)
		}
	})
	return closeErr
}

func (d *saramaDriver) Name() string { return d.name }

func (d *saramaDriver) OnPartitionsAssigned(fn func([]kafka.TopicPartition)) { d.handler.onAssigned = fn }
func (d *saramaDriver) OnPartitionsRevoked(fn func([]kafka.TopicPartition))  { d.handler.onRevoked = fn }
func (d *saramaDriver) OnPartitionsLost(fn func([]kafka.TopicPartition))     { d.handler.onLost = fn }
