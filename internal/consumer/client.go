package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kafcore/kafcore/kafka"
	"github.com/kafcore/kafcore/internal/runtime"
)

const (
	maxPollRetries          = 20
	cooperativeStickyMaxWait = 60 * time.Second
	pollRetryBaseBackoff     = 50 * time.Millisecond
)

// cooperativeStickyStrategy is the partition.assignment.strategy value
// Client.Stop special-cases.
const cooperativeStickyStrategy = "cooperative-sticky"

// Client is the thread-safe façade over the driver the spec describes
// in §4.1: it serializes pause/resume/seek/close, owns the poll retry
// policy, and enforces "no operation after close".
type Client struct {
	id      string
	group   kafka.SubscriptionGroup
	factory kafka.DriverFactory
	rt      *runtime.Runtime
	monitor *kafka.Monitor
	logger  *zap.Logger
	tracker *TimeTracker

	driverMu sync.Mutex
	driver   kafka.Driver

	mu         sync.Mutex
	closed     bool
	pausedTPLs map[string]map[int32]kafka.TopicPartition

	rebalance *RebalanceManager
	assignmentStrategy string
}

// NewClient builds a Client bound to group and opens the underlying
// driver via factory.
func NewClient(id string, group kafka.SubscriptionGroup, factory kafka.DriverFactory, rt *runtime.Runtime, monitor *kafka.Monitor, logger *zap.Logger, rebalance *RebalanceManager) (*Client, error) {
	c := &Client{
		id:         id,
		group:      group,
		factory:    factory,
		rt:         rt,
		monitor:    monitor,
		logger:     logger,
		tracker:    NewTimeTracker(),
		pausedTPLs: make(map[string]map[int32]kafka.TopicPartition),
		rebalance:  rebalance,
	}
	if v, ok := group.KafkaConfig["partition.assignment.strategy"].(string); ok {
		c.assignmentStrategy = v
	}
	d, err := factory(group)
	if err != nil {
		return nil, errors.Wrap(err, "kafka: build driver")
	}
	d.OnPartitionsAssigned(rebalance.OnPartitionsAssigned)
	d.OnPartitionsRevoked(rebalance.OnPartitionsRevoked)
	d.OnPartitionsLost(rebalance.OnPartitionsLost)
	c.driver = d
	return c, nil
}

// ID returns this client's stable identity, preserved across Reset.
func (c *Client) ID() string { return c.id }

// Name returns the underlying driver's name.
func (c *Client) Name() string {
	c.driverMu.Lock()
	defer c.driverMu.Unlock()
	return c.driver.Name()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// BatchPoll loops calling the driver's Poll until the poll window
// closes, the buffer reaches MaxMessages, a rebalance is observed, or
// a poll returns nothing (spec §4.1).
func (c *Client) BatchPoll(ctx context.Context) (*RawMessagesBuffer, error) {
	buf := NewRawMessagesBuffer()
	c.tracker.Start(c.group.MaxWaitTime)
	c.rebalance.Clear()

	for {
		if c.isClosed() {
			return buf, nil
		}
		if c.tracker.Expired() {
			return buf, nil
		}
		if buf.Size() >= c.group.MaxMessages {
			return buf, nil
		}

		rec, err := c.pollOnce(ctx, c.tracker.Remaining())
		if err != nil {
			return buf, err
		}
		if rec == nil {
			if c.rebalance.Changed() {
				c.stripRevoked(buf)
				return buf, nil
			}
			return buf, nil
		}
		buf.Add(*rec)

		if c.rebalance.Changed() {
			c.stripRevoked(buf)
			return buf, nil
		}
	}
}

func (c *Client) stripRevoked(buf *RawMessagesBuffer) {
	for _, tp := range c.rebalance.RevokedPartitions() {
		buf.Delete(tp.Topic, tp.Partition)
	}
	buf.Uniq()
}

// pollOnce drives the poll error policy (spec §4.1/§7): retryable
// codes back off via TimeTracker up to maxPollRetries; some codes
// report to the monitor on first occurrence even while retrying;
// unknown_topic_or_part is swallowed when the broker auto-creates
// topics, and becomes non-retryable once the process is shutting
// down.
func (c *Client) pollOnce(ctx context.Context, timeout time.Duration) (*kafka.RawMessage, error) {
	var reported bool
	for attempt := 0; ; attempt++ {
		c.driverMu.Lock()
		rec, err := c.driver.Poll(ctx, timeout)
		c.driverMu.Unlock()
		if err == nil {
			return rec, nil
		}

		derr, ok := err.(*kafka.DriverError)
		if !ok {
			return nil, err
		}

		switch derr.Code {
		case kafka.ErrCodeUnknownTopicOrPart:
			if autoCreateEnabled(c.group) {
				return nil, nil
			}
			if c.rt.Done() {
				return nil, derr
			}
			fallthrough
		case kafka.ErrCodeMaxPollExceeded, kafka.ErrCodeNetworkException, kafka.ErrCodeTransport:
			if !reported {
				reported = true
				c.monitor.Notify(kafka.Event{Type: kafka.EventErrorOccurred, Payload: map[string]any{
					"caller": c, "error": derr, "type": kafka.ErrorTypeClientPoll,
				}})
				c.monitor.Notify(kafka.Event{Type: kafka.EventClientPollError, Payload: map[string]any{
					"caller": c, "error": derr,
				}})
			}
			if attempt >= maxPollRetries {
				return nil, derr
			}
			time.Sleep(c.tracker.Checkpoint(pollRetryBaseBackoff, c.group.MaxWaitTime))
			continue
		default:
			if attempt >= maxPollRetries {
				return nil, derr
			}
			time.Sleep(c.tracker.Checkpoint(pollRetryBaseBackoff, c.group.MaxWaitTime))
			continue
		}
	}
}

func autoCreateEnabled(group kafka.SubscriptionGroup) bool {
	v, _ := group.KafkaConfig["allow.auto.create.topics"].(bool)
	return v
}

// StoreOffset stores the offset for m. Returns false (not an error) on
// assignment_lost or a driver "state" error (spec §4.1).
func (c *Client) StoreOffset(m kafka.Message) (bool, error) {
	if c.isClosed() {
		return false, kafka.ErrClosed
	}
	c.driverMu.Lock()
	err := c.driver.StoreOffset(m)
	c.driverMu.Unlock()
	if err == nil {
		return true, nil
	}
	if derr, ok := err.(*kafka.DriverError); ok && (derr.Code == kafka.ErrCodeAssignmentLost || derr.Code == kafka.ErrCodeState) {
		return false, nil
	}
	return false, errors.Wrap(err, "kafka: store offset")
}

// CommitOffsets commits tpl (nil means the driver's current
// assignment). Returns false without error on assignment_lost or
// unknown_member_id; true without committing anything on no_offset;
// retries forever, sleeping 1s, on coordinator_load_in_progress.
func (c *Client) CommitOffsets(ctx context.Context, tpl []kafka.TopicPartition, async bool) (bool, error) {
	if c.isClosed() {
		return false, kafka.ErrClosed
	}
	for {
		c.driverMu.Lock()
		err := c.driver.Commit(ctx, tpl, async)
		c.driverMu.Unlock()
		if err == nil {
			return true, nil
		}
		derr, ok := err.(*kafka.DriverError)
		if !ok {
			return false, errors.Wrap(err, "kafka: commit offsets")
		}
		switch derr.Code {
		case kafka.ErrCodeAssignmentLost, kafka.ErrCodeUnknownMemberID:
			return false, nil
		case kafka.ErrCodeNoOffset:
			return true, nil
		case kafka.ErrCodeCoordinatorLoadInProgress:
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		default:
			return false, errors.Wrap(derr, "kafka: commit offsets")
		}
	}
}

// Seek serializes on the client mutex. A timestamp-based offset is
// resolved via the driver's time-index lookup with a bounded timeout;
// an offset of -1 means "latest" and is passed straight through.
func (c *Client) Seek(m kafka.Message, isTimestamp bool, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return kafka.ErrClosed
	}
	if !isTimestamp {
		c.driverMu.Lock()
		defer c.driverMu.Unlock()
		return c.driver.Seek(m)
	}

	tp := m.TopicPartitionOf()
	c.driverMu.Lock()
	resolved, err := c.driver.SeekToTimestamp(tp, ts, 2000*time.Millisecond)
	c.driverMu.Unlock()
	if err != nil {
		return errors.Wrap(err, "kafka: offsets for times")
	}
	if resolved < 0 {
		return &kafka.ErrInvalidTimeBasedOffset{TopicPartition: tp, RequestedUnix: ts.Unix()}
	}
	m.Offset = resolved
	c.driverMu.Lock()
	defer c.driverMu.Unlock()
	return c.driver.Seek(m)
}

// Pause serializes, snapshots the TPL so Resume still works after a
// later revocation, and is a no-op after Close.
func (c *Client) Pause(tp kafka.TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.driverMu.Lock()
	err := c.driver.Pause(tp)
	c.driverMu.Unlock()
	if err != nil {
		return errors.Wrap(err, "kafka: pause")
	}
	m, ok := c.pausedTPLs[tp.Topic]
	if !ok {
		m = make(map[int32]kafka.TopicPartition)
		c.pausedTPLs[tp.Topic] = m
	}
	m[tp.Partition] = tp
	c.monitor.Notify(kafka.Event{Type: kafka.EventClientPause, Payload: map[string]any{"caller": c, "topic_partition": tp}})
	return nil
}

// Resume serializes, removes the cached TPL, and is a no-op after
// Close.
func (c *Client) Resume(tp kafka.TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.driverMu.Lock()
	err := c.driver.Resume(tp)
	c.driverMu.Unlock()
	if err != nil {
		return errors.Wrap(err, "kafka: resume")
	}
	if m, ok := c.pausedTPLs[tp.Topic]; ok {
		delete(m, tp.Partition)
		if len(m) == 0 {
			delete(c.pausedTPLs, tp.Topic)
		}
	}
	c.monitor.Notify(kafka.Event{Type: kafka.EventClientResume, Payload: map[string]any{"caller": c, "topic_partition": tp}})
	return nil
}

// PausedTPLs returns every still-paused (topic, partition), including
// ones that were revoked while paused.
func (c *Client) PausedTPLs() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []kafka.TopicPartition
	for _, m := range c.pausedTPLs {
		for _, tp := range m {
			out = append(out, tp)
		}
	}
	return out
}

// Stop waits (bounded by cooperativeStickyMaxWait) for the first
// rebalance to land when the configured assignment strategy is
// cooperative-sticky, then closes. The wait works around a native
// client crash observed when closing before any rebalance callback
// has fired.
func (c *Client) Stop() error {
	if c.assignmentStrategy == cooperativeStickyStrategy {
		deadline := time.Now().Add(cooperativeStickyMaxWait)
		for !c.rebalance.Active() && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
	}
	return c.Close()
}

// Close closes the underlying driver at most once, serialized
// process-wide by rt.CloseMu so two Clients never race in librdkafka-
// style native close paths.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.rt.CloseMu.Lock()
	defer c.rt.CloseMu.Unlock()

	c.driverMu.Lock()
	defer c.driverMu.Unlock()
	return c.driver.Close()
}

// Reset closes and rebuilds the underlying driver, preserving the
// Client's identity (ID stable, driver name refreshed).
func (c *Client) Reset() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.driverMu.Lock()
	_ = c.driver.Close()
	d, err := c.factory(c.group)
	if err != nil {
		c.driverMu.Unlock()
		return errors.Wrap(err, "kafka: rebuild driver")
	}
	d.OnPartitionsAssigned(c.rebalance.OnPartitionsAssigned)
	d.OnPartitionsRevoked(c.rebalance.OnPartitionsRevoked)
	d.OnPartitionsLost(c.rebalance.OnPartitionsLost)
	c.driver = d
	c.driverMu.Unlock()

	c.mu.Lock()
	c.closed = false
	c.pausedTPLs = make(map[string]map[int32]kafka.TopicPartition)
	c.mu.Unlock()
	return nil
}

// Ping issues one short poll swallowing all driver errors, keeping
// rebalance callbacks pumping during shutdown without doing real work.
func (c *Client) Ping(ctx context.Context) {
	c.driverMu.Lock()
	_, _ = c.driver.Poll(ctx, 100*time.Millisecond)
	c.driverMu.Unlock()
}

// MarkAsConsumed stores m's offset, reporting false if the assignment
// was lost in the process.
func (c *Client) MarkAsConsumed(m kafka.Message) (bool, error) {
	ok, err := c.StoreOffset(m)
	if err != nil || !ok {
		return false, err
	}
	return true, nil
}

// MarkAsConsumedSync stores and then synchronously commits m's
// offset.
func (c *Client) MarkAsConsumedSync(ctx context.Context, m kafka.Message) (bool, error) {
	ok, err := c.MarkAsConsumed(m)
	if err != nil || !ok {
		return false, err
	}
	tp := m.TopicPartitionOf()
	tp.Offset = m.Offset + 1
	return c.CommitOffsets(ctx, []kafka.TopicPartition{tp}, false)
}

// Assignment returns the driver's current partition assignment.
func (c *Client) Assignment() ([]kafka.TopicPartition, error) {
	c.driverMu.Lock()
	defer c.driverMu.Unlock()
	return c.driver.Assignment()
}

// AssignmentLost reports whether the driver considers this client's
// assignment lost.
func (c *Client) AssignmentLost() bool {
	c.driverMu.Lock()
	defer c.driverMu.Unlock()
	return c.driver.AssignmentLost()
}
