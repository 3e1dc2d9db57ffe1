package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/kafcore/kafcore/kafka"
)

// WrapConsumer composes the strategy decorators a TopicDescriptor's
// flags request around base, in a fixed order: filtering and expiring
// (outermost, so nothing downstream ever sees a dropped message),
// delaying, throttling, then DLQ (innermost, closest to the user's
// OnConsume). This is the "capability bundle... selected per topic at
// ConsumerFactory construction time" design note (spec §9, SPEC_FULL
// §4.10).
func WrapConsumer(base kafka.Consumer, desc kafka.TopicDescriptor, monitor *kafka.Monitor) kafka.Consumer {
	c := base
	if desc.DLQ != nil {
		c = &dlqDecorator{Consumer: c, cfg: *desc.DLQ, monitor: monitor}
	}
	if desc.Throttle != nil {
		c = &throttleDecorator{Consumer: c, cfg: *desc.Throttle, monitor: monitor}
	}
	if desc.Delaying != nil {
		c = &delayingDecorator{Consumer: c, delay: *desc.Delaying}
	}
	if desc.Expiring != nil {
		c = &expiringDecorator{Consumer: c, ttl: *desc.Expiring}
	}
	if desc.Filter != nil {
		c = &filterDecorator{Consumer: c, filter: desc.Filter}
	}
	return c
}

// filterDecorator drops messages OnConsume would otherwise receive.
// Dropped messages are still marked as consumed so they are never
// redelivered; emits filtering.seek is left to callers that actually
// seek past a gap (this decorator only ever advances by marking).
type filterDecorator struct {
	kafka.Consumer
	filter kafka.FilterFunc
	ctl    kafka.ExecutionControl
}

func (d *filterDecorator) Bind(ctl kafka.ExecutionControl) {
	d.ctl = ctl
	d.Consumer.Bind(ctl)
}

func (d *filterDecorator) OnConsume(ctx context.Context, batch []kafka.Message) error {
	kept := make([]kafka.Message, 0, len(batch))
	for _, m := range batch {
		if d.filter(m) {
			kept = append(kept, m)
			continue
		}
		if d.ctl != nil {
			d.ctl.MarkAsConsumed(m)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return d.Consumer.OnConsume(ctx, kept)
}

// throttleDecorator bounds how many messages of a topic reach the
// inner consumer within cfg.Interval. Once the limit is hit for the
// interval, the remainder of the batch is paused for delivery on the
// next cycle rather than delivered now.
type throttleDecorator struct {
	kafka.Consumer
	cfg     kafka.ThrottleConfig
	ctl     kafka.ExecutionControl
	monitor *kafka.Monitor

	mu          sync.Mutex
	windowStart time.Time
	windowCount int
}

func (d *throttleDecorator) Bind(ctl kafka.ExecutionControl) {
	d.ctl = ctl
	d.Consumer.Bind(ctl)
}

func (d *throttleDecorator) OnConsume(ctx context.Context, batch []kafka.Message) error {
	d.mu.Lock()
	now := time.Now()
	if d.windowStart.IsZero() || now.Sub(d.windowStart) >= d.cfg.Interval {
		d.windowStart = now
		d.windowCount = 0
	}
	allowed := d.cfg.Limit - d.windowCount
	d.mu.Unlock()

	if allowed <= 0 {
		if d.ctl != nil && len(batch) > 0 {
			d.ctl.Pause(d.windowStart.Add(d.cfg.Interval).UnixMilli())
			_ = d.ctl.Seek(batch[0])
		}
		d.notifyThrottled(batch)
		return nil
	}
	if allowed > len(batch) {
		allowed = len(batch)
	}
	toConsume, rest := batch[:allowed], batch[allowed:]

	d.mu.Lock()
	d.windowCount += allowed
	d.mu.Unlock()

	if err := d.Consumer.OnConsume(ctx, toConsume); err != nil {
		return err
	}
	if len(rest) > 0 {
		if d.ctl != nil {
			d.ctl.Pause(d.windowStart.Add(d.cfg.Interval).UnixMilli())
			_ = d.ctl.Seek(rest[0])
		}
		d.notifyThrottled(rest)
	}
	return nil
}

func (d *throttleDecorator) notifyThrottled(throttled []kafka.Message) {
	if d.monitor == nil || len(throttled) == 0 {
		return
	}
	d.monitor.Notify(kafka.Event{Type: kafka.EventFilteringThrottled, Payload: map[string]any{
		"topic": throttled[0].Topic, "count": len(throttled),
	}})
}

// dlqDecorator counts consecutive failures of the inner OnConsume and,
// once cfg.MaxRetries is exhausted, dispatches the offending batch to
// the configured Dispatcher and seeks past it instead of retrying
// forever.
type dlqDecorator struct {
	kafka.Consumer
	cfg     kafka.DLQConfig
	ctl     kafka.ExecutionControl
	monitor *kafka.Monitor

	mu      sync.Mutex
	retries map[int64]int
}

func (d *dlqDecorator) Bind(ctl kafka.ExecutionControl) {
	d.ctl = ctl
	d.Consumer.Bind(ctl)
	d.mu.Lock()
	if d.retries == nil {
		d.retries = make(map[int64]int)
	}
	d.mu.Unlock()
}

func (d *dlqDecorator) OnConsume(ctx context.Context, batch []kafka.Message) error {
	err := d.Consumer.OnConsume(ctx, batch)
	if err == nil {
		d.mu.Lock()
		for _, m := range batch {
			delete(d.retries, m.Offset)
		}
		d.mu.Unlock()
		return nil
	}
	if len(batch) == 0 {
		return err
	}
	offender := batch[0]

	d.mu.Lock()
	d.retries[offender.Offset]++
	attempts := d.retries[offender.Offset]
	d.mu.Unlock()

	if attempts <= d.cfg.MaxRetries {
		return err
	}

	if d.cfg.Dispatcher != nil {
		if dispErr := d.cfg.Dispatcher.Dispatch(ctx, offender, err); dispErr != nil {
			return dispErr
		}
		if d.monitor != nil {
			d.monitor.Notify(kafka.Event{Type: kafka.EventDLQDispatched, Payload: map[string]any{
				"message": offender, "error": err,
			}})
		}
	}
	d.mu.Lock()
	delete(d.retries, offender.Offset)
	d.mu.Unlock()

	if d.ctl != nil {
		next := offender
		next.Offset++
		if seekErr := d.ctl.Seek(next); seekErr != nil {
			return seekErr
		}
		if d.monitor != nil {
			d.monitor.Notify(kafka.Event{Type: kafka.EventFilteringSeek, Payload: map[string]any{
				"topic_partition": next.TopicPartitionOf(), "offset": next.Offset,
			}})
		}
	}
	return nil
}

// expiringDecorator drops messages whose Timestamp is older than ttl,
// marking them consumed so they are never redelivered, instead of
// handing stale work to the inner consumer.
type expiringDecorator struct {
	kafka.Consumer
	ttl time.Duration
	ctl kafka.ExecutionControl
}

func (d *expiringDecorator) Bind(ctl kafka.ExecutionControl) {
	d.ctl = ctl
	d.Consumer.Bind(ctl)
}

func (d *expiringDecorator) OnConsume(ctx context.Context, batch []kafka.Message) error {
	now := time.Now()
	kept := make([]kafka.Message, 0, len(batch))
	for _, m := range batch {
		if now.Sub(m.Timestamp) > d.ttl {
			if d.ctl != nil {
				d.ctl.MarkAsConsumed(m)
			}
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return nil
	}
	return d.Consumer.OnConsume(ctx, kept)
}

// delayingDecorator holds a batch back until every message in it has
// aged past delay since production, pausing the partition for the
// remaining wait instead of delivering early.
type delayingDecorator struct {
	kafka.Consumer
	delay time.Duration
	ctl   kafka.ExecutionControl
}

func (d *delayingDecorator) Bind(ctl kafka.ExecutionControl) {
	d.ctl = ctl
	d.Consumer.Bind(ctl)
}

func (d *delayingDecorator) OnConsume(ctx context.Context, batch []kafka.Message) error {
	if len(batch) == 0 {
		return d.Consumer.OnConsume(ctx, batch)
	}
	now := time.Now()
	var readyAt time.Time
	for _, m := range batch {
		at := m.Timestamp.Add(d.delay)
		if at.After(readyAt) {
			readyAt = at
		}
	}
	if readyAt.After(now) {
		if d.ctl != nil {
			d.ctl.Pause(readyAt.UnixMilli())
			_ = d.ctl.Seek(batch[0])
		}
		return nil
	}
	return d.Consumer.OnConsume(ctx, batch)
}
