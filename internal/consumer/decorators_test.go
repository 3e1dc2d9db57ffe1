package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafcore/kafcore/kafka"
)

type recordingConsumer struct {
	kafka.BaseConsumer
	received [][]kafka.Message
	nextErr  error
}

func (c *recordingConsumer) OnConsume(ctx context.Context, batch []kafka.Message) error {
	c.received = append(c.received, batch)
	return c.nextErr
}

type fakeExecutionControl struct {
	marked []kafka.Message
	paused []int64
	seeks  []kafka.Message
}

func (f *fakeExecutionControl) MarkAsConsumed(m kafka.Message) bool {
	f.marked = append(f.marked, m)
	return true
}
func (f *fakeExecutionControl) MarkAsConsumedSync(m kafka.Message) bool {
	f.marked = append(f.marked, m)
	return true
}
func (f *fakeExecutionControl) Pause(until int64) { f.paused = append(f.paused, until) }
func (f *fakeExecutionControl) Seek(m kafka.Message) error {
	f.seeks = append(f.seeks, m)
	return nil
}

func TestFilterDecorator_DropsButMarksFilteredMessages(t *testing.T) {
	inner := &recordingConsumer{}
	ctl := &fakeExecutionControl{}
	desc := kafka.TopicDescriptor{
		Filter: func(m kafka.Message) bool { return m.Offset%2 == 0 },
	}
	c := WrapConsumer(inner, desc, kafka.NewMonitor())
	c.Bind(ctl)

	batch := []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}, {Offset: 4}}
	err := c.OnConsume(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, inner.received, 1)
	assert.Len(t, inner.received[0], 2)
	assert.Len(t, ctl.marked, 2)
}

func TestThrottleDecorator_CapsBatchAndPausesRemainder(t *testing.T) {
	inner := &recordingConsumer{}
	ctl := &fakeExecutionControl{}
	desc := kafka.TopicDescriptor{
		Throttle: &kafka.ThrottleConfig{Limit: 2, Interval: time.Minute},
	}
	monitor := kafka.NewMonitor()
	var throttled kafka.Event
	monitor.Subscribe(kafka.EventFilteringThrottled, func(e kafka.Event) { throttled = e })
	c := WrapConsumer(inner, desc, monitor)
	c.Bind(ctl)

	batch := []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}
	err := c.OnConsume(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, inner.received, 1)
	assert.Len(t, inner.received[0], 2, "only Limit messages reach the inner consumer this cycle")
	assert.Len(t, ctl.paused, 1, "the remainder triggers a pause")
	assert.Equal(t, kafka.EventFilteringThrottled, throttled.Type)
	assert.Equal(t, 1, throttled.Payload["count"])
}

func TestDLQDecorator_DispatchesAfterMaxRetriesAndSeeksPast(t *testing.T) {
	failing := errors.New("boom")
	inner := &recordingConsumer{nextErr: failing}
	ctl := &fakeExecutionControl{}
	dispatched := 0
	desc := kafka.TopicDescriptor{
		DLQ: &kafka.DLQConfig{
			MaxRetries: 1,
			Dispatcher: dispatcherFunc(func(ctx context.Context, m kafka.Message, cause error) error {
				dispatched++
				return nil
			}),
		},
	}
	monitor := kafka.NewMonitor()
	var dispatchedEvt, seekEvt kafka.Event
	monitor.Subscribe(kafka.EventDLQDispatched, func(e kafka.Event) { dispatchedEvt = e })
	monitor.Subscribe(kafka.EventFilteringSeek, func(e kafka.Event) { seekEvt = e })
	c := WrapConsumer(inner, desc, monitor)
	c.Bind(ctl)

	batch := []kafka.Message{{Offset: 10}}
	require.Error(t, c.OnConsume(context.Background(), batch))
	assert.Equal(t, 0, dispatched, "first failure is just a retry, not a dispatch")

	require.NoError(t, c.OnConsume(context.Background(), batch))
	assert.Equal(t, 1, dispatched, "second failure exhausts MaxRetries=1 and dispatches")
	require.Len(t, ctl.seeks, 1)
	assert.Equal(t, int64(11), ctl.seeks[0].Offset)
	assert.Equal(t, kafka.EventDLQDispatched, dispatchedEvt.Type)
	assert.Equal(t, kafka.EventFilteringSeek, seekEvt.Type)
	assert.Equal(t, int64(11), seekEvt.Payload["offset"])
}

func TestExpiringDecorator_DropsStaleMessagesButMarksThemConsumed(t *testing.T) {
	inner := &recordingConsumer{}
	ctl := &fakeExecutionControl{}
	ttl := time.Minute
	desc := kafka.TopicDescriptor{Expiring: &ttl}
	c := WrapConsumer(inner, desc, kafka.NewMonitor())
	c.Bind(ctl)

	fresh := kafka.Message{Offset: 1, Timestamp: time.Now()}
	stale := kafka.Message{Offset: 2, Timestamp: time.Now().Add(-time.Hour)}

	require.NoError(t, c.OnConsume(context.Background(), []kafka.Message{fresh, stale}))
	require.Len(t, inner.received, 1)
	assert.Len(t, inner.received[0], 1)
	assert.Equal(t, int64(1), inner.received[0][0].Offset)
	require.Len(t, ctl.marked, 1)
	assert.Equal(t, int64(2), ctl.marked[0].Offset)
}

func TestDelayingDecorator_WithholdsBatchUntilReady(t *testing.T) {
	inner := &recordingConsumer{}
	ctl := &fakeExecutionControl{}
	delay := time.Hour
	desc := kafka.TopicDescriptor{Delaying: &delay}
	c := WrapConsumer(inner, desc, kafka.NewMonitor())
	c.Bind(ctl)

	notReady := kafka.Message{Offset: 1, Timestamp: time.Now()}
	require.NoError(t, c.OnConsume(context.Background(), []kafka.Message{notReady}))
	assert.Empty(t, inner.received)
	assert.Len(t, ctl.paused, 1)

	ready := kafka.Message{Offset: 2, Timestamp: time.Now().Add(-2 * time.Hour)}
	require.NoError(t, c.OnConsume(context.Background(), []kafka.Message{ready}))
	require.Len(t, inner.received, 1)
}

type dispatcherFunc func(ctx context.Context, m kafka.Message, cause error) error

func (f dispatcherFunc) Dispatch(ctx context.Context, m kafka.Message, cause error) error {
	return f(ctx, m, cause)
}
