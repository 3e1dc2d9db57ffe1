package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kafcore/kafcore/kafka"
)

type panickingConsumer struct {
	kafka.BaseConsumer
}

func (panickingConsumer) OnConsume(ctx context.Context, batch []kafka.Message) error {
	panic("boom")
}

type erroringConsumer struct {
	kafka.BaseConsumer
}

func (erroringConsumer) OnConsume(ctx context.Context, batch []kafka.Message) error {
	return errors.New("consume failed")
}

func newTestExecutor(t *testing.T, factory kafka.ConsumerFactory) *Executor {
	t.Helper()
	desc := kafka.TopicDescriptor{Name: "orders", Persistence: true, ConsumerFactory: factory}
	return newExecutor("g1", 0, "", desc, NewCoordinator("orders", 0), &fakeExecutionControl{}, kafka.NewMonitor())
}

func TestWorker_ConsumeJobSucceeds(t *testing.T) {
	exec := newTestExecutor(t, func() kafka.Consumer { return &recordingConsumer{} })
	exec.Coordinator().Increment()
	q := NewJobsQueue()
	w := NewWorker(1, q, kafka.NewMonitor(), zap.NewNop())

	job := NewJob(JobConsume, exec, []kafka.Message{{Offset: 1}})
	w.process(context.Background(), job)

	assert.Equal(t, 1, exec.Coordinator().IncrementRetry(), "retry counter reset after success")
}

func TestWorker_ConsumeJobErrorIncrementsRetryWithoutPanicking(t *testing.T) {
	exec := newTestExecutor(t, func() kafka.Consumer { return erroringConsumer{} })
	exec.Coordinator().Increment()
	q := NewJobsQueue()
	w := NewWorker(1, q, kafka.NewMonitor(), zap.NewNop())

	job := NewJob(JobConsume, exec, []kafka.Message{{Offset: 1}})
	require.NotPanics(t, func() { w.process(context.Background(), job) })

	assert.Equal(t, 2, exec.Coordinator().IncrementRetry())
}

func TestWorker_PanicInConsumerIsRecoveredAsError(t *testing.T) {
	exec := newTestExecutor(t, func() kafka.Consumer { return panickingConsumer{} })
	exec.Coordinator().Increment()
	q := NewJobsQueue()

	var captured kafka.Event
	monitor := kafka.NewMonitor()
	monitor.Subscribe(kafka.EventErrorOccurred, func(e kafka.Event) { captured = e })
	w := NewWorker(1, q, monitor, zap.NewNop())

	job := NewJob(JobConsume, exec, []kafka.Message{{Offset: 1}})
	require.NotPanics(t, func() { w.process(context.Background(), job) })

	assert.Equal(t, kafka.EventErrorOccurred, captured.Type)
}

func TestWorker_IdleJobInvokesOnIdle(t *testing.T) {
	inner := &recordingConsumer{}
	exec := newTestExecutor(t, func() kafka.Consumer { return inner })
	exec.Coordinator().Increment()
	q := NewJobsQueue()
	w := NewWorker(1, q, kafka.NewMonitor(), zap.NewNop())

	job := NewJob(JobIdle, exec, nil)
	w.process(context.Background(), job)

	assert.True(t, exec.Materialized())
}

func TestWorker_RevokedJobSkipsHookWhenNeverMaterialized(t *testing.T) {
	builds := 0
	exec := newTestExecutor(t, func() kafka.Consumer { builds++; return &recordingConsumer{} })
	exec.Coordinator().Increment()
	q := NewJobsQueue()
	w := NewWorker(1, q, kafka.NewMonitor(), zap.NewNop())

	job := NewJob(JobRevoked, exec, nil)
	w.process(context.Background(), job)

	assert.Equal(t, 0, builds, "OnRevoked must not materialize a consumer that never ran")
}

func TestWorker_RunDrainsQueueUntilClosed(t *testing.T) {
	exec := newTestExecutor(t, func() kafka.Consumer { return &recordingConsumer{} })
	q := NewJobsQueue()
	w := NewWorker(1, q, kafka.NewMonitor(), zap.NewNop())

	exec.Coordinator().Increment()
	q.Push("g1", NewJob(JobIdle, exec, nil))

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	q.Close()
	<-done
}
