package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kafcore/kafcore/internal/runtime"
	"github.com/kafcore/kafcore/kafka"
)

// pollingDriver is a fakeDriver variant that reports a fixed
// assignment and serves each record in turn, then returns (nil, nil)
// forever, letting Listener.Run idle until the runtime is stopped.
type pollingDriver struct {
	fakeDriver
	assignment []kafka.TopicPartition
}

func (d *pollingDriver) Assignment() ([]kafka.TopicPartition, error) {
	return d.assignment, nil
}

func TestListener_RunConsumesThenShutsDownOnRuntimeDone(t *testing.T) {
	drv := &pollingDriver{
		fakeDriver: fakeDriver{records: []*kafka.RawMessage{
			{Topic: "orders", Partition: 0, Offset: 0, Timestamp: time.Now()},
			{Topic: "orders", Partition: 0, Offset: 1, Timestamp: time.Now()},
		}},
		assignment: []kafka.TopicPartition{{Topic: "orders", Partition: 0}},
	}
	factory := func(kafka.SubscriptionGroup) (kafka.Driver, error) { return drv, nil }

	consumed := make(chan int, 10)
	desc := kafka.TopicDescriptor{
		Name:        "orders",
		Persistence: true,
		ConsumerFactory: func() kafka.Consumer {
			return &countingConsumer{onConsume: func(batch []kafka.Message) { consumed <- len(batch) }}
		},
	}

	group := kafka.SubscriptionGroup{
		ID: "sg1", GroupID: "g1",
		Topics:      []kafka.TopicDescriptor{desc},
		MaxWaitTime: 50 * time.Millisecond,
		MaxMessages: 100,
	}

	queue := NewJobsQueue()
	gc := NewConsumerGroupCoordinator(1)
	rt := runtime.New()
	monitor := kafka.NewMonitor()

	listener, err := NewListener(group, factory, queue, FIFOScheduler{}, gc, rt, monitor, zap.NewNop())
	require.NoError(t, err)

	worker := NewWorker(1, queue, monitor, zap.NewNop())
	workerDone := make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(workerDone)
	}()

	runDone := make(chan struct{})
	go func() {
		listener.Run(context.Background())
		close(runDone)
	}()

	select {
	case n := <-consumed:
		assert.Greater(t, n, 0)
	case <-time.After(2 * time.Second):
		t.Fatal("listener never scheduled a consume job")
	}

	rt.TransitionStopping()

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Listener.Run did not return after the runtime signaled done")
	}

	queue.Close()
	<-workerDone
}

type countingConsumer struct {
	kafka.BaseConsumer
	onConsume func([]kafka.Message)
}

func (c *countingConsumer) OnConsume(ctx context.Context, batch []kafka.Message) error {
	c.onConsume(batch)
	return nil
}
