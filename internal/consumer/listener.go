package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kafcore/kafcore/internal/runtime"
	"github.com/kafcore/kafcore/kafka"
)

const pingCadence = 200 * time.Millisecond

// Listener owns the control loop for one subscription group (spec
// §4.8): it exclusively owns its Client, CoordinatorsBuffer,
// ExecutorsBuffer and MessagesBuffer.
type Listener struct {
	id      string
	group   kafka.SubscriptionGroup
	rt      *runtime.Runtime
	monitor *kafka.Monitor
	logger  *zap.Logger

	factory kafka.DriverFactory
	queue   *JobsQueue
	groupCoordinator *ConsumerGroupCoordinator
	scheduler Scheduler

	topics map[string]kafka.TopicDescriptor

	client       *Client
	rebalance    *RebalanceManager
	coordinators *CoordinatorsBuffer
	executors    *ExecutorsBuffer
	messages     *MessagesBuffer

	shutdownOnce sync.Once
}

// NewListener builds a Listener for group. It does not start polling;
// call Run.
func NewListener(group kafka.SubscriptionGroup, factory kafka.DriverFactory, queue *JobsQueue, scheduler Scheduler, gc *ConsumerGroupCoordinator, rt *runtime.Runtime, monitor *kafka.Monitor, logger *zap.Logger) (*Listener, error) {
	topics := make(map[string]kafka.TopicDescriptor, len(group.Topics))
	for _, t := range group.Topics {
		topics[t.Name] = t
	}

	l := &Listener{
		id:               uuid.NewString(),
		group:            group,
		rt:               rt,
		monitor:          monitor,
		logger:           logger.With(zap.String("subscription_group", group.ID)),
		factory:          factory,
		queue:            queue,
		groupCoordinator: gc,
		scheduler:        scheduler,
		topics:           topics,
		rebalance:        NewRebalanceManager(),
		coordinators:     NewCoordinatorsBuffer(),
		executors:        NewExecutorsBuffer(),
		messages:         NewMessagesBuffer(),
	}

	client, err := NewClient(group.ID, group, factory, rt, monitor, l.logger, l.rebalance)
	if err != nil {
		return nil, err
	}
	l.client = client
	return l, nil
}

// Run drives the listener until the process is done, restarting its
// own state on any uncaught error (spec §4.8 closing paragraph).
func (l *Listener) Run(ctx context.Context) {
	for {
		err := l.loop(ctx)
		if err == nil {
			return
		}
		l.logger.Error("connection.listener.fetch_loop.error", zap.Error(err))
		l.monitor.Notify(kafka.Event{Type: kafka.EventListenerFetchLoopError, Payload: map[string]any{
			"caller": l, "error": err,
		}})
		l.queue.Clear(l.group.ID)
		if rerr := l.client.Reset(); rerr != nil {
			l.logger.Error("client reset failed", zap.Error(rerr))
		}
		l.executors.Clear()
		time.Sleep(time.Second)
		l.monitor.Notify(kafka.Event{Type: kafka.EventListenerRestarted, Payload: map[string]any{"caller": l}})
	}
}

// loop runs the main poll/schedule/wait cycle until the process
// signals done, then runs the shutdown sequence and returns nil.
func (l *Listener) loop(ctx context.Context) error {
	for !l.rt.Done() {
		if err := l.iterate(ctx); err != nil {
			return err
		}
	}
	l.Shutdown(ctx)
	return nil
}

func (l *Listener) iterate(ctx context.Context) error {
	now := time.Now()
	l.coordinators.Resume(now, func(tp kafka.TopicPartition) {
		if err := l.client.Resume(tp); err != nil {
			l.logger.Warn("resume failed", zap.String("topic", tp.Topic), zap.Int32("partition", tp.Partition), zap.Error(err))
		}
	})

	l.monitor.Notify(kafka.Event{Type: kafka.EventListenerFetchLoop, Payload: map[string]any{"caller": l}})
	raw, err := l.client.BatchPoll(ctx)
	if err != nil {
		return err
	}

	if err := l.messages.Remap(raw, l.deserialize); err != nil {
		return err
	}
	l.monitor.Notify(kafka.Event{Type: kafka.EventListenerFetchLoopReceived, Payload: map[string]any{
		"caller": l, "messages_buffer": l.messages, "time": time.Since(now),
	}})

	if l.rebalance.Changed() {
		if assigned := l.rebalance.AssignedPartitions(); len(assigned) > 0 {
			l.monitor.Notify(kafka.Event{Type: kafka.EventListenerRebalanceAssigned, Payload: map[string]any{
				"caller": l, "partitions": assigned,
			}})
		}
		l.handleRevocation(ctx)
	}

	l.scheduleBatch(ctx)
	l.queue.Wait(l.group.ID)
	return nil
}

func (l *Listener) deserialize(raw kafka.RawMessage) (kafka.Message, error) {
	desc := l.topics[raw.Topic]
	msg := kafka.Message{
		Topic:     raw.Topic,
		Partition: raw.Partition,
		Offset:    raw.Offset,
		Key:       raw.Key,
		Raw:       raw.Value,
		Headers:   raw.Headers,
		Timestamp: raw.Timestamp,
	}
	if desc.Deserializer != nil {
		payload, err := desc.Deserializer(raw.Value, raw.Headers)
		if err != nil {
			return kafka.Message{}, err
		}
		msg.Payload = payload
	}
	return msg, nil
}

func (l *Listener) handleRevocation(ctx context.Context) {
	revoked := l.rebalance.RevokedPartitions()
	if len(revoked) == 0 {
		l.rebalance.Clear()
		return
	}

	var jobs []*Job
	for _, tp := range revoked {
		l.messages.Delete(tp)
		l.coordinators.FindOrCreate(tp).Revoke()
		l.monitor.Notify(kafka.Event{Type: kafka.EventCoordinatorRevoked, Payload: map[string]any{
			"caller": l, "topic_partition": tp,
		}})
		for _, exec := range l.executors.Revoke(tp.Topic, tp.Partition) {
			jobs = append(jobs, NewJob(JobRevoked, exec, nil))
		}
		l.coordinators.Delete(tp)
	}
	l.monitor.Notify(kafka.Event{Type: kafka.EventListenerRebalanceRevoked, Payload: map[string]any{
		"caller": l, "partitions": revoked,
	}})
	l.rebalance.Clear()

	if len(jobs) == 0 {
		return
	}
	l.runBeforeEnqueue(ctx, jobs)
	l.scheduler.ScheduleRevocation(l.queue, jobs)
	l.queue.Wait(l.group.ID)
}

func (l *Listener) scheduleBatch(ctx context.Context) {
	assigned, err := l.client.Assignment()
	if err != nil {
		l.logger.Warn("assignment lookup failed", zap.Error(err))
		return
	}

	var jobs []*Job
	for _, tp := range assigned {
		desc, ok := l.topics[tp.Topic]
		if !ok {
			continue
		}
		batch, ok := l.messages.Lookup(tp)
		if !ok || len(batch) == 0 {
			coord := l.coordinators.FindOrCreate(tp)
			if coord.Revoked() {
				continue
			}
			exec := l.findOrCreateExecutor(desc, tp.Partition, "default", coord)
			jobs = append(jobs, NewJob(JobIdle, exec, nil))
			continue
		}

		coord := l.coordinators.FindOrCreate(tp)
		coord.Start(len(batch))
		groups := map[string][]kafka.Message{"default": batch}
		if desc.VirtualPartitioner != nil {
			groups = desc.VirtualPartitioner(batch)
		}
		for vgroup, sub := range groups {
			if len(sub) == 0 {
				continue
			}
			exec := l.findOrCreateExecutor(desc, tp.Partition, vgroup, coord)
			coord.Increment()
			jobs = append(jobs, NewConsumeJob(exec, sub))
		}
	}

	if len(jobs) == 0 {
		return
	}
	l.runBeforeEnqueue(ctx, jobs)
	l.scheduler.ScheduleConsumption(l.queue, jobs)
}

func (l *Listener) findOrCreateExecutor(desc kafka.TopicDescriptor, partition int32, vgroup string, coord *Coordinator) *Executor {
	ctl := newExecutionControl(l.client, coord)
	return l.executors.FindOrCreate(l.group.ID, desc, partition, vgroup, coord, ctl, l.monitor)
}

func (l *Listener) runBeforeEnqueue(ctx context.Context, jobs []*Job) {
	for _, j := range jobs {
		if j.Kind == JobConsume {
			j.instance().OnBeforeEnqueue(ctx, j.Messages)
		}
	}
}

// shutdown runs the quiet-mode sequence: keep the session alive via
// Ping while scheduling shutdown jobs, wait for them, coordinate with
// sibling subscription groups, then stop the client.
func (l *Listener) shutdown(ctx context.Context) {
	l.monitor.Notify(kafka.Event{Type: kafka.EventAppQuieting, Payload: map[string]any{"caller": l}})

	pingDone := make(chan struct{})
	go l.pingLoop(ctx, pingDone)

	var jobs []*Job
	l.executors.Each(func(e *Executor) {
		jobs = append(jobs, NewJob(JobShutdown, e, nil))
	})
	if len(jobs) > 0 {
		l.runBeforeEnqueue(ctx, jobs)
		l.scheduler.ScheduleShutdown(l.queue, jobs)
	}
	l.queue.Wait(l.group.ID)

	l.groupCoordinator.Unlock(l.id)
	l.groupCoordinator.WaitForShutdown()

	close(pingDone)
	l.client.Ping(ctx)

	if err := l.client.Stop(); err != nil {
		l.logger.Error("client stop failed", zap.Error(err))
	}
	l.monitor.Notify(kafka.Event{Type: kafka.EventAppQuiet, Payload: map[string]any{"caller": l}})
}

func (l *Listener) pingLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(pingCadence)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.client.Ping(ctx)
		}
	}
}

// Shutdown forces an out-of-band stop. Safe to call more than once, or
// concurrently with Run reaching its own shutdown() call, since only
// one caller's shutdown() sequence ever actually runs.
func (l *Listener) Shutdown(ctx context.Context) {
	l.shutdownOnce.Do(func() { l.shutdown(ctx) })
}
