package kafka

import "context"

// Consumer is the capability set a user consumer type may implement.
// Strategies (throttling, DLQ, filtering, expiring, delaying) compose
// over this interface as decorators rather than a runtime type switch:
// each TopicDescriptor picks its bundle once, at ConsumerFactory
// construction time. TopicDescriptor.LongRunningJob selects no
// decorator and does not change how the hooks run.
//
// Hooks fire, per batch, in this order: OnBeforeEnqueue (listener
// goroutine), OnBeforeConsume, OnConsume, OnAfterConsume (worker
// goroutine). OnIdle fires instead of OnBeforeConsume/OnConsume/
// OnAfterConsume when the batch is empty. OnRevoked and OnShutdown
// fire only if the consumer instance was ever materialized.
type Consumer interface {
	OnBeforeEnqueue(ctx context.Context, batch []Message)
	OnBeforeConsume(ctx context.Context, batch []Message)
	OnConsume(ctx context.Context, batch []Message) error
	OnAfterConsume(ctx context.Context, batch []Message, err error)
	OnIdle(ctx context.Context)
	OnRevoked(ctx context.Context)
	OnShutdown(ctx context.Context)

	// Bind is called once, before any hook, with the collaborators the
	// consumer needs to pause/seek/mark_as_consumed during OnConsume.
	Bind(ctl ExecutionControl)
}

// ExecutionControl is the handle a Consumer uses to affect its own
// (topic, partition) during OnConsume: pause, seek, and mark offsets
// as consumed without waiting for the whole batch to finish.
type ExecutionControl interface {
	MarkAsConsumed(m Message) bool
	MarkAsConsumedSync(m Message) bool
	Pause(until int64)
	Seek(m Message) error
}

// BaseConsumer implements every Consumer hook as a no-op so concrete
// consumers only override what they need.
type BaseConsumer struct {
	Ctl ExecutionControl
}

func (BaseConsumer) OnBeforeEnqueue(context.Context, []Message)        {}
func (BaseConsumer) OnBeforeConsume(context.Context, []Message)        {}
func (BaseConsumer) OnConsume(context.Context, []Message) error        { return nil }
func (BaseConsumer) OnAfterConsume(context.Context, []Message, error)  {}
func (BaseConsumer) OnIdle(context.Context)                            {}
func (BaseConsumer) OnRevoked(context.Context)                         {}
func (BaseConsumer) OnShutdown(context.Context)                        {}
func (b *BaseConsumer) Bind(ctl ExecutionControl)                      { b.Ctl = ctl }
