package consumer

import (
	"github.com/google/uuid"
	"github.com/kafcore/kafcore/kafka"
)

// JobKind distinguishes the four kinds of work a Listener can hand to
// a Worker (spec §3, Job entity).
type JobKind int

const (
	JobConsume JobKind = iota
	JobIdle
	JobRevoked
	JobShutdown
)

func (k JobKind) String() string {
	switch k {
	case JobConsume:
		return "consume"
	case JobIdle:
		return "idle"
	case JobRevoked:
		return "revoked"
	case JobShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Job is one unit of work belonging to exactly one Executor.
type Job struct {
	ID       string
	Kind     JobKind
	Executor *Executor
	Messages []kafka.Message

	// Instance, when set, is the consumer instance this job's hooks
	// must run on, captured once at enqueue time so OnBeforeEnqueue
	// (listener goroutine) and OnBeforeConsume/OnConsume/OnAfterConsume
	// (worker goroutine) always share the same instance even when the
	// topic has consumer persistence disabled (spec §4.5).
	Instance kafka.Consumer
}

// NewJob returns a Job with a fresh ID. Its hooks resolve their
// consumer instance lazily via Executor.Instance when run.
func NewJob(kind JobKind, exec *Executor, messages []kafka.Message) *Job {
	return &Job{ID: uuid.NewString(), Kind: kind, Executor: exec, Messages: messages}
}

// NewConsumeJob returns a JobConsume Job with its consumer instance
// materialized up front, so the same instance serves every lifecycle
// hook this batch fires regardless of which goroutine runs them.
func NewConsumeJob(exec *Executor, messages []kafka.Message) *Job {
	return &Job{ID: uuid.NewString(), Kind: JobConsume, Executor: exec, Messages: messages, Instance: exec.Instance()}
}

// GroupID is the subscription group this job's executor belongs to,
// the key JobsQueue partitions work by.
func (j *Job) GroupID() string { return j.Executor.GroupID }

// instance returns the consumer instance this job's hooks should run
// on, preferring the one captured at enqueue time and falling back to
// Executor.Instance for jobs built without one.
func (j *Job) instance() kafka.Consumer {
	if j.Instance != nil {
		return j.Instance
	}
	return j.Executor.Instance()
}
