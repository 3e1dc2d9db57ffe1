package consumer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kafcore/kafcore/kafka"
)

// Worker pops jobs off the shared JobsQueue and drives one executor's
// lifecycle hooks per job (spec §4.6, §4.8). A process runs
// Config.Concurrency Workers sharing one JobsQueue.
type Worker struct {
	id      int
	queue   *JobsQueue
	monitor *kafka.Monitor
	logger  *zap.Logger
}

// NewWorker returns a Worker reading from queue.
func NewWorker(id int, queue *JobsQueue, monitor *kafka.Monitor, logger *zap.Logger) *Worker {
	return &Worker{id: id, queue: queue, monitor: monitor, logger: logger}
}

// Run pops and processes jobs until the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ok := w.queue.PopAny()
		if !ok {
			return
		}
		w.process(ctx, job)
	}
}

// process invokes the job's lifecycle hook, recovering from a panicking
// consumer the same way a user-code exception is handled (spec §7,
// "Worker internal error... must not kill the worker thread").
func (w *Worker) process(ctx context.Context, job *Job) {
	gid := job.GroupID()
	start := time.Now()
	defer func() {
		job.Executor.Coordinator().Decrement()
		w.queue.Complete(gid, job)
		w.monitor.Notify(kafka.Event{Type: kafka.EventWorkerCompleted, Payload: map[string]any{"job": job}})
	}()

	w.monitor.Notify(kafka.Event{Type: kafka.EventWorkerProcess, Payload: map[string]any{"job": job}})

	if err := w.safeInvoke(ctx, job); err != nil {
		w.logger.Error("worker.process.error", zap.String("job_id", job.ID), zap.Error(err))
		errType := kafka.ErrorTypeConsumerConsume
		switch job.Kind {
		case JobIdle:
			errType = kafka.ErrorTypeConsumerIdle
		case JobRevoked:
			errType = kafka.ErrorTypeConsumerRevoked
		case JobShutdown:
			errType = kafka.ErrorTypeConsumerShutdown
		}
		w.monitor.Notify(kafka.Event{Type: kafka.EventErrorOccurred, Payload: map[string]any{
			"caller": w, "error": err, "type": errType,
		}})
		return
	}

	w.monitor.Notify(kafka.Event{Type: kafka.EventWorkerProcessed, Payload: map[string]any{
		"job": job, "duration": time.Since(start),
	}})
}

func (w *Worker) safeInvoke(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: panic in job %s: %v", job.ID, r)
		}
	}()

	switch job.Kind {
	case JobConsume:
		return w.invokeConsume(ctx, job)
	case JobIdle:
		job.Executor.Instance().OnIdle(ctx)
		return nil
	case JobRevoked:
		if job.Executor.Materialized() {
			job.Executor.Instance().OnRevoked(ctx)
		}
		return nil
	case JobShutdown:
		if job.Executor.Materialized() {
			job.Executor.Instance().OnShutdown(ctx)
		}
		return nil
	default:
		return fmt.Errorf("worker: unknown job kind %v", job.Kind)
	}
}

func (w *Worker) invokeConsume(ctx context.Context, job *Job) error {
	inst := job.instance()

	inst.OnBeforeConsume(ctx, job.Messages)
	err := inst.OnConsume(ctx, job.Messages)
	inst.OnAfterConsume(ctx, job.Messages, err)

	if err != nil {
		coord := job.Executor.Coordinator()
		attempt := coord.IncrementRetry()
		w.monitor.Notify(kafka.Event{Type: kafka.EventConsumerConsumingRetry, Payload: map[string]any{
			"job": job, "attempt": attempt, "error": err,
		}})
		job.Executor.PauseForRetry(attempt, job.Messages)
		return err
	}
	job.Executor.Coordinator().ResetRetry()
	return nil
}
