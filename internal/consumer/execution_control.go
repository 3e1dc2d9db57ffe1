package consumer

import (
	"context"
	"time"

	"github.com/kafcore/kafcore/kafka"
)

// executionControl is the kafka.ExecutionControl a consumer instance
// is bound to: it lets user code pause/seek/mark-as-consumed its own
// (topic, partition) during OnConsume without reaching into the
// Client or Coordinator directly.
type executionControl struct {
	client      *Client
	coordinator *Coordinator
}

func newExecutionControl(client *Client, coord *Coordinator) *executionControl {
	return &executionControl{client: client, coordinator: coord}
}

func (e *executionControl) MarkAsConsumed(m kafka.Message) bool {
	ok, err := e.client.MarkAsConsumed(m)
	if err != nil {
		return false
	}
	if ok {
		e.coordinator.MarkOffset(m.Offset + 1)
	}
	return ok
}

func (e *executionControl) MarkAsConsumedSync(m kafka.Message) bool {
	ok, err := e.client.MarkAsConsumedSync(context.Background(), m)
	if err != nil {
		return false
	}
	if ok {
		e.coordinator.MarkOffset(m.Offset + 1)
	}
	return ok
}

func (e *executionControl) Pause(untilUnixMilli int64) {
	until := time.UnixMilli(untilUnixMilli)
	e.coordinator.Pause(until)
	_ = e.client.Pause(e.coordinator.TopicPartition())
}

func (e *executionControl) Seek(m kafka.Message) error {
	return e.client.Seek(m, false, time.Time{})
}
