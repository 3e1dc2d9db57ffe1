package metrics

import (
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/kafcore/kafcore/kafka"
)

// Subscribe attaches a tally.Scope-backed subscriber to monitor,
// translating the core's Monitor events into the counters/gauges
// named in names.go, the way the teacher's consumerImpl called
// c.tally.Counter(...).Inc(1) directly at each lifecycle point. Here
// the core stays decoupled from tally; this package is the one place
// that bridges the two.
func Subscribe(monitor *kafka.Monitor, scope tally.Scope, logger *zap.Logger) {
	monitor.Subscribe(kafka.EventListenerFetchLoop, func(kafka.Event) {
		scope.Counter(ListenerFetchLoopStarted).Inc(1)
	})
	monitor.Subscribe(kafka.EventListenerFetchLoopReceived, func(e kafka.Event) {
		if mb, ok := e.Payload["messages_buffer"]; ok {
			if sized, ok := mb.(interface{ Size() int }); ok {
				scope.Gauge(ListenerBatchSize).Update(float64(sized.Size()))
			}
		}
	})
	monitor.Subscribe(kafka.EventClientPause, func(kafka.Event) {
		scope.Counter(ClientPaused).Inc(1)
	})
	monitor.Subscribe(kafka.EventClientResume, func(kafka.Event) {
		scope.Counter(ClientResumed).Inc(1)
	})
	monitor.Subscribe(kafka.EventClientPollError, func(kafka.Event) {
		scope.Counter(ClientPollError).Inc(1)
	})
	monitor.Subscribe(kafka.EventListenerRebalanceAssigned, func(kafka.Event) {
		scope.Counter(ListenerRebalanceAssigned).Inc(1)
	})
	monitor.Subscribe(kafka.EventListenerRebalanceRevoked, func(kafka.Event) {
		scope.Counter(ListenerRebalanceRevoked).Inc(1)
	})
	monitor.Subscribe(kafka.EventListenerRestarted, func(kafka.Event) {
		scope.Counter(ListenerRestarted).Inc(1)
	})
	monitor.Subscribe(kafka.EventCoordinatorRevoked, func(kafka.Event) {
		scope.Counter(CoordinatorRevoked).Inc(1)
	})
	monitor.Subscribe(kafka.EventWorkerProcessed, func(e kafka.Event) {
		scope.Counter(WorkerProcessed).Inc(1)
		if d, ok := e.Payload["duration"].(time.Duration); ok {
			scope.Timer(WorkerProcessingTime).Record(d)
		}
	})
	monitor.Subscribe(kafka.EventDLQDispatched, func(kafka.Event) {
		scope.Counter(DLQDispatched).Inc(1)
	})
	monitor.Subscribe(kafka.EventFilteringThrottled, func(kafka.Event) {
		scope.Counter(FilteringThrottled).Inc(1)
	})
	monitor.Subscribe(kafka.EventFilteringSeek, func(kafka.Event) {
		scope.Counter(FilteringSeek).Inc(1)
	})
	monitor.Subscribe(kafka.EventErrorOccurred, func(e kafka.Event) {
		scope.Counter(WorkerErrors).Inc(1)
		if err, ok := e.Payload["error"].(error); ok {
			logger.Error("kafcore error", zap.Any("type", e.Payload["type"]), zap.Error(err))
		}
	})
	monitor.Subscribe(kafka.EventAppStopping, func(kafka.Event) {
		logger.Info("kafcore stopping")
	})
	monitor.Subscribe(kafka.EventAppStopped, func(kafka.Event) {
		scope.Counter(ClientClosed).Inc(1)
		logger.Info("kafcore stopped")
	})
}
