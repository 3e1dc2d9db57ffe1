// Package metrics names the tally counters and gauges emitted across
// internal/consumer, mirroring the teacher's internal/metrics package.
package metrics

const (
	ListenerFetchLoopStarted   = "listener.fetch_loop.started"
	ListenerBatchSize          = "listener.batch_size"
	ListenerRebalanceRevoked   = "listener.rebalance.revoked"
	ListenerRebalanceAssigned  = "listener.rebalance.assigned"
	ListenerRestarted          = "listener.restarted"

	ClientPollError = "client.poll.error"
	ClientClosed    = "client.closed"
	ClientPaused    = "client.paused"
	ClientResumed   = "client.resumed"

	CoordinatorRevoked = "coordinator.revoked"

	WorkerProcessed      = "worker.processed"
	WorkerProcessingTime = "worker.processing_time"
	WorkerErrors         = "worker.errors"

	DLQDispatched      = "dlq.dispatched"
	FilteringThrottled = "filtering.throttled"
	FilteringSeek      = "filtering.seek"
)
