package kafka

import "sync"

// Event is a single structured occurrence the core emits. Payload
// shape varies per Type; callers type-assert the fields they care
// about.
type Event struct {
	Type    string
	Payload map[string]any
}

// Canonical event names the core emits (spec §6).
const (
	EventListenerBeforeFetchLoop  = "connection.listener.before_fetch_loop"
	EventListenerFetchLoop        = "connection.listener.fetch_loop"
	EventListenerFetchLoopReceived = "connection.listener.fetch_loop.received"
	EventListenerFetchLoopError   = "connection.listener.fetch_loop.error"
	EventClientPause              = "client.pause"
	EventClientResume             = "client.resume"
	EventClientPollError          = "connection.client.poll.error"
	EventErrorOccurred            = "error.occurred"
	EventWorkerProcess            = "worker.process"
	EventWorkerProcessed          = "worker.processed"
	EventWorkerCompleted          = "worker.completed"
	EventWorkerProcessError       = "worker.process.error"
	EventConsumerConsumingRetry   = "consumer.consuming.retry"
	EventDLQDispatched            = "dead_letter_queue.dispatched"
	EventFilteringThrottled       = "filtering.throttled"
	EventFilteringSeek            = "filtering.seek"
	EventAppRunning               = "app.running"
	EventAppStopping              = "app.stopping"
	EventAppStopped               = "app.stopped"
	EventAppQuieting              = "app.quieting"
	EventAppQuiet                 = "app.quiet"
	EventProcessNoticeSignal      = "process.notice_signal"
	EventStatisticsEmitted        = "statistics.emitted"
	EventListenerRebalanceAssigned = "connection.listener.rebalance.assigned"
	EventListenerRebalanceRevoked  = "connection.listener.rebalance.revoked"
	EventListenerRestarted         = "connection.listener.restarted"
	EventCoordinatorRevoked        = "coordinator.revoked"
)

// Canonical error.occurred "type" payload values (spec §7).
const (
	ErrorTypeConsumerConsume        = "consumer.consume.error"
	ErrorTypeConsumerRevoked        = "consumer.revoked.error"
	ErrorTypeConsumerBeforeEnqueue  = "consumer.before_enqueue.error"
	ErrorTypeConsumerBeforeConsume  = "consumer.before_consume.error"
	ErrorTypeConsumerAfterConsume   = "consumer.after_consume.error"
	ErrorTypeConsumerIdle           = "consumer.idle.error"
	ErrorTypeConsumerShutdown       = "consumer.shutdown.error"
	ErrorTypeClientPoll             = "connection.client.poll.error"
	ErrorTypeListenerFetchLoop      = "connection.listener.fetch_loop.error"
)

// Monitor is a synchronous, in-process pub/sub. Notify never blocks on
// subscriber work beyond the subscriber's own handler; it is the
// core's sole channel for producing observability, kept decoupled
// from any concrete logging/metrics library (see the tally wiring in
// internal/metrics).
type Monitor struct {
	mu   sync.RWMutex
	subs map[string][]func(Event)
	all  []func(Event)
}

// NewMonitor returns a ready-to-use Monitor.
func NewMonitor() *Monitor {
	return &Monitor{subs: make(map[string][]func(Event))}
}

// Subscribe registers fn for events of the given type. An empty type
// subscribes to every event.
func (m *Monitor) Subscribe(eventType string, fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eventType == "" {
		m.all = append(m.all, fn)
		return
	}
	m.subs[eventType] = append(m.subs[eventType], fn)
}

// Notify fires every subscriber registered for e.Type, then every
// wildcard subscriber, inline on the calling goroutine.
func (m *Monitor) Notify(e Event) {
	m.mu.RLock()
	subs := m.subs[e.Type]
	all := m.all
	m.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
	for _, fn := range all {
		fn(e)
	}
}
