package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/kafcore/kafcore/kafka"
)

func TestSubscribe_CountsLifecycleEvents(t *testing.T) {
	scope := tally.NewTestScope("kafcore", nil)
	monitor := kafka.NewMonitor()
	Subscribe(monitor, scope, zap.NewNop())

	monitor.Notify(kafka.Event{Type: kafka.EventListenerFetchLoop})
	monitor.Notify(kafka.Event{Type: kafka.EventClientPause})
	monitor.Notify(kafka.Event{Type: kafka.EventClientResume})
	monitor.Notify(kafka.Event{Type: kafka.EventWorkerProcessed})
	monitor.Notify(kafka.Event{Type: kafka.EventDLQDispatched})
	monitor.Notify(kafka.Event{Type: kafka.EventAppStopped})

	snapshot := scope.Snapshot()
	counters := snapshot.Counters()

	require.Contains(t, counters, "kafcore."+ListenerFetchLoopStarted+"+")
	assert.Equal(t, int64(1), counters["kafcore."+ListenerFetchLoopStarted+"+"].Value())
	assert.Equal(t, int64(1), counters["kafcore."+ClientPaused+"+"].Value())
	assert.Equal(t, int64(1), counters["kafcore."+ClientResumed+"+"].Value())
	assert.Equal(t, int64(1), counters["kafcore."+WorkerProcessed+"+"].Value())
	assert.Equal(t, int64(1), counters["kafcore."+DLQDispatched+"+"].Value())
	assert.Equal(t, int64(1), counters["kafcore."+ClientClosed+"+"].Value())
}

func TestSubscribe_RebalanceAndRestartEventsIncrementDedicatedCounters(t *testing.T) {
	scope := tally.NewTestScope("kafcore", nil)
	monitor := kafka.NewMonitor()
	Subscribe(monitor, scope, zap.NewNop())

	monitor.Notify(kafka.Event{Type: kafka.EventListenerRebalanceAssigned})
	monitor.Notify(kafka.Event{Type: kafka.EventListenerRebalanceRevoked})
	monitor.Notify(kafka.Event{Type: kafka.EventListenerRestarted})
	monitor.Notify(kafka.Event{Type: kafka.EventCoordinatorRevoked})
	monitor.Notify(kafka.Event{Type: kafka.EventClientPollError})

	counters := scope.Snapshot().Counters()
	assert.Equal(t, int64(1), counters["kafcore."+ListenerRebalanceAssigned+"+"].Value())
	assert.Equal(t, int64(1), counters["kafcore."+ListenerRebalanceRevoked+"+"].Value())
	assert.Equal(t, int64(1), counters["kafcore."+ListenerRestarted+"+"].Value())
	assert.Equal(t, int64(1), counters["kafcore."+CoordinatorRevoked+"+"].Value())
	assert.Equal(t, int64(1), counters["kafcore."+ClientPollError+"+"].Value())
}

func TestSubscribe_WorkerProcessedRecordsProcessingTimeWhenDurationPresent(t *testing.T) {
	scope := tally.NewTestScope("kafcore", nil)
	monitor := kafka.NewMonitor()
	Subscribe(monitor, scope, zap.NewNop())

	monitor.Notify(kafka.Event{Type: kafka.EventWorkerProcessed, Payload: map[string]any{
		"duration": 5 * time.Millisecond,
	}})

	snapshot := scope.Snapshot()
	assert.Equal(t, int64(1), snapshot.Counters()["kafcore."+WorkerProcessed+"+"].Value())
	require.Contains(t, snapshot.Timers(), "kafcore."+WorkerProcessingTime+"+")
}

func TestSubscribe_ErrorOccurredIncrementsWorkerErrors(t *testing.T) {
	scope := tally.NewTestScope("kafcore", nil)
	monitor := kafka.NewMonitor()
	Subscribe(monitor, scope, zap.NewNop())

	monitor.Notify(kafka.Event{Type: kafka.EventErrorOccurred, Payload: map[string]any{
		"error": errors.New("boom"), "type": kafka.ErrorTypeClientPoll,
	}})

	snapshot := scope.Snapshot()
	assert.Equal(t, int64(1), snapshot.Counters()["kafcore."+WorkerErrors+"+"].Value())
}

func TestSubscribe_BatchSizeGaugeReadsMessagesBufferSize(t *testing.T) {
	scope := tally.NewTestScope("kafcore", nil)
	monitor := kafka.NewMonitor()
	Subscribe(monitor, scope, zap.NewNop())

	monitor.Notify(kafka.Event{Type: kafka.EventListenerFetchLoopReceived, Payload: map[string]any{
		"messages_buffer": sizedStub{n: 7},
	}})

	snapshot := scope.Snapshot()
	gauges := snapshot.Gauges()
	require.Contains(t, gauges, "kafcore."+ListenerBatchSize+"+")
	assert.Equal(t, float64(7), gauges["kafcore."+ListenerBatchSize+"+"].Value())
}

type sizedStub struct{ n int }

func (s sizedStub) Size() int { return s.n }
