package kafka

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kafcore/kafcore/internal/consumer"
	"github.com/kafcore/kafcore/internal/runtime"
)

// Engine is the process-level composition root: one Runtime, one
// shared JobsQueue and worker pool, one ConsumerGroupCoordinator per
// distinct Kafka consumer group spanned by the configured
// subscription groups, and one Listener per subscription group.
type Engine struct {
	cfg     Config
	factory DriverFactory
	rt      *runtime.Runtime
	monitor *Monitor

	queue     *consumer.JobsQueue
	workers   []*consumer.Worker
	listeners []*consumer.Listener

	workersWG   sync.WaitGroup
	listenersWG sync.WaitGroup

	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewEngine wires up an Engine from cfg and factory. factory builds
// the concrete Driver (see internal/kdriver for the sarama adapter);
// it is injected so tests can substitute a fake.
func NewEngine(cfg Config, factory DriverFactory, monitor *Monitor) (*Engine, error) {
	if monitor == nil {
		monitor = NewMonitor()
	}
	rt := runtime.New()
	queue := consumer.NewJobsQueue()

	byGroupID := make(map[string]int)
	for _, sg := range cfg.SubscriptionGroups {
		byGroupID[sg.GroupID]++
	}
	coordinators := make(map[string]*consumer.ConsumerGroupCoordinator, len(byGroupID))
	for gid, n := range byGroupID {
		coordinators[gid] = consumer.NewConsumerGroupCoordinator(n)
	}

	e := &Engine{cfg: cfg, factory: factory, rt: rt, monitor: monitor, queue: queue}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, sg := range cfg.SubscriptionGroups {
		for i := range sg.Topics {
			sg.Topics[i].Persistence = cfg.ConsumerPersistence
			if sg.Topics[i].Pause.Timeout == 0 {
				sg.Topics[i].Pause = PauseConfig{
					Timeout:            cfg.PauseTimeout,
					MaxTimeout:         cfg.PauseMaxTimeout,
					ExponentialBackoff: cfg.PauseExponential,
				}
			}
		}
		l, err := consumer.NewListener(sg, adaptFactory(factory), queue, consumer.FIFOScheduler{}, coordinators[sg.GroupID], rt, monitor, logger)
		if err != nil {
			return nil, err
		}
		e.listeners = append(e.listeners, l)
	}

	for i := 0; i < cfg.Concurrency; i++ {
		e.workers = append(e.workers, consumer.NewWorker(i, queue, monitor, logger))
	}

	return e, nil
}

func adaptFactory(f DriverFactory) func(SubscriptionGroup) (Driver, error) {
	return func(sg SubscriptionGroup) (Driver, error) { return f(sg) }
}

// Run starts every worker and every listener, and blocks until ctx is
// canceled or Stop is called from another goroutine.
func (e *Engine) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.monitor.Notify(Event{Type: EventAppRunning})

	for _, w := range e.workers {
		w := w
		e.workersWG.Add(1)
		go func() {
			defer e.workersWG.Done()
			w.Run(runCtx)
		}()
	}

	for _, l := range e.listeners {
		l := l
		e.listenersWG.Add(1)
		go func() {
			defer e.listenersWG.Done()
			l.Run(runCtx)
		}()
	}

	<-runCtx.Done()
	e.Stop()
}

// Stop signals every listener to begin its shutdown sequence and
// blocks until they, and then every worker, have returned. Listeners
// must finish first: they are what drains the jobs queue that keeps
// workers alive. Safe to call more than once, and safe to call from a
// goroutine other than the one running Run.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.monitor.Notify(Event{Type: EventAppStopping})
		e.rt.TransitionStopping()
		if e.cancel != nil {
			e.cancel()
		}
		e.listenersWG.Wait()
		e.queue.Close()
		e.workersWG.Wait()
		e.rt.TransitionStopped()
		e.monitor.Notify(Event{Type: EventAppStopped})
	})
}
