// Package util carries small concurrency helpers shared across
// internal/consumer, in the teacher's style (internal/util.RunLifecycle).
package util

import (
	"sync"

	"go.uber.org/zap"
)

type lifecycleState int

const (
	stateIdle lifecycleState = iota
	stateStarted
	stateStopped
)

// RunLifecycle guards a component's Start/Stop pair so each fires its
// action at most once, even under concurrent callers racing to start
// or stop the same component.
type RunLifecycle struct {
	name   string
	logger *zap.Logger
	mu     sync.Mutex
	state  lifecycleState
}

// NewRunLifecycle returns a lifecycle guard identified by name for
// logging.
func NewRunLifecycle(name string, logger *zap.Logger) *RunLifecycle {
	return &RunLifecycle{name: name, logger: logger}
}

// Start runs fn and transitions to started, unless already started or
// stopped. Returns the error fn returned, or nil if Start was a no-op.
func (l *RunLifecycle) Start(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateIdle {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	l.state = stateStarted
	return nil
}

// Stop runs fn and transitions to stopped, unless already stopped or
// never started.
func (l *RunLifecycle) Stop(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateStarted {
		return
	}
	fn()
	l.state = stateStopped
}

// Started reports whether Start has successfully run.
func (l *RunLifecycle) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateStarted
}
