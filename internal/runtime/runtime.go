// Package runtime models the process-wide mutable state the original
// design note calls "global mutable state" (app status, the
// process-wide close mutex): instead of package-level globals, it is
// one explicit value injected into every component at construction so
// tests can instantiate a fresh Runtime per case.
package runtime

import (
	"sync"
	"sync/atomic"
)

type status int32

const (
	statusRunning status = iota
	statusStopping
	statusQuieting
	statusQuiet
	statusStopped
)

// Runtime carries process-wide cancellation state and the
// process-wide close serialization the spec calls SHUTDOWN_MUTEX.
// One Runtime is shared by every Client, Listener and worker a
// process creates.
type Runtime struct {
	state   atomic.Int32
	CloseMu sync.Mutex
}

// New returns a Runtime in the Running state.
func New() *Runtime {
	r := &Runtime{}
	r.state.Store(int32(statusRunning))
	return r
}

func (r *Runtime) Running() bool  { return status(r.state.Load()) == statusRunning }
func (r *Runtime) Stopping() bool { return status(r.state.Load()) >= statusStopping && status(r.state.Load()) < statusStopped }
func (r *Runtime) Quieting() bool { return status(r.state.Load()) == statusQuieting }
func (r *Runtime) Quiet() bool    { return status(r.state.Load()) >= statusQuiet }
func (r *Runtime) Stopped() bool  { return status(r.state.Load()) == statusStopped }
func (r *Runtime) Done() bool     { return status(r.state.Load()) >= statusStopping }

func (r *Runtime) TransitionStopping() { r.state.Store(int32(statusStopping)) }
func (r *Runtime) TransitionQuieting() { r.state.Store(int32(statusQuieting)) }
func (r *Runtime) TransitionQuiet()    { r.state.Store(int32(statusQuiet)) }
func (r *Runtime) TransitionStopped()  { r.state.Store(int32(statusStopped)) }
