// Package registry tracks the trajectory executions currently in flight.
package registry

import (
	"sync"

	"github.com/goliatone/go-errors"
	trajexec "github.com/robokit/go-trajexec"
)

// ExecutionRegistry owns the set of dispatched, not-yet-terminal trajectory
// executions. Membership is kept consistent with each execution's own state
// by removal running as a done-callback on the execution, never by polling.
// The registry lock guards only the in-flight set; it is never held across a
// dispatcher call or a callback.
type ExecutionRegistry struct {
	dispatcher trajexec.Dispatcher
	logger     trajexec.Logger
	execOpts   []trajexec.ExecutionOption

	mu       sync.Mutex
	inFlight map[*trajexec.TrajectoryExecution]struct{}
}

// Option configures an ExecutionRegistry.
type Option func(*ExecutionRegistry)

// WithLogger sets the registry logger, also inherited by executions it
// creates unless overridden through WithExecutionOptions.
func WithLogger(logger trajexec.Logger) Option {
	return func(r *ExecutionRegistry) {
		r.logger = logger
	}
}

// WithExecutionOptions sets extra options applied to every execution the
// registry constructs.
func WithExecutionOptions(opts ...trajexec.ExecutionOption) Option {
	return func(r *ExecutionRegistry) {
		r.execOpts = append(r.execOpts, opts...)
	}
}

// New builds a registry dispatching through the given dispatcher.
func New(dispatcher trajexec.Dispatcher, opts ...Option) (*ExecutionRegistry, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher cannot be nil", errors.CategoryBadInput).
			WithTextCode("REGISTRY_NIL_DISPATCHER")
	}
	r := &ExecutionRegistry{
		dispatcher: dispatcher,
		inFlight:   make(map[*trajexec.TrajectoryExecution]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Dispatch sends the requested trajectory to the dispatcher and returns the
// execution tracking it. The execution is in flight from before Dispatch
// returns until the moment it reaches a terminal state, at which point its
// done-callback removes it; that holds even when the terminal notification
// arrives while Dispatch is still running.
func (r *ExecutionRegistry) Dispatch(requested *trajexec.Trajectory) (*trajexec.TrajectoryExecution, error) {
	opts := r.execOpts
	if r.logger != nil {
		opts = append([]trajexec.ExecutionOption{trajexec.WithExecutionLogger(r.logger)}, opts...)
	}
	exec, err := trajexec.NewTrajectoryExecution(requested, opts...)
	if err != nil {
		return nil, err
	}

	handle, err := r.dispatcher.Send(trajexec.Goal{Trajectory: exec.Requested()}, exec.Handlers())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "dispatch failed").
			WithTextCode("REGISTRY_DISPATCH_FAILED")
	}
	if err := exec.Attach(r.dispatcher, handle); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.inFlight[exec] = struct{}{}
	r.mu.Unlock()

	// Runs exactly once, on the terminal transition; immediately if the
	// execution already finished while we were registering it.
	if err := exec.AddDoneCallback(func(*trajexec.Future[*trajexec.Trajectory]) {
		r.mu.Lock()
		delete(r.inFlight, exec)
		r.mu.Unlock()
	}); err != nil {
		return nil, err
	}

	if r.logger != nil {
		r.logger.Debug("dispatched trajectory execution %s (%d waypoints)", exec.ID(), requested.Len())
	}
	return exec, nil
}

// Running reports whether any execution is still in flight.
func (r *ExecutionRegistry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight) > 0
}

// Len returns the number of executions in flight.
func (r *ExecutionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

// InFlight returns a snapshot of the executions in flight.
func (r *ExecutionRegistry) InFlight() []*trajexec.TrajectoryExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*trajexec.TrajectoryExecution, 0, len(r.inFlight))
	for exec := range r.inFlight {
		out = append(out, exec)
	}
	return out
}

// CancelAll requests cancellation of every in-flight execution, best effort.
// Executions that finish while the fan-out runs are skipped without error.
func (r *ExecutionRegistry) CancelAll() error {
	var errs error
	for _, exec := range r.InFlight() {
		if _, err := exec.Cancel(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
