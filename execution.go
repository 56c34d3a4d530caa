package trajexec

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TrajectoryExecution tracks one dispatched trajectory goal. It is the future
// for the executed trajectory, fed by the dispatcher's transition and
// feedback notifications: feedback samples accumulate into an append-only
// partial result, and the terminal transition completes the future exactly
// once.
type TrajectoryExecution struct {
	*Future[*Trajectory]

	id     uuid.UUID
	logger Logger

	// mu guards everything below. It is never held across a completion call,
	// a callback, or a call into the dispatcher.
	mu         sync.Mutex
	requested  *Trajectory
	executed   *Trajectory
	t0         time.Time
	started    bool
	prevState  GoalState
	dispatcher Dispatcher
	handle     CorrelationHandle
}

// ExecutionOption configures a TrajectoryExecution at construction time.
type ExecutionOption func(*TrajectoryExecution)

// WithExecutionLogger sets the logger used for lifecycle and callback-panic
// reporting.
func WithExecutionLogger(logger Logger) ExecutionOption {
	return func(te *TrajectoryExecution) {
		te.logger = logger
	}
}

// NewTrajectoryExecution builds a pending execution for the given requested
// trajectory. The snapshot taken here is immutable for the lifetime of the
// execution; the executed trajectory starts empty with the same joint set.
func NewTrajectoryExecution(requested *Trajectory, opts ...ExecutionOption) (*TrajectoryExecution, error) {
	if err := requested.Validate(); err != nil {
		return nil, err
	}

	te := &TrajectoryExecution{
		id:        uuid.New(),
		requested: requested.Clone(),
		executed:  &Trajectory{JointNames: slices.Clone(requested.JointNames)},
		prevState: GoalPending,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(te)
		}
	}
	te.logger = withLoggerFields(te.logger, map[string]any{"execution_id": te.id.String()})
	te.Future = NewFuture(WithFutureLogger[*Trajectory](te.logger))
	return te, nil
}

// ID identifies this execution in logs and registries.
func (te *TrajectoryExecution) ID() uuid.UUID { return te.id }

// Requested returns a copy of the originally requested trajectory.
func (te *TrajectoryExecution) Requested() *Trajectory {
	return te.requested.Clone()
}

// PartialResult returns a point-in-time copy of the waypoints executed so
// far. It always succeeds, including while the execution is still running.
func (te *TrajectoryExecution) PartialResult() *Trajectory {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.executed.Clone()
}

// Result waits like Future.Result and returns a copy of the executed
// trajectory, so the stored result stays immutable.
func (te *TrajectoryExecution) Result(timeout time.Duration) (*Trajectory, error) {
	traj, err := te.Future.Result(timeout)
	if err != nil {
		return nil, err
	}
	return traj.Clone(), nil
}

// Handlers returns the notification handlers to register with a Dispatcher
// at send time.
func (te *TrajectoryExecution) Handlers() Handlers {
	return Handlers{
		Transition: te.OnTransition,
		Feedback:   te.OnFeedback,
	}
}

// Attach binds the execution to its dispatch, enabling Cancel. Attaching
// twice is misuse.
func (te *TrajectoryExecution) Attach(dispatcher Dispatcher, handle CorrelationHandle) error {
	if dispatcher == nil || handle == nil {
		return newInternal("attach requires a dispatcher and a correlation handle")
	}
	te.mu.Lock()
	defer te.mu.Unlock()
	if te.handle != nil {
		return newInternal("execution is already attached to a dispatch")
	}
	te.dispatcher = dispatcher
	te.handle = handle
	return nil
}

// OnFeedback records one progress sample. The first sample fixes t0, the
// base time all later samples are made relative to. Samples arriving after
// the terminal transition are dropped.
func (te *TrajectoryExecution) OnFeedback(fb Feedback) {
	te.mu.Lock()
	defer te.mu.Unlock()

	// prevState flips to GoalDone under mu before completion runs, so this
	// also rejects samples racing the terminal transition.
	if te.prevState == GoalDone || te.Done() {
		return
	}
	if !te.started {
		te.t0 = fb.Timestamp
		te.started = true
	}
	wp := fb.Actual.Clone()
	wp.TimeFromStart = fb.Timestamp.Sub(te.t0)
	te.executed.Points = append(te.executed.Points, wp)
}

// OnTransition processes one protocol state notification. A notification
// repeating the previously observed state is debounced. The terminal GoalDone
// state completes the future: protocol success with a successful controller
// result stores the executed trajectory; protocol success with any other
// result code fails with an execution failure; preempted or recalled goals
// complete as cancelled, even when this process never requested cancellation;
// every other terminal kind fails with the protocol status text.
func (te *TrajectoryExecution) OnTransition(ev TransitionEvent) {
	te.mu.Lock()
	if ev.State == te.prevState {
		te.mu.Unlock()
		return
	}
	te.prevState = ev.State
	if ev.State != GoalDone {
		te.mu.Unlock()
		return
	}
	requested := te.requested
	executed := te.executed.Clone()
	te.mu.Unlock()

	var err error
	switch {
	case ev.Terminal == TerminalSucceeded && ev.Result != nil && ev.Result.Code == ResultSuccessful:
		err = te.SetResult(executed)
	case ev.Terminal == TerminalSucceeded:
		err = te.SetError(NewExecutionFailed(controllerFailureReason(ev.Result), requested.Clone(), executed))
	case ev.Terminal == TerminalPreempted || ev.Terminal == TerminalRecalled:
		err = te.SetCancelled()
	default:
		reason := fmt.Sprintf("trajectory execution failed (%s): %s", ev.Terminal, ev.Status)
		err = te.SetError(NewExecutionFailed(reason, requested.Clone(), executed))
	}
	if err != nil {
		te.logger.Error("terminal transition after completion: %v", err)
	}
}

// Cancel asks the dispatcher to cancel this goal. It returns an internal
// error when the execution was never dispatched, true idempotently when the
// goal is already cancelled, and false when it already finished some other
// way. Cancellation is advisory: the Cancelled state is only reached when a
// later transition reports the goal as preempted or recalled.
func (te *TrajectoryExecution) Cancel() (bool, error) {
	te.mu.Lock()
	dispatcher, handle := te.dispatcher, te.handle
	te.mu.Unlock()

	if handle == nil {
		return false, newInternal("execution was never dispatched")
	}
	if te.Cancelled() {
		return true, nil
	}
	if te.Done() {
		return false, nil
	}
	if err := dispatcher.Cancel(handle); err != nil {
		return false, errors.Wrap(err, errors.CategoryExternal, "cancel request failed").
			WithTextCode("TRAJEXEC_CANCEL_REQUEST_FAILED")
	}
	return true, nil
}

func controllerFailureReason(result *GoalResult) string {
	if result == nil {
		return "trajectory execution failed: controller returned no result"
	}
	return fmt.Sprintf("trajectory execution failed (%s): %s", result.Code, result.Message)
}
