package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trajexec "github.com/robokit/go-trajexec"
)

type manualHandle string

func (h manualHandle) ID() string { return string(h) }

type sentGoal struct {
	goal     trajexec.Goal
	handlers trajexec.Handlers
}

// manualDispatcher captures handlers so tests drive notifications themselves.
type manualDispatcher struct {
	mu        sync.Mutex
	sent      []sentGoal
	cancelled []string
	sendErr   error
	onSend    func(trajexec.Handlers)
}

func (d *manualDispatcher) Send(goal trajexec.Goal, handlers trajexec.Handlers) (trajexec.CorrelationHandle, error) {
	if d.sendErr != nil {
		return nil, d.sendErr
	}
	d.mu.Lock()
	d.sent = append(d.sent, sentGoal{goal: goal, handlers: handlers})
	n := len(d.sent)
	d.mu.Unlock()
	if d.onSend != nil {
		d.onSend(handlers)
	}
	return manualHandle(time.Now().Format("150405.000000") + "-" + string(rune('a'+n))), nil
}

func (d *manualDispatcher) Cancel(handle trajexec.CorrelationHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled = append(d.cancelled, handle.ID())
	return nil
}

func (d *manualDispatcher) handlers(i int) trajexec.Handlers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[i].handlers
}

func (d *manualDispatcher) cancelCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cancelled)
}

func twoJointTrajectory() *trajexec.Trajectory {
	return &trajexec.Trajectory{
		JointNames: []string{"pan", "tilt"},
		Points: []trajexec.Waypoint{
			{TimeFromStart: 0, Positions: []float64{0, 0}},
			{TimeFromStart: 50 * time.Millisecond, Positions: []float64{0.5, -0.5}},
		},
	}
}

func terminalSuccess() trajexec.TransitionEvent {
	return trajexec.TransitionEvent{
		State:    trajexec.GoalDone,
		Terminal: trajexec.TerminalSucceeded,
		Result:   &trajexec.GoalResult{Code: trajexec.ResultSuccessful},
	}
}

func TestRegistryRequiresDispatcher(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestRegistryTracksInFlightExecutions(t *testing.T) {
	d := &manualDispatcher{}
	r, err := New(d)
	require.NoError(t, err)

	assert.False(t, r.Running())

	exec, err := r.Dispatch(twoJointTrajectory())
	require.NoError(t, err)
	assert.True(t, r.Running())
	assert.Equal(t, 1, r.Len())
	require.Len(t, r.InFlight(), 1)
	assert.Same(t, exec, r.InFlight()[0])

	// Driving the terminal transition runs the removal callback before the
	// notification call returns.
	d.handlers(0).Transition(terminalSuccess())

	assert.True(t, exec.Done())
	assert.False(t, r.Running())
	assert.Equal(t, 0, r.Len())
}

func TestRegistryTracksMultipleExecutions(t *testing.T) {
	d := &manualDispatcher{}
	r, err := New(d)
	require.NoError(t, err)

	_, err = r.Dispatch(twoJointTrajectory())
	require.NoError(t, err)
	_, err = r.Dispatch(twoJointTrajectory())
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	d.handlers(0).Transition(terminalSuccess())
	assert.Equal(t, 1, r.Len())
	d.handlers(1).Transition(terminalSuccess())
	assert.False(t, r.Running())
}

func TestRegistryRemovesExecutionCompletedDuringDispatch(t *testing.T) {
	// The whole goal lifecycle plays out synchronously inside Send, before
	// Dispatch had a chance to register the removal callback.
	d := &manualDispatcher{}
	d.onSend = func(h trajexec.Handlers) {
		h.Transition(trajexec.TransitionEvent{State: trajexec.GoalActive})
		h.Transition(terminalSuccess())
	}
	r, err := New(d)
	require.NoError(t, err)

	exec, err := r.Dispatch(twoJointTrajectory())
	require.NoError(t, err)
	assert.True(t, exec.Done())
	assert.False(t, r.Running(), "completed execution must not linger in flight")
}

func TestRegistryDispatchSendFailure(t *testing.T) {
	d := &manualDispatcher{sendErr: assert.AnError}
	r, err := New(d)
	require.NoError(t, err)

	_, err = r.Dispatch(twoJointTrajectory())
	require.Error(t, err)
	assert.False(t, r.Running())
}

func TestRegistryDispatchInvalidTrajectory(t *testing.T) {
	r, err := New(&manualDispatcher{})
	require.NoError(t, err)

	_, err = r.Dispatch(&trajexec.Trajectory{JointNames: []string{"pan"}})
	require.Error(t, err)
	assert.False(t, r.Running())
}

func TestRegistryCancelAll(t *testing.T) {
	d := &manualDispatcher{}
	r, err := New(d)
	require.NoError(t, err)

	_, err = r.Dispatch(twoJointTrajectory())
	require.NoError(t, err)
	_, err = r.Dispatch(twoJointTrajectory())
	require.NoError(t, err)

	require.NoError(t, r.CancelAll())
	assert.Equal(t, 2, d.cancelCount())

	// Cancellation is advisory; the executions leave the registry when the
	// dispatcher confirms with a preempted terminal.
	assert.True(t, r.Running())
	preempted := trajexec.TransitionEvent{State: trajexec.GoalDone, Terminal: trajexec.TerminalPreempted}
	d.handlers(0).Transition(preempted)
	d.handlers(1).Transition(preempted)
	assert.False(t, r.Running())
}

func TestRegistryConcurrentCompletionAndCancel(t *testing.T) {
	d := &manualDispatcher{}
	r, err := New(d)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		exec, err := r.Dispatch(twoJointTrajectory())
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			d.handlers(i).Transition(trajexec.TransitionEvent{
				State:    trajexec.GoalDone,
				Terminal: trajexec.TerminalPreempted,
			})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = exec.Cancel()
		}()
		wg.Wait()

		require.True(t, exec.Done())
	}
	assert.Equal(t, 0, r.Len())
}
