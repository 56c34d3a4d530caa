// Package dispatcher provides an in-process trajexec.Dispatcher that replays
// dispatched goals on its own goroutine. It stands in for the external action
// client in tests and examples: one feedback sample per requested waypoint on
// the requested schedule, followed by a terminal transition.
package dispatcher

import (
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	trajexec "github.com/robokit/go-trajexec"
)

type localHandle struct {
	id string
}

func (h localHandle) ID() string { return h.id }

type replay struct {
	id       string
	goal     trajexec.Goal
	handlers trajexec.Handlers

	stopOnce sync.Once
	stopped  chan struct{}
}

func (r *replay) stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
}

// Local replays goals in process. Each Send starts one goroutine that emits
// Pending and Active transitions, the feedback samples, and a terminal Done
// transition.
// Cancel cuts the replay short with a Preempted terminal, mirroring how a
// real controller acknowledges a cancel request asynchronously.
type Local struct {
	logger    trajexec.Logger
	timeScale float64
	outcome   *scriptedOutcome
	dupTerm   bool

	mu    sync.Mutex
	goals map[string]*replay
	wg    sync.WaitGroup
}

type scriptedOutcome struct {
	terminal trajexec.TerminalKind
	status   string
	result   *trajexec.GoalResult
}

// Option configures a Local dispatcher.
type Option func(*Local)

// WithLogger sets the dispatcher logger.
func WithLogger(logger trajexec.Logger) Option {
	return func(l *Local) {
		l.logger = logger
	}
}

// WithTimeScale compresses (scale < 1) or stretches (scale > 1) the replay
// schedule. Feedback timestamps still follow the requested offsets, so
// executed trajectories keep the requested timing regardless of scale.
func WithTimeScale(scale float64) Option {
	return func(l *Local) {
		if scale > 0 {
			l.timeScale = scale
		}
	}
}

// WithScriptedOutcome forces every goal to terminate with the given protocol
// outcome instead of success. Used to exercise failure paths.
func WithScriptedOutcome(terminal trajexec.TerminalKind, status string, result *trajexec.GoalResult) Option {
	return func(l *Local) {
		l.outcome = &scriptedOutcome{terminal: terminal, status: status, result: result}
	}
}

// WithDuplicateTerminal re-delivers every terminal transition a second time,
// exercising the consumer's debouncing.
func WithDuplicateTerminal() Option {
	return func(l *Local) {
		l.dupTerm = true
	}
}

// NewLocal builds an in-process dispatcher.
func NewLocal(opts ...Option) *Local {
	l := &Local{
		timeScale: 1,
		goals:     make(map[string]*replay),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Send starts replaying the goal and returns its correlation handle.
func (l *Local) Send(goal trajexec.Goal, handlers trajexec.Handlers) (trajexec.CorrelationHandle, error) {
	if goal.Trajectory == nil || goal.Trajectory.Len() == 0 {
		return nil, errors.New("goal has no trajectory to replay", errors.CategoryBadInput).
			WithTextCode("DISPATCH_EMPTY_GOAL")
	}
	if handlers.Transition == nil || handlers.Feedback == nil {
		return nil, errors.New("goal requires transition and feedback handlers", errors.CategoryBadInput).
			WithTextCode("DISPATCH_NIL_HANDLERS")
	}

	r := &replay{
		id:       uuid.NewString(),
		goal:     goal,
		handlers: handlers,
		stopped:  make(chan struct{}),
	}
	l.mu.Lock()
	l.goals[r.id] = r
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(r)

	return localHandle{id: r.id}, nil
}

// Cancel stops the replay identified by handle. Cancelling a goal that
// already finished is a no-op; the terminal transition was already delivered.
func (l *Local) Cancel(handle trajexec.CorrelationHandle) error {
	lh, ok := handle.(localHandle)
	if !ok {
		return errors.New("correlation handle was not issued by this dispatcher", errors.CategoryBadInput).
			WithTextCode("DISPATCH_FOREIGN_HANDLE")
	}
	l.mu.Lock()
	r := l.goals[lh.id]
	l.mu.Unlock()
	if r != nil {
		r.stop()
	}
	return nil
}

// Wait blocks until every replay goroutine has finished. Tests use it to
// avoid leaking goroutines past the test body.
func (l *Local) Wait() { l.wg.Wait() }

func (l *Local) run(r *replay) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.goals, r.id)
		l.mu.Unlock()
	}()

	r.handlers.Transition(trajexec.TransitionEvent{State: trajexec.GoalPending})
	r.handlers.Transition(trajexec.TransitionEvent{State: trajexec.GoalActive})

	base := time.Now()
	start := time.Now()
	for _, wp := range r.goal.Trajectory.Points {
		wait := time.Duration(float64(wp.TimeFromStart) * l.timeScale)
		if sleep := wait - time.Since(start); sleep > 0 {
			select {
			case <-r.stopped:
				l.finish(r, trajexec.TerminalPreempted, "goal cancelled before completion", nil)
				return
			case <-time.After(sleep):
			}
		} else {
			select {
			case <-r.stopped:
				l.finish(r, trajexec.TerminalPreempted, "goal cancelled before completion", nil)
				return
			default:
			}
		}
		r.handlers.Feedback(trajexec.Feedback{
			Timestamp: base.Add(wp.TimeFromStart),
			Actual:    wp,
		})
	}

	if l.outcome != nil {
		l.finish(r, l.outcome.terminal, l.outcome.status, l.outcome.result)
		return
	}
	l.finish(r, trajexec.TerminalSucceeded, "goal reached", &trajexec.GoalResult{Code: trajexec.ResultSuccessful})
}

func (l *Local) finish(r *replay, terminal trajexec.TerminalKind, status string, result *trajexec.GoalResult) {
	ev := trajexec.TransitionEvent{
		State:    trajexec.GoalDone,
		Terminal: terminal,
		Status:   status,
		Result:   result,
	}
	r.handlers.Transition(ev)
	if l.dupTerm {
		r.handlers.Transition(ev)
	}
	if l.logger != nil {
		l.logger.Debug("replay %s finished: %s", r.id, terminal)
	}
}
