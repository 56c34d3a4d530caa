package trajexec

import (
	"fmt"
	"time"
)

// GoalState is the coarse protocol state of a dispatched goal as observed by
// the dispatcher.
type GoalState int

const (
	GoalPending GoalState = iota
	GoalActive
	GoalDone
)

func (s GoalState) String() string {
	switch s {
	case GoalPending:
		return "pending"
	case GoalActive:
		return "active"
	case GoalDone:
		return "done"
	default:
		return fmt.Sprintf("goal_state(%d)", int(s))
	}
}

// TerminalKind says why a goal reached GoalDone.
type TerminalKind int

const (
	TerminalNone TerminalKind = iota
	TerminalSucceeded
	TerminalPreempted
	TerminalRecalled
	TerminalAborted
	TerminalRejected
	TerminalLost
)

func (k TerminalKind) String() string {
	switch k {
	case TerminalNone:
		return "none"
	case TerminalSucceeded:
		return "succeeded"
	case TerminalPreempted:
		return "preempted"
	case TerminalRecalled:
		return "recalled"
	case TerminalAborted:
		return "aborted"
	case TerminalRejected:
		return "rejected"
	case TerminalLost:
		return "lost"
	default:
		return fmt.Sprintf("terminal_kind(%d)", int(k))
	}
}

// ResultCode is the controller's own verdict on a goal that ran to
// completion. A goal can terminate successfully at the protocol level and
// still report a controller-level failure.
type ResultCode int

const (
	ResultSuccessful            ResultCode = 0
	ResultInvalidGoal           ResultCode = -1
	ResultInvalidJoints         ResultCode = -2
	ResultOldHeaderTimestamp    ResultCode = -3
	ResultPathToleranceViolated ResultCode = -4
	ResultGoalToleranceViolated ResultCode = -5
)

func (c ResultCode) String() string {
	switch c {
	case ResultSuccessful:
		return "successful"
	case ResultInvalidGoal:
		return "invalid_goal"
	case ResultInvalidJoints:
		return "invalid_joints"
	case ResultOldHeaderTimestamp:
		return "old_header_timestamp"
	case ResultPathToleranceViolated:
		return "path_tolerance_violated"
	case ResultGoalToleranceViolated:
		return "goal_tolerance_violated"
	default:
		return fmt.Sprintf("result_code(%d)", int(c))
	}
}

// GoalResult is the controller result delivered with a terminal transition.
type GoalResult struct {
	Code    ResultCode
	Message string
}

// TransitionEvent is one protocol state notification. Terminal, Status and
// Result are only meaningful when State is GoalDone.
type TransitionEvent struct {
	State    GoalState
	Terminal TerminalKind
	Status   string
	Result   *GoalResult
}

// Feedback is one progress notification: the waypoint the controller actually
// reached, stamped with the controller's wall-clock time.
type Feedback struct {
	Timestamp time.Time
	Actual    Waypoint
}

// CorrelationHandle identifies one in-flight dispatch. It is opaque to this
// package beyond its ID; only the dispatcher that issued it can interpret it.
type CorrelationHandle interface {
	ID() string
}

// Handlers are the notification callbacks a caller registers at dispatch
// time. The dispatcher invokes them on its own goroutines, in the order it
// observed the events, with no mutual exclusion between the two channels.
type Handlers struct {
	Transition func(TransitionEvent)
	Feedback   func(Feedback)
}

// Dispatcher is the boundary to the external action client. Send issues a
// goal and returns the correlation handle for later cancellation; Cancel is
// advisory and asynchronous, the outcome arrives as a later transition.
type Dispatcher interface {
	Send(goal Goal, handlers Handlers) (CorrelationHandle, error)
	Cancel(handle CorrelationHandle) error
}
