package trajexec

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeTimeout         = "TRAJEXEC_WAIT_TIMEOUT"
	ErrCodeCancelled       = "TRAJEXEC_CANCELLED"
	ErrCodeExecutionFailed = "TRAJEXEC_EXECUTION_FAILED"
	ErrCodeInternal        = "TRAJEXEC_INTERNAL"
)

var (
	// ErrTimeout reports that a bounded wait expired before the execution
	// finished. The execution keeps running; the caller may wait again or
	// inspect the partial result.
	ErrTimeout = errors.New("wait timed out before the execution finished", errors.CategoryExternal).
			WithTextCode(ErrCodeTimeout)

	// ErrCancelled reports that the execution ended because the goal was
	// cancelled, by this process or by another one.
	ErrCancelled = errors.New("execution was cancelled", errors.CategoryExternal).
			WithTextCode(ErrCodeCancelled)

	// ErrExecutionFailed reports that the controller ran the goal to a
	// terminal state other than success.
	ErrExecutionFailed = errors.New("trajectory execution failed", errors.CategoryHandler).
				WithTextCode(ErrCodeExecutionFailed)

	// ErrInternal flags misuse of this package: double completion, duplicate
	// callback registration, cancelling a never-dispatched execution. These
	// are bugs in the calling code and are never swallowed internally.
	ErrInternal = errors.New("internal usage error", errors.CategoryBadInput).
			WithTextCode(ErrCodeInternal)
)

// NewExecutionFailed builds a terminal failure that carries both the requested
// trajectory and whatever was executed before the failure, for diagnosis.
func NewExecutionFailed(reason string, requested, executed *Trajectory) *errors.Error {
	err := ErrExecutionFailed.Clone()
	if text := strings.TrimSpace(reason); text != "" {
		err.Message = text
	}
	return err.WithMetadata(map[string]any{
		"requested": requested,
		"executed":  executed,
	})
}

// ExecutionSnapshots extracts the requested/executed trajectories attached to
// an execution failure. ok is false for any other error.
func ExecutionSnapshots(err error) (requested, executed *Trajectory, ok bool) {
	var ge *errors.Error
	if !stderrors.As(err, &ge) || ge.TextCode != ErrCodeExecutionFailed {
		return nil, nil, false
	}
	requested, _ = ge.Metadata["requested"].(*Trajectory)
	executed, _ = ge.Metadata["executed"].(*Trajectory)
	return requested, executed, true
}

func newInternal(format string, args ...any) *errors.Error {
	err := ErrInternal.Clone()
	err.Message = fmt.Sprintf(format, args...)
	return err
}

func errorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsTimeout reports whether err is a wait timeout.
func IsTimeout(err error) bool { return errorCode(err) == ErrCodeTimeout }

// IsCancelled reports whether err signals a cancelled execution.
func IsCancelled(err error) bool { return errorCode(err) == ErrCodeCancelled }

// IsExecutionFailed reports whether err is a terminal controller failure.
func IsExecutionFailed(err error) bool { return errorCode(err) == ErrCodeExecutionFailed }

// IsInternal reports whether err flags misuse of this package.
func IsInternal(err error) bool { return errorCode(err) == ErrCodeInternal }
