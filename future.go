package trajexec

import (
	"fmt"
	"reflect"
	"time"
)

// FutureState is the lifecycle state of a Future. Transitions only go from
// StatePending to exactly one of the terminal states.
type FutureState int

const (
	StatePending FutureState = iota
	StateSucceeded
	StateCancelled
	StateFailed
)

func (s FutureState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("future_state(%d)", int(s))
	}
}

// DoneCallback is invoked with the completed future as its only argument.
// Callbacks are identified by their code pointer: the same func value cannot
// be registered twice while the future is pending, and closures built from
// the same literal count as the same callback.
type DoneCallback[T any] func(*Future[T])

type callbackEntry[T any] struct {
	key uintptr
	fn  DoneCallback[T]
}

// Future is a one-shot, thread-safe container for the eventual outcome of an
// asynchronous operation. Exactly one of SetResult, SetCancelled or SetError
// may ever succeed; blocked waiters and registered callbacks observe that
// single completion.
type Future[T any] struct {
	cond   *WaitableCondition
	logger Logger

	// guarded by cond
	state     FutureState
	result    T
	failure   error
	callbacks []callbackEntry[T]
}

// FutureOption configures a Future at construction time.
type FutureOption[T any] func(*Future[T])

// WithFutureLogger sets the logger used to report callback panics.
func WithFutureLogger[T any](logger Logger) FutureOption[T] {
	return func(f *Future[T]) {
		f.logger = logger
	}
}

// NewFuture returns a pending future.
func NewFuture[T any](opts ...FutureOption[T]) *Future[T] {
	f := &Future[T]{cond: NewWaitableCondition()}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	f.logger = normalizeLogger(f.logger)
	return f
}

// Done reports whether the future reached a terminal state.
func (f *Future[T]) Done() bool {
	f.cond.Lock()
	defer f.cond.Unlock()
	return f.state != StatePending
}

// Cancelled reports whether the future completed as cancelled.
func (f *Future[T]) Cancelled() bool {
	f.cond.Lock()
	defer f.cond.Unlock()
	return f.state == StateCancelled
}

// State returns the current lifecycle state.
func (f *Future[T]) State() FutureState {
	f.cond.Lock()
	defer f.cond.Unlock()
	return f.state
}

// Result blocks until the future completes or timeout elapses; timeout <= 0
// waits without bound. It returns ErrTimeout when the wait expired,
// ErrCancelled when the future was cancelled, the stored failure when it
// failed, and otherwise the stored value. A timeout never affects the
// underlying operation; the caller may simply wait again.
func (f *Future[T]) Result(timeout time.Duration) (T, error) {
	var zero T
	f.cond.WaitFor(func() bool { return f.state != StatePending }, timeout)

	f.cond.Lock()
	defer f.cond.Unlock()
	switch f.state {
	case StatePending:
		return zero, ErrTimeout
	case StateCancelled:
		return zero, ErrCancelled
	case StateFailed:
		return zero, f.failure
	default:
		return f.result, nil
	}
}

// Err waits like Result and returns the stored failure, nil when the future
// succeeded. The second return reports a failed wait: ErrTimeout when the
// future is still pending after timeout, ErrCancelled when it was cancelled.
func (f *Future[T]) Err(timeout time.Duration) (error, error) {
	f.cond.WaitFor(func() bool { return f.state != StatePending }, timeout)

	f.cond.Lock()
	defer f.cond.Unlock()
	switch f.state {
	case StatePending:
		return nil, ErrTimeout
	case StateCancelled:
		return nil, ErrCancelled
	case StateFailed:
		return f.failure, nil
	default:
		return nil, nil
	}
}

// AddDoneCallback registers fn to run when the future completes. Callbacks
// fire in registration order. If the future is already done, fn runs
// synchronously, outside the lock, before AddDoneCallback returns.
// Registering the same func value twice while pending is misuse and returns
// an internal error.
func (f *Future[T]) AddDoneCallback(fn DoneCallback[T]) error {
	if fn == nil {
		return newInternal("done callback cannot be nil")
	}
	key := reflect.ValueOf(fn).Pointer()

	f.cond.Lock()
	if f.state == StatePending {
		for _, entry := range f.callbacks {
			if entry.key == key {
				f.cond.Unlock()
				return newInternal("done callback is already registered")
			}
		}
		f.callbacks = append(f.callbacks, callbackEntry[T]{key: key, fn: fn})
		f.cond.Unlock()
		return nil
	}
	f.cond.Unlock()

	f.invoke(fn)
	return nil
}

// RemoveDoneCallback removes a previously registered, not-yet-fired callback.
// Removing a callback that was never registered is misuse and returns an
// internal error.
func (f *Future[T]) RemoveDoneCallback(fn DoneCallback[T]) error {
	if fn == nil {
		return newInternal("done callback cannot be nil")
	}
	key := reflect.ValueOf(fn).Pointer()

	f.cond.Lock()
	defer f.cond.Unlock()
	for i, entry := range f.callbacks {
		if entry.key == key {
			f.callbacks = append(f.callbacks[:i], f.callbacks[i+1:]...)
			return nil
		}
	}
	return newInternal("done callback was not registered")
}

// SetResult completes the future with a value.
func (f *Future[T]) SetResult(value T) error {
	return f.complete(StateSucceeded, value, nil)
}

// SetCancelled completes the future as cancelled.
func (f *Future[T]) SetCancelled() error {
	var zero T
	return f.complete(StateCancelled, zero, nil)
}

// SetError completes the future with a failure.
func (f *Future[T]) SetError(err error) error {
	if err == nil {
		return newInternal("SetError requires a non-nil error")
	}
	var zero T
	return f.complete(StateFailed, zero, err)
}

// complete performs the single terminal transition: state is set under the
// lock, the callback list is snapshotted, the lock is released, waiters are
// woken, and only then do callbacks run. A callback is therefore free to call
// back into the future without deadlocking, but must not try to complete it
// again.
func (f *Future[T]) complete(state FutureState, value T, failure error) error {
	f.cond.Lock()
	if f.state != StatePending {
		current := f.state
		f.cond.Unlock()
		return newInternal("future is already %s", current)
	}
	f.state = state
	f.result = value
	f.failure = failure
	callbacks := make([]callbackEntry[T], len(f.callbacks))
	copy(callbacks, f.callbacks)
	f.cond.Unlock()

	f.cond.Broadcast()
	for _, entry := range callbacks {
		f.invoke(entry.fn)
	}
	return nil
}

// invoke runs one callback with panic isolation: a panicking callback is
// logged and never disturbs other callbacks, waiters, or future state.
func (f *Future[T]) invoke(fn DoneCallback[T]) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("done callback panicked: %v\n%s", r, panicStack())
		}
	}()
	fn(f)
}
