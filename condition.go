package trajexec

import (
	"sync"
	"time"
)

// WaitableCondition pairs a mutex with a condition variable and adds an
// approximate timed wait. It exists so future-like types can block consumers
// until a predicate over their guarded state becomes true, without every type
// re-implementing the timeout and spurious-wakeup handling.
type WaitableCondition struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func NewWaitableCondition() *WaitableCondition {
	wc := &WaitableCondition{}
	wc.cond = sync.NewCond(&wc.mu)
	return wc
}

// Lock acquires the mutex guarding the state observed by WaitFor predicates.
func (wc *WaitableCondition) Lock() { wc.mu.Lock() }

// Unlock releases the mutex.
func (wc *WaitableCondition) Unlock() { wc.mu.Unlock() }

// Broadcast wakes every waiter so each re-evaluates its predicate
// independently. Callers do not need to hold the lock.
func (wc *WaitableCondition) Broadcast() { wc.cond.Broadcast() }

// WaitFor blocks until predicate reports true or timeout elapses, whichever
// comes first, and returns the final value of predicate. A timeout <= 0 waits
// without bound. The predicate is invoked with the lock held and is
// re-checked after every wakeup, so spurious wakeups never produce a false
// positive. Safe to call from any number of goroutines.
func (wc *WaitableCondition) WaitFor(predicate func() bool, timeout time.Duration) bool {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	if timeout <= 0 {
		for !predicate() {
			wc.cond.Wait()
		}
		return true
	}

	deadline := time.Now().Add(timeout)
	// The wakeup must be delivered under the lock: a bare Broadcast could
	// fire between the deadline check and cond.Wait and be lost.
	timer := time.AfterFunc(timeout, func() {
		wc.mu.Lock()
		wc.cond.Broadcast()
		wc.mu.Unlock()
	})
	defer timer.Stop()

	for !predicate() {
		if !time.Now().Before(deadline) {
			return false
		}
		wc.cond.Wait()
	}
	return true
}
