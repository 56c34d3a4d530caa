package trajexec

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureStartsPending(t *testing.T) {
	f := NewFuture[int]()
	assert.False(t, f.Done())
	assert.False(t, f.Cancelled())
	assert.Equal(t, StatePending, f.State())
}

func TestFutureSetResult(t *testing.T) {
	f := NewFuture[int]()
	require.NoError(t, f.SetResult(42))

	assert.True(t, f.Done())
	assert.False(t, f.Cancelled())

	v, err := f.Result(0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFutureCompletionIsExactlyOnce(t *testing.T) {
	cases := []struct {
		name  string
		first func(*Future[int]) error
	}{
		{"result", func(f *Future[int]) error { return f.SetResult(1) }},
		{"cancelled", func(f *Future[int]) error { return f.SetCancelled() }},
		{"error", func(f *Future[int]) error { return f.SetError(errors.New("boom", errors.CategoryHandler)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFuture[int]()
			require.NoError(t, tc.first(f))

			assert.True(t, IsInternal(f.SetResult(2)))
			assert.True(t, IsInternal(f.SetCancelled()))
			assert.True(t, IsInternal(f.SetError(errors.New("again", errors.CategoryHandler))))
		})
	}
}

func TestFutureResultTimesOut(t *testing.T) {
	f := NewFuture[int]()

	start := time.Now()
	_, err := f.Result(10 * time.Millisecond)
	elapsed := time.Since(start)

	assert.True(t, IsTimeout(err))
	assert.Less(t, elapsed, 2*time.Second)
	// The timeout left the future untouched.
	assert.False(t, f.Done())
}

func TestFutureResultAfterCancellation(t *testing.T) {
	f := NewFuture[int]()
	require.NoError(t, f.SetCancelled())

	_, err := f.Result(0)
	assert.True(t, IsCancelled(err))
	assert.True(t, f.Cancelled())
}

func TestFutureResultSurfacesStoredError(t *testing.T) {
	f := NewFuture[int]()
	boom := errors.New("controller on fire", errors.CategoryHandler)
	require.NoError(t, f.SetError(boom))

	_, err := f.Result(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "controller on fire")
}

func TestFutureResultWakesBlockedWaiter(t *testing.T) {
	f := NewFuture[string]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = f.SetResult("done")
	}()

	v, err := f.Result(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestFutureErr(t *testing.T) {
	t.Run("pending times out", func(t *testing.T) {
		f := NewFuture[int]()
		stored, waitErr := f.Err(10 * time.Millisecond)
		assert.NoError(t, stored)
		assert.True(t, IsTimeout(waitErr))
	})

	t.Run("cancelled", func(t *testing.T) {
		f := NewFuture[int]()
		require.NoError(t, f.SetCancelled())
		stored, waitErr := f.Err(0)
		assert.NoError(t, stored)
		assert.True(t, IsCancelled(waitErr))
	})

	t.Run("failed returns stored error", func(t *testing.T) {
		f := NewFuture[int]()
		boom := errors.New("boom", errors.CategoryHandler)
		require.NoError(t, f.SetError(boom))
		stored, waitErr := f.Err(0)
		assert.NoError(t, waitErr)
		assert.Equal(t, boom, stored)
	})

	t.Run("succeeded returns nil", func(t *testing.T) {
		f := NewFuture[int]()
		require.NoError(t, f.SetResult(7))
		stored, waitErr := f.Err(0)
		assert.NoError(t, stored)
		assert.NoError(t, waitErr)
	})
}

func TestFutureCallbacksRunInRegistrationOrder(t *testing.T) {
	f := NewFuture[int]()

	var mu sync.Mutex
	var order []int
	record := func(i int) {
		mu.Lock()
		order = append(order, i)
		mu.Unlock()
	}

	// Callback identity is the func value's code pointer, so each callback
	// needs its own literal.
	require.NoError(t, f.AddDoneCallback(func(*Future[int]) { record(1) }))
	require.NoError(t, f.AddDoneCallback(func(*Future[int]) { record(2) }))
	require.NoError(t, f.AddDoneCallback(func(*Future[int]) { record(3) }))
	require.NoError(t, f.SetResult(0))

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestFutureCallbackAfterCompletionFiresImmediately(t *testing.T) {
	f := NewFuture[int]()
	require.NoError(t, f.SetResult(1))

	fired := false
	require.NoError(t, f.AddDoneCallback(func(cb *Future[int]) {
		// Reentrant reads must not deadlock: the callback runs outside the lock.
		assert.True(t, cb.Done())
		fired = true
	}))
	assert.True(t, fired, "callback must fire before AddDoneCallback returns")
}

func TestFutureDuplicateCallbackRegistration(t *testing.T) {
	f := NewFuture[int]()
	cb := func(*Future[int]) {}

	require.NoError(t, f.AddDoneCallback(cb))
	assert.True(t, IsInternal(f.AddDoneCallback(cb)))
}

func TestFutureRemoveDoneCallback(t *testing.T) {
	f := NewFuture[int]()
	fired := false
	cb := func(*Future[int]) { fired = true }

	require.NoError(t, f.AddDoneCallback(cb))
	require.NoError(t, f.RemoveDoneCallback(cb))
	assert.True(t, IsInternal(f.RemoveDoneCallback(cb)))

	require.NoError(t, f.SetResult(1))
	assert.False(t, fired, "removed callback must not fire")
}

func TestFutureCallbackPanicIsIsolated(t *testing.T) {
	buf := &bytes.Buffer{}
	f := NewFuture[int](WithFutureLogger[int](NewFmtLogger(buf)))

	ran := false
	require.NoError(t, f.AddDoneCallback(func(*Future[int]) { panic("bad callback") }))
	require.NoError(t, f.AddDoneCallback(func(*Future[int]) { ran = true }))

	require.NoError(t, f.SetResult(1))

	assert.True(t, ran, "later callbacks run despite the panic")
	assert.True(t, f.Done())
	assert.True(t, strings.Contains(buf.String(), "panicked"))
}

func TestFutureConcurrentCompletion(t *testing.T) {
	f := NewFuture[int]()

	const attempts = 16
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- f.SetResult(i)
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !IsInternal(err) {
			t.Fatalf("unexpected completion error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful completion, got %d", succeeded)
	}
	if !f.Done() {
		t.Fatal("future must be done after the race")
	}
}

func TestFutureConcurrentWaitersAllObserveCompletion(t *testing.T) {
	f := NewFuture[int]()

	const waiters = 12
	values := make(chan int, waiters)
	errs := make(chan error, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Result(5 * time.Second)
			values <- v
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, f.SetResult(99))
	wg.Wait()
	close(values)
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("waiter failed: %v", err)
		}
	}
	for v := range values {
		if v != 99 {
			t.Fatalf("waiter observed %d, want 99", v)
		}
	}
}
