package threadpool

import (
	"fmt"
	"runtime/debug"
	"time"
)

// PanicError carries a panic recovered from a submitted task.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %q panicked: %v", e.Task, e.Value)
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Wait blocks until the task has finished.
func (f *Future[T]) Wait() { <-f.done }

// WaitFor blocks up to d and reports whether the task has finished.
func (f *Future[T]) WaitFor(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-f.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Ready reports whether the task has finished, without blocking.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the task has finished and returns its result. A task
// that panicked yields a *PanicError.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// Submit queues fn on p and returns a Future for its result.
// If the pool is stopped the Future is already resolved with ErrPoolStopped.
func Submit[T any](p *Pool, name string, fn func() T) *Future[T] {
	return SubmitErr(p, name, func() (T, error) { return fn(), nil })
}

// SubmitErr is Submit for functions that can fail.
func SubmitErr[T any](p *Pool, name string, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	err := p.PushTask(name, func() {
		var (
			v   T
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.resolve(zero, &PanicError{Task: name, Value: r, Stack: debug.Stack()})
				return
			}
			f.resolve(v, err)
		}()
		v, err = fn()
	})
	if err != nil {
		var zero T
		f.resolve(zero, fmt.Errorf("submit %q to %s: %w", name, p.name, err))
	}
	return f
}
