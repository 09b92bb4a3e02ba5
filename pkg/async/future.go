package async

import (
	"context"
	"errors"
	"sync"
)

var ErrNotReady = errors.New("future not completed")

// Future is the result of an asynchronous operation. It completes once,
// with a value or an error; later completions are ignored.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	value     T
	err       error
	callbacks []func(T, error)
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future completed with value.
func Resolved[T any](value T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(value)
	return f
}

// Failed returns a future completed with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

// Resolve completes the future with value and reports whether it won.
func (f *Future[T]) Resolve(value T) bool {
	return f.complete(value, nil)
}

// Reject completes the future with err and reports whether it won.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(value T, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.value, f.err = value, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(value, err)
	}
	return true
}

// OnComplete registers fn to run on the completing goroutine. If the future
// is already complete, fn runs immediately on the caller's goroutine.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	fn(value, err)
}

// Done is closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome without blocking, or ErrNotReady.
func (f *Future[T]) Result() (T, error) {
	if !f.IsDone() {
		var zero T
		return zero, ErrNotReady
	}
	return f.value, f.err
}

// Await blocks until the future completes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then maps a successful result. Errors pass through unchanged.
func Then[T, R any](f *Future[T], fn func(T) (R, error)) *Future[R] {
	next := NewFuture[R]()
	f.OnComplete(func(value T, err error) {
		if err != nil {
			next.Reject(err)
			return
		}
		r, err := fn(value)
		if err != nil {
			next.Reject(err)
			return
		}
		next.Resolve(r)
	})
	return next
}
