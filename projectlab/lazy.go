package projectlab

import (
	"sync"

	"projectlab-go/errcode"
)

// lazy builds a value on first use and remembers the outcome. Concurrent
// callers wait for the first build instead of starting their own.
type lazy[T any] struct {
	mu     sync.Mutex
	done   bool
	v      T
	err    error
	builds int
}

// get returns the memoised result, running build at most once.
func (l *lazy[T]) get(build func() (T, error)) (T, error) {
	return l.load(build, false)
}

// getRetry is get, except that an errcode.Unavailable failure is not
// remembered and the next call builds again.
func (l *lazy[T]) getRetry(build func() (T, error)) (T, error) {
	return l.load(build, true)
}

func (l *lazy[T]) load(build func() (T, error), retryUnavailable bool) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.v, l.err
	}
	l.builds++
	v, err := build()
	if err != nil && retryUnavailable && errcode.Of(err) == errcode.Unavailable {
		var zero T
		return zero, err
	}
	l.v, l.err, l.done = v, err, true
	return v, err
}

// peek returns the value if a build succeeded.
func (l *lazy[T]) peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v, l.done && l.err == nil
}

// count reports how many times build ran.
func (l *lazy[T]) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.builds
}
