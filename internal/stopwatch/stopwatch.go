// Package stopwatch measures elapsed time across start/stop intervals.
package stopwatch

import (
	"sync"
	"time"
)

// Watch accumulates elapsed time while running. Stop pauses it; a later
// Start resumes from the accumulated value. The zero value is stopped and
// reads zero. A Watch is safe for concurrent use.
type Watch struct {
	mu          sync.Mutex
	started     bool
	paused      bool
	reference   time.Time
	accumulated time.Duration

	now func() time.Time
}

// New returns a Watch, running if start is true.
func New(start bool) *Watch {
	w := &Watch{}
	if start {
		w.Start()
	}
	return w
}

func (w *Watch) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

// Start starts a stopped watch from zero, or resumes a paused one.
func (w *Watch) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case !w.started:
		w.started = true
		w.paused = false
		w.accumulated = 0
		w.reference = w.clock()
	case w.paused:
		w.reference = w.clock()
		w.paused = false
	}
}

// Stop pauses a running watch.
func (w *Watch) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started && !w.paused {
		w.accumulated += w.clock().Sub(w.reference)
		w.paused = true
	}
}

// Reset returns the watch to the stopped, zero state.
func (w *Watch) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = false
	w.paused = false
	w.accumulated = 0
}

// Running reports whether the watch is started and not paused.
func (w *Watch) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && !w.paused
}

// Elapsed returns the accumulated time, including the current interval if
// running.
func (w *Watch) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case !w.started:
		return 0
	case w.paused:
		return w.accumulated
	default:
		return w.accumulated + w.clock().Sub(w.reference)
	}
}

// Measure starts timing and returns a function that logs label with the
// elapsed time through logf. Typical use:
//
//	defer stopwatch.Measure("[Communicator] partition", log.Printf)()
func Measure(label string, logf func(format string, args ...any)) func() {
	start := time.Now()
	return func() {
		logf("%s: %s", label, time.Since(start))
	}
}
