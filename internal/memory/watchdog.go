// Package memory measures process memory and enforces a hard ceiling.
package memory

import (
	"log"
	"os"
	"sync/atomic"
)

// ExitCode is the process exit status used when the ceiling is exceeded.
const ExitCode = 1

// Watchdog compares the process memory against a limit. Exceeding the limit
// is fatal: Check logs the measurement and calls the exit hook.
type Watchdog struct {
	limit uint64
	gauge func() (uint64, error)
	exit  func(code int)
	last  atomic.Uint64
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithGauge replaces CurrentBytes as the memory source.
func WithGauge(gauge func() (uint64, error)) Option {
	return func(w *Watchdog) { w.gauge = gauge }
}

// WithExit replaces os.Exit as the action taken when the limit is exceeded.
func WithExit(exit func(code int)) Option {
	return func(w *Watchdog) { w.exit = exit }
}

// NewWatchdog returns a Watchdog for limitMB megabytes. A zero limit
// disables it.
func NewWatchdog(limitMB uint64, opts ...Option) *Watchdog {
	w := &Watchdog{
		limit: limitMB * 1024 * 1024,
		gauge: CurrentBytes,
		exit:  os.Exit,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enabled reports whether a limit is set.
func (w *Watchdog) Enabled() bool { return w.limit > 0 }

// LimitBytes returns the ceiling in bytes.
func (w *Watchdog) LimitBytes() uint64 { return w.limit }

// Last returns the most recent measurement.
func (w *Watchdog) Last() uint64 { return w.last.Load() }

// Check measures memory once and returns the measurement. If it exceeds
// the limit the exit hook is called; Check only returns in that case when
// the hook does.
func (w *Watchdog) Check() (uint64, bool) {
	if !w.Enabled() {
		return 0, false
	}
	used, err := w.gauge()
	if err != nil {
		log.Printf("[MemoryCheck] Failed to read memory usage: %v", err)
		return w.last.Load(), false
	}
	w.last.Store(used)
	if used > w.limit {
		log.Printf("[MemoryCheck] Max memory reached: %d bytes (limit %d)", used, w.limit)
		w.exit(ExitCode)
		return used, true
	}
	return used, false
}
