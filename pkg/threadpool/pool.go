// Package threadpool provides a fixed-size pool of worker goroutines that
// execute named tasks in FIFO order.
//
// Workers poll the task queue. When the queue is empty (or the pool is
// paused) a worker sleeps for the configured sleep duration before polling
// again; a zero duration yields the processor instead. The outstanding-task
// counter is incremented when a task is pushed and decremented after it
// finishes, so WaitForTasks observes every task from the moment it is queued.
package threadpool

import (
	"errors"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSleepDuration is the idle poll interval used when none is configured.
const DefaultSleepDuration = time.Millisecond

// Names of the long-running and per-command tasks pushed by the listener.
const (
	TaskMemoryCheck   = "MEMORYCHECK"
	TaskCommunication = "COMMUNICATION"
	TaskClausePush    = "CLAUSEPUSH"
	TaskClausePull    = "CLAUSEPULL"
	TaskSolver        = "SOLVER"
	TaskClauseLearn   = "CLAUSELEARN"
)

// ErrPoolStopped is returned for tasks offered to a pool after Shutdown.
var ErrPoolStopped = errors.New("thread pool stopped")

type task struct {
	name string
	fn   func()
}

// Pool is a fixed-size worker pool.
type Pool struct {
	name string

	queueMu sync.Mutex
	queue   []task

	// lifecycleMu serialises Resize and Shutdown.
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup
	threads     atomic.Int64

	total   atomic.Int64
	running atomic.Bool
	paused  atomic.Bool
	stopped atomic.Bool
	sleep   atomic.Int64 // nanoseconds

	logf func(format string, args ...any)
}

// Option configures a Pool.
type Option func(*Pool)

// WithSleepDuration sets the idle poll interval. Zero means yield.
func WithSleepDuration(d time.Duration) Option {
	return func(p *Pool) { p.sleep.Store(int64(d)) }
}

// WithTrace logs task start and end through logf.
func WithTrace(logf func(format string, args ...any)) Option {
	return func(p *Pool) { p.logf = logf }
}

// DefaultThreadCount is one less than the number of CPUs, and at least one.
func DefaultThreadCount() int {
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}

// New creates a pool with the given name and number of workers and starts
// the workers immediately.
//
// Parameters:
//   - name: used in trace and error messages
//   - threads: number of workers; zero or less means DefaultThreadCount()
//
// Returns a running Pool. Call Shutdown to drain and stop it.
func New(name string, threads int, opts ...Option) *Pool {
	p := &Pool{name: name}
	p.sleep.Store(int64(DefaultSleepDuration))
	for _, opt := range opts {
		opt(p)
	}
	if threads <= 0 {
		threads = DefaultThreadCount()
	}
	p.running.Store(true)
	p.createThreads(threads)
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// PushTask queues fn under name without a way to observe its result.
// A panic inside fn is recovered and logged; the worker survives.
//
// Returns ErrPoolStopped if the pool has been shut down. A task accepted
// concurrently with Shutdown still runs before Shutdown returns.
func (p *Pool) PushTask(name string, fn func()) error {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if p.stopped.Load() {
		return ErrPoolStopped
	}
	p.total.Add(1)
	p.queue = append(p.queue, task{name: name, fn: fn})
	return nil
}

// WaitForTasks blocks until every queued and running task has finished.
// While the pool is paused it only waits for the running tasks, since the
// queued ones will not start.
func (p *Pool) WaitForTasks() {
	for {
		if p.paused.Load() {
			if p.TasksRunning() == 0 {
				return
			}
		} else if p.total.Load() == 0 {
			return
		}
		p.sleepOrYield()
	}
}

// Pause stops workers from taking new tasks. Running tasks continue.
func (p *Pool) Pause() { p.paused.Store(true) }

// Resume lets workers take tasks again.
func (p *Pool) Resume() { p.paused.Store(false) }

// Paused reports whether the pool is paused.
func (p *Pool) Paused() bool { return p.paused.Load() }

// SleepDuration returns the idle poll interval.
func (p *Pool) SleepDuration() time.Duration { return time.Duration(p.sleep.Load()) }

// Resize waits for the running tasks to finish, stops every worker and
// starts threads new ones. Queued tasks are kept and picked up by the new
// workers. The paused state is preserved.
func (p *Pool) Resize(threads int) {
	if threads <= 0 {
		threads = DefaultThreadCount()
	}
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	wasPaused := p.paused.Load()
	p.paused.Store(true)
	p.WaitForTasks()
	p.running.Store(false)
	p.wg.Wait()

	p.paused.Store(wasPaused)
	p.running.Store(true)
	p.createThreads(threads)
}

// Shutdown drains the pool (every queued task runs to completion), then
// stops and joins the workers. Tasks pushed afterwards are rejected with
// ErrPoolStopped. Calling Shutdown more than once is safe.
//
// Shutdown on a paused pool with queued tasks blocks until it is resumed.
func (p *Pool) Shutdown() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	// stopped flips under queueMu so every push lands either before the
	// drain below or is rejected.
	p.queueMu.Lock()
	already := p.stopped.Swap(true)
	p.queueMu.Unlock()
	if already {
		return
	}
	for {
		p.WaitForTasks()
		if p.total.Load() == 0 {
			break
		}
		p.sleepOrYield()
	}
	p.running.Store(false)
	p.wg.Wait()
	p.threads.Store(0)
	if p.logf != nil {
		p.logf("[ThreadPool] %s destroyed", p.name)
	}
}

// TasksQueued returns the number of tasks waiting for a worker.
func (p *Pool) TasksQueued() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}

// TasksRunning returns the number of tasks currently executing.
func (p *Pool) TasksRunning() int {
	return int(p.total.Load()) - p.TasksQueued()
}

// TasksTotal returns the number of queued plus running tasks.
func (p *Pool) TasksTotal() int {
	return int(p.total.Load())
}

// ThreadCount returns the number of workers.
func (p *Pool) ThreadCount() int {
	return int(p.threads.Load())
}

// ParallelizeLoop splits the closed range [first, last] into blocks, runs
// loop(i) for every index on the pool and blocks until all blocks finish.
// blocks <= 0 means one block per worker. The bounds may be given in either
// order.
func (p *Pool) ParallelizeLoop(first, last int, loop func(i int), blocks int) error {
	if blocks <= 0 {
		blocks = p.ThreadCount()
	}
	if last < first {
		first, last = last, first
	}
	size := last - first + 1
	blockSize := size / blocks
	if blockSize == 0 {
		blockSize = 1
		blocks = size
	}

	var wg sync.WaitGroup
	for b := 0; b < blocks; b++ {
		start := first + b*blockSize
		end := start + blockSize - 1
		if b == blocks-1 {
			end = last
		}
		wg.Add(1)
		err := p.PushTask("", func() {
			defer wg.Done()
			for i := start; i <= end; i++ {
				loop(i)
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

func (p *Pool) createThreads(n int) {
	p.threads.Store(int64(n))
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) pop() (task, bool) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if len(p.queue) == 0 {
		return task{}, false
	}
	t := p.queue[0]
	p.queue[0] = task{}
	p.queue = p.queue[1:]
	return t, true
}

func (p *Pool) sleepOrYield() {
	if d := time.Duration(p.sleep.Load()); d > 0 {
		time.Sleep(d)
		return
	}
	runtime.Gosched()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for p.running.Load() {
		if p.paused.Load() {
			p.sleepOrYield()
			continue
		}
		t, ok := p.pop()
		if !ok {
			p.sleepOrYield()
			continue
		}
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	defer p.total.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ThreadPool] %s: task %q panicked: %v", p.name, t.name, r)
		}
	}()
	if p.logf != nil {
		p.logf("[ThreadPool] %s: task started: %s", p.name, t.name)
	}
	t.fn()
	if p.logf != nil {
		p.logf("[ThreadPool] %s: task ended: %s, remaining tasks: %d", p.name, t.name, p.total.Load()-1)
	}
}
