// Package communicator drives the solve lifecycle: it is the single consumer
// of a Channel's command queue and the only goroutine that starts or joins a
// search.
package communicator

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/usi-verification-and-security/ptplib/internal/solver"
	"github.com/usi-verification-and-security/ptplib/pkg/channel"
	"github.com/usi-verification-and-security/ptplib/pkg/header"
	"github.com/usi-verification-and-security/ptplib/pkg/threadpool"
)

// Hooks observe the communicator. Every field is optional. Hooks are called
// from the dispatching goroutine without the channel lock held.
type Hooks struct {
	// OnCommand is called for every dispatched command.
	OnCommand func(command string)
	// OnResult is called whenever a search outcome is recorded. err is set
	// when the search failed, in which case result is UNKNOWN.
	OnResult func(owner header.Header, result solver.Result, err error)
}

// Communicator dispatches queued commands to a Solver, running searches on
// a thread pool.
//
// At most one search is in flight at any time. Before any command is
// executed an outstanding search is asked to stop (ShouldStop) and joined.
// The channel lock is released before every call into the pool or the
// solver.
type Communicator struct {
	ch     *channel.Channel
	solver solver.Solver
	pool   *threadpool.Pool
	hooks  Hooks

	running   atomic.Bool
	searching atomic.Bool

	// owned by the dispatching goroutine
	future      *threadpool.Future[solver.Result]
	searchInput string
	searchOwner header.Header

	mu     sync.Mutex
	result solver.Result
	err    error
}

// New creates a Communicator.
//
// Parameters:
//   - ch: the channel to consume
//   - s: the solver that executes commands
//   - pool: the pool searches are submitted to
//   - hooks: optional observers
func New(ch *channel.Channel, s solver.Solver, pool *threadpool.Pool, hooks Hooks) *Communicator {
	return &Communicator{
		ch:     ch,
		solver: s,
		pool:   pool,
		hooks:  hooks,
	}
}

// Result returns the search outcome recorded during the current or most
// recent Run and, if the search failed, its error. Until a search finishes
// it is Undefined.
func (c *Communicator) Result() (solver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.err
}

// Searching reports whether a search has been started and not yet joined.
func (c *Communicator) Searching() bool { return c.searching.Load() }

// Run consumes the channel until a STOP command is executed (or found at
// the head of the queue after another command) or a reset is requested.
// An outstanding search is joined before Run returns.
//
// Run must not be called concurrently with itself; doing so panics.
func (c *Communicator) Run() {
	if !c.running.CompareAndSwap(false, true) {
		panic("communicator: Run called while another Run is active")
	}
	defer c.running.Store(false)

	c.mu.Lock()
	c.result, c.err = solver.Undefined, nil
	c.mu.Unlock()

	for {
		c.ch.Lock()
		c.ch.WaitForEventOrStop()

		switch {
		case c.ch.ShallStop():
			c.ch.ClearShallStop()
			c.ch.Unlock()
			if c.future != nil {
				c.record(c.join())
			}

		case !c.ch.IsEmpty():
			msg := c.ch.PopFront()
			c.ch.Unlock()
			if !c.dispatch(msg) {
				return
			}

		case c.ch.ShouldReset():
			c.ch.Unlock()
			if c.future != nil {
				c.ch.SetShouldStop()
				if result, err := c.join(); decided(result, err) {
					c.record(result, err)
				}
			}
			log.Printf("[Communicator] Reset requested, exiting")
			return

		default:
			c.ch.Unlock()
			panic("communicator: spurious wakeup")
		}
	}
}

// dispatch executes one command and reports whether the loop continues.
func (c *Communicator) dispatch(msg channel.Message) bool {
	cmd := msg.Command()
	if cmd == "" {
		log.Printf("[Communicator] Dropping message without command: %s", msg.Header)
		return true
	}
	log.Printf("[Communicator] Updating the channel with %s and waiting", cmd)
	if c.hooks.OnCommand != nil {
		c.hooks.OnCommand(cmd)
	}

	interrupted := false
	if c.future != nil {
		c.ch.SetShouldStop()
		if result, err := c.join(); decided(result, err) {
			c.record(result, err)
		} else {
			interrupted = true
		}
	}

	if cmd == header.CommandStop {
		log.Printf("[Communicator] Stop received, exiting")
		return false
	}

	input, updateOwner := c.execute(msg, interrupted)

	c.ch.Lock()
	stopNext := c.ch.FrontCommand() == header.CommandStop
	if updateOwner {
		c.ch.ClearCurrentOwner()
		c.ch.SetCurrentOwner(msg.Header.Copy(header.OwnerKeys))
	}
	owner := c.ch.CurrentOwner()
	c.ch.Unlock()

	if stopNext {
		log.Printf("[Communicator] Stop is next in queue, not resuming")
		return false
	}
	if input != "" {
		c.startSearch(input, owner)
	}
	return true
}

// execute runs cmd against the solver and returns the search input to
// resume with ("" for none) and whether the current owner changes.
func (c *Communicator) execute(msg channel.Message, interrupted bool) (string, bool) {
	resume := ""
	if interrupted {
		resume = c.searchInput
	}

	switch cmd := msg.Command(); cmd {
	case header.CommandSolve:
		c.solver.InitialiseLogic()
		return msg.Body + msg.Header.Query(), true

	case header.CommandIncremental:
		return msg.Body + msg.Header.Query(), true

	case header.CommandPartition:
		if err := c.solver.DoPartition(msg.Header.Node(), msg.Header.Value(header.KeyPartitions)); err != nil {
			log.Printf("[Communicator] Partition at %s failed: %v", msg.Header.Node(), err)
		}
		return resume, false

	case header.CommandInject:
		c.ch.Lock()
		pulled := c.ch.DrainPulled()
		c.ch.Unlock()
		if err := c.solver.InjectClauses(pulled); err != nil {
			log.Printf("[Communicator] Clause injection failed: %v", err)
		}
		return resume, false

	default:
		log.Printf("[Communicator] Ignoring unsupported command %q", cmd)
		return resume, false
	}
}

func (c *Communicator) startSearch(input string, owner header.Header) {
	c.ch.ClearShouldStop()
	c.ch.ClearShallStop()
	c.searchInput = input
	c.searchOwner = owner
	c.searching.Store(true)

	s, ch := c.solver, c.ch
	c.future = threadpool.SubmitErr(c.pool, threadpool.TaskSolver, func() (result solver.Result, err error) {
		ok := false
		// A failed search never decides, so wake the dispatcher to collect it.
		defer func() {
			if !ok {
				ch.Lock()
				ch.SetShallStop()
				ch.NotifyAll()
				ch.Unlock()
			}
		}()
		result, err = s.Search(input)
		ok = err == nil
		return result, err
	})
}

// join waits for the outstanding search and returns its outcome.
func (c *Communicator) join() (solver.Result, error) {
	result, err := c.future.Get()
	c.future = nil
	c.searching.Store(false)
	return result, err
}

// decided reports whether a joined search produced something to record:
// a decision or a failure. A search that merely stopped did not.
func decided(result solver.Result, err error) bool {
	return err != nil || result == solver.SAT || result == solver.UNSAT
}

func (c *Communicator) record(result solver.Result, err error) {
	if err != nil {
		log.Printf("[Communicator] Search failed: %v", err)
		result = solver.UNKNOWN
	} else {
		log.Printf("[Communicator] Search finished with %s", result)
	}

	c.mu.Lock()
	c.result = result
	c.err = err
	c.mu.Unlock()

	if c.hooks.OnResult != nil {
		c.hooks.OnResult(c.searchOwner.Clone(), result, err)
	}
}
