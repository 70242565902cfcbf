// Package channel is the shared mailbox between the command dispatcher, the
// running search and the clause-sharing workers.
//
// A Channel holds the pending command queue, the outgoing ("learned") and
// incoming ("pulled") lemma ledgers, the identity of the current owner and
// the protocol flags. All of it is guarded by one mutex exposed through Lock
// and Unlock. Unless stated otherwise, methods must be called with the lock
// held. The stop flags and the learn flag are atomic and may be read or
// written without the lock.
//
// Waiting follows condition-variable rules: WaitForReset and
// WaitForEventOrStop release the lock while blocked and reacquire it before
// returning; Notify wakes every waiter, which rechecks its predicate.
package channel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usi-verification-and-security/ptplib/pkg/header"
	"github.com/usi-verification-and-security/ptplib/pkg/lemma"
)

// Message is one queued command: an ordered header and an opaque body.
type Message struct {
	Header header.Header
	Body   string
}

// NewMessage returns a Message.
func NewMessage(h header.Header, body string) Message {
	return Message{Header: h, Body: body}
}

// Command returns the header's command, or "" when it has none.
func (m Message) Command() string {
	return m.Header.Command()
}

// String renders the message in wire form: encoded header, then body.
func (m Message) String() string {
	return header.Encode(m.Header) + m.Body
}

// State is a summary of the channel flags, for logs and health reporting.
type State int

const (
	// Idle: nothing queued and no stop in progress.
	Idle State = iota
	// Dispatching: at least one command waits in the queue.
	Dispatching
	// Stopping: a stop was requested or the search reported it stopped.
	Stopping
	// Resetting: a reset was requested; every worker should wind down.
	Resetting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Stopping:
		return "stopping"
	case Resetting:
		return "resetting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Channel is safe for concurrent use under its own lock.
type Channel struct {
	mu sync.Mutex

	// wakeMu guards wake only, so Notify can be called with or without mu.
	wakeMu sync.Mutex
	wake   chan struct{}

	queue   []Message
	learned lemma.Ledger
	pulled  lemma.Ledger
	owner   header.Header

	shouldStop  atomic.Bool // dispatcher -> search
	shallStop   atomic.Bool // search -> dispatcher
	shouldLearn atomic.Bool
	// Read by the solver during partitioning, outside the lock.
	parallelMode atomic.Bool

	reset           bool
	clauseShareMode bool
}

// New returns an empty Channel with clause learning enabled.
func New() *Channel {
	c := &Channel{
		wake:    make(chan struct{}),
		learned: lemma.Ledger{},
		pulled:  lemma.Ledger{},
	}
	c.shouldLearn.Store(true)
	return c
}

// Lock acquires the channel lock.
func (c *Channel) Lock() { c.mu.Lock() }

// Unlock releases the channel lock.
func (c *Channel) Unlock() { c.mu.Unlock() }

// --- queue ---

func requireAddressed(h header.Header, op string) {
	if h.Node() == "" || h.Name() == "" {
		panic(fmt.Sprintf("channel: %s requires non-empty %q and %q, got %s", op, header.KeyNode, header.KeyName, h))
	}
}

// Push appends msg to the back of the queue. It does not notify.
func (c *Channel) Push(msg Message) {
	requireAddressed(msg.Header, "Push")
	c.queue = append(c.queue, msg)
}

// PushFront inserts msg at the front of the queue. It does not notify.
func (c *Channel) PushFront(msg Message) {
	requireAddressed(msg.Header, "PushFront")
	c.queue = append(c.queue, Message{})
	copy(c.queue[1:], c.queue)
	c.queue[0] = msg
}

// Enqueue queues msg with command priority: stop goes to the front, every
// other command to the back.
func (c *Channel) Enqueue(msg Message) {
	if msg.Command() == header.CommandStop {
		c.PushFront(msg)
		return
	}
	c.Push(msg)
}

// PopFront removes and returns the first message. It panics when the queue
// is empty.
func (c *Channel) PopFront() Message {
	if len(c.queue) == 0 {
		panic("channel: PopFront on empty queue")
	}
	msg := c.queue[0]
	c.queue[0] = Message{}
	c.queue = c.queue[1:]
	return msg
}

// Front returns the first message without removing it. It panics when the
// queue is empty.
func (c *Channel) Front() Message {
	if len(c.queue) == 0 {
		panic("channel: Front on empty queue")
	}
	return c.queue[0]
}

// FrontCommand returns the command of the first message, or "" when the
// queue is empty.
func (c *Channel) FrontCommand() string {
	if len(c.queue) == 0 {
		return ""
	}
	return c.queue[0].Command()
}

// IsEmpty reports whether the queue is empty.
func (c *Channel) IsEmpty() bool { return len(c.queue) == 0 }

// Size returns the queue length.
func (c *Channel) Size() int { return len(c.queue) }

// Messages returns a copy of the queue, front first.
func (c *Channel) Messages() []Message {
	return append([]Message(nil), c.queue...)
}

// ClearQueue drops every queued message.
func (c *Channel) ClearQueue() { c.queue = nil }

// --- current owner ---

// SetCurrentOwner makes a full copy of h the current owner. h must carry a
// node and a name.
func (c *Channel) SetCurrentOwner(h header.Header) {
	requireAddressed(h, "SetCurrentOwner")
	c.owner = h.Clone()
}

// SetCurrentOwnerKeys makes the keys subset of h the current owner. h must
// contain node, name and query.
func (c *Channel) SetCurrentOwnerKeys(h header.Header, keys []string) {
	if !h.Has(header.KeyNode) || !h.Has(header.KeyName) || !h.Has(header.KeyQuery) {
		panic(fmt.Sprintf("channel: SetCurrentOwnerKeys requires %q, %q and %q, got %s",
			header.KeyNode, header.KeyName, header.KeyQuery, h))
	}
	c.owner = h.Copy(keys)
}

// CurrentOwner returns a copy of the current owner.
func (c *Channel) CurrentOwner() header.Header { return c.owner.Clone() }

// CurrentOwnerKeys returns the keys subset of the current owner.
func (c *Channel) CurrentOwnerKeys(keys []string) header.Header { return c.owner.Copy(keys) }

// ClearCurrentOwner forgets the current owner.
func (c *Channel) ClearCurrentOwner() { c.owner.Clear() }

// --- ledgers ---

func (c *Channel) ownerNode(op string) string {
	node := c.owner.Node()
	if node == "" {
		panic("channel: " + op + " requires a current owner")
	}
	return node
}

// InsertLearned appends lemmas learned by the local search under the
// current owner's node. A current owner must be set.
func (c *Channel) InsertLearned(lemmas ...lemma.Lemma) {
	c.learned.Append(c.ownerNode("InsertLearned"), lemmas...)
}

// InsertPulled appends lemmas pulled from peers under the current owner's
// node. A current owner must be set.
func (c *Channel) InsertPulled(lemmas ...lemma.Lemma) {
	c.pulled.Append(c.ownerNode("InsertPulled"), lemmas...)
}

// DrainLearned takes the learned ledger, leaving an empty one behind.
func (c *Channel) DrainLearned() lemma.Ledger {
	out := c.learned
	c.learned = lemma.Ledger{}
	return out
}

// DrainPulled takes the pulled ledger, leaving an empty one behind.
func (c *Channel) DrainPulled() lemma.Ledger {
	out := c.pulled
	c.pulled = lemma.Ledger{}
	return out
}

// LearnedEmpty reports whether the learned ledger holds no owners.
func (c *Channel) LearnedEmpty() bool { return c.learned.Len() == 0 }

// LearnedCount returns the number of learned lemmas waiting to be pushed.
func (c *Channel) LearnedCount() int { return c.learned.Count() }

// PulledCount returns the number of pulled lemmas waiting to be injected.
func (c *Channel) PulledCount() int { return c.pulled.Count() }

// ClearLearned drops the learned ledger.
func (c *Channel) ClearLearned() { c.learned = lemma.Ledger{} }

// ClearPulled drops the pulled ledger.
func (c *Channel) ClearPulled() { c.pulled = lemma.Ledger{} }

// --- flags ---

// ShouldStop reports whether the dispatcher asked the search to stop.
// Safe without the lock.
func (c *Channel) ShouldStop() bool { return c.shouldStop.Load() }

// SetShouldStop asks the running search to stop.
func (c *Channel) SetShouldStop() { c.shouldStop.Store(true) }

// ClearShouldStop withdraws a stop request.
func (c *Channel) ClearShouldStop() { c.shouldStop.Store(false) }

// ShallStop reports whether the search announced it has stopped.
// Safe without the lock.
func (c *Channel) ShallStop() bool { return c.shallStop.Load() }

// SetShallStop announces that the search has stopped.
func (c *Channel) SetShallStop() { c.shallStop.Store(true) }

// ClearShallStop clears the stop announcement.
func (c *Channel) ClearShallStop() { c.shallStop.Store(false) }

// ShouldLearnClauses gates the search's clause production. Safe without
// the lock.
func (c *Channel) ShouldLearnClauses() bool { return c.shouldLearn.Load() }

// SetShouldLearnClauses lets the search produce clauses.
func (c *Channel) SetShouldLearnClauses() { c.shouldLearn.Store(true) }

// ClearShouldLearnClauses pauses clause production until the next push.
func (c *Channel) ClearShouldLearnClauses() { c.shouldLearn.Store(false) }

// ShouldReset reports whether a reset was requested.
func (c *Channel) ShouldReset() bool { return c.reset }

// SetReset requests a reset of every worker.
func (c *Channel) SetReset() { c.reset = true }

// ClearReset withdraws the reset request.
func (c *Channel) ClearReset() { c.reset = false }

// ClauseShareMode reports whether learned and pulled clauses are exchanged.
func (c *Channel) ClauseShareMode() bool { return c.clauseShareMode }

// SetClauseShareMode turns clause exchange on.
func (c *Channel) SetClauseShareMode() { c.clauseShareMode = true }

// ClearClauseShareMode turns clause exchange off.
func (c *Channel) ClearClauseShareMode() { c.clauseShareMode = false }

// ParallelMode reports whether the solver may split its search into
// partitions. Safe without the lock.
func (c *Channel) ParallelMode() bool { return c.parallelMode.Load() }

// SetParallelMode allows partitioning.
func (c *Channel) SetParallelMode() { c.parallelMode.Store(true) }

// ClearParallelMode forbids partitioning.
func (c *Channel) ClearParallelMode() { c.parallelMode.Store(false) }

// State derives the channel state from its flags and queue.
func (c *Channel) State() State {
	switch {
	case c.reset:
		return Resetting
	case c.shallStop.Load() || c.shouldStop.Load():
		return Stopping
	case len(c.queue) > 0:
		return Dispatching
	default:
		return Idle
	}
}

// --- waiting ---

// waiter returns the channel the next Notify will close.
func (c *Channel) waiter() <-chan struct{} {
	c.wakeMu.Lock()
	defer c.wakeMu.Unlock()
	return c.wake
}

// NotifyAll wakes every goroutine blocked in a wait. It may be called with
// or without the lock.
func (c *Channel) NotifyAll() {
	c.wakeMu.Lock()
	close(c.wake)
	c.wake = make(chan struct{})
	c.wakeMu.Unlock()
}

// WaitForReset blocks until a reset is requested or timeout elapses, and
// reports whether a reset is pending. The caller must hold the lock; it is
// released while blocked and held again on return.
func (c *Channel) WaitForReset(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		wake := c.waiter()
		if c.reset {
			return true
		}
		c.mu.Unlock()
		select {
		case <-wake:
			c.mu.Lock()
		case <-timer.C:
			c.mu.Lock()
			return c.reset
		}
	}
}

// WaitForEventOrStop blocks until a reset is requested, the search reports
// it stopped, or the queue is non-empty. The caller must hold the lock; it
// is released while blocked and held again on return.
func (c *Channel) WaitForEventOrStop() {
	for {
		wake := c.waiter()
		if c.reset || c.shallStop.Load() || len(c.queue) > 0 {
			return
		}
		c.mu.Unlock()
		<-wake
		c.mu.Lock()
	}
}

// Reset clears the ledgers, the owner, the queue and every protocol flag,
// including the clause-share, learn and parallel modes.
func (c *Channel) Reset() {
	c.ClearPulled()
	c.ClearLearned()
	c.ClearCurrentOwner()
	c.ClearQueue()
	c.ClearShouldStop()
	c.ClearShallStop()
	c.ClearShouldLearnClauses()
	c.ClearClauseShareMode()
	c.ClearParallelMode()
	c.ClearReset()
}
