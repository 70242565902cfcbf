// Package listener hosts one solving session: it owns the channel, the
// communicator and the long-running workers that feed it, share lemmas
// and watch memory.
package listener

import (
	"context"
	"log"
	"time"

	"github.com/fatih/color"

	"github.com/usi-verification-and-security/ptplib/internal/communicator"
	"github.com/usi-verification-and-security/ptplib/internal/config"
	"github.com/usi-verification-and-security/ptplib/internal/memory"
	"github.com/usi-verification-and-security/ptplib/internal/metrics"
	"github.com/usi-verification-and-security/ptplib/internal/printer"
	"github.com/usi-verification-and-security/ptplib/internal/solver"
	"github.com/usi-verification-and-security/ptplib/internal/stopwatch"
	"github.com/usi-verification-and-security/ptplib/pkg/channel"
	"github.com/usi-verification-and-security/ptplib/pkg/header"
	"github.com/usi-verification-and-security/ptplib/pkg/lemma"
	"github.com/usi-verification-and-security/ptplib/pkg/threadpool"
)

// workerCount is the number of long-running listener tasks.
const workerCount = 4

const exchangeTimeout = 10 * time.Second

// SolverFactory builds the solver bound to the listener's channel.
type SolverFactory func(ch *channel.Channel) solver.Solver

type logf func(format string, args ...any)

// Listener wires a Channel, a Communicator and the clause-sharing workers.
type Listener struct {
	cfg          *config.Config
	ch           *channel.Channel
	solver       solver.Solver
	communicator *communicator.Communicator
	pool         *threadpool.Pool
	searchPool   *threadpool.Pool
	exchange     Exchange
	watchdog     *memory.Watchdog
	metrics      *metrics.Metrics
	parallel     bool

	pushInterval time.Duration
	pullInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	logMain, logPush, logPull, logMemory logf
}

// Option configures a Listener.
type Option func(*Listener)

// WithMetrics records dispatcher, pool and exchange metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// WithWatchdog replaces the watchdog built from the memory configuration.
func WithWatchdog(w *memory.Watchdog) Option {
	return func(l *Listener) { l.watchdog = w }
}

// WithParallelMode lets the solver partition its search in every session.
func WithParallelMode() Option {
	return func(l *Listener) { l.parallel = true }
}

// WithStream routes worker logs through s, one color per worker.
func WithStream(s *printer.Stream) Option {
	return func(l *Listener) {
		l.logMain = s.Logf(color.FgRed)
		l.logPush = s.Logf(color.FgBlue)
		l.logPull = s.Logf(color.FgMagenta)
		l.logMemory = s.Logf(color.FgYellow)
	}
}

// WithWaitingDuration fixes the worker periods from one base duration, the
// way the demo does: push every d/10, pull every d/5.
func WithWaitingDuration(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.pushInterval = d / 10
			l.pullInterval = d / 5
		}
	}
}

// New creates a Listener. The configuration must be validated.
//
// Parameters:
//   - cfg: pool, listener and memory settings
//   - newSolver: builds the solver for the listener's channel
//   - exchange: where lemmas are pushed to and pulled from
//   - opts: optional metrics, logging and timing overrides
func New(cfg *config.Config, newSolver SolverFactory, exchange Exchange, opts ...Option) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		cfg:          cfg,
		ch:           channel.New(),
		exchange:     exchange,
		pushInterval: cfg.Listener.PushInterval.Pick(cfg.Listener.Seed),
		pullInterval: cfg.Listener.PullInterval.Pick(cfg.Listener.Seed),
		ctx:          ctx,
		cancel:       cancel,
		logMain:      log.Printf,
		logPush:      log.Printf,
		logPull:      log.Printf,
		logMemory:    log.Printf,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.watchdog == nil {
		l.watchdog = memory.NewWatchdog(cfg.MemoryLimitMB())
	}

	l.solver = newSolver(l.ch)
	l.pool = threadpool.New("listener", workerCount)
	l.searchPool = threadpool.New("search", cfg.Pool.Workers, threadpool.WithSleepDuration(cfg.SleepDuration()))
	l.communicator = communicator.New(l.ch, l.solver, l.searchPool, l.hooks())

	if l.metrics != nil {
		l.registerMetrics()
	}
	return l
}

func (l *Listener) hooks() communicator.Hooks {
	reporter, _ := l.exchange.(Reporter)
	return communicator.Hooks{
		OnCommand: func(command string) {
			if l.metrics != nil {
				l.metrics.CommandDispatched(command)
			}
		},
		OnResult: func(owner header.Header, result solver.Result, err error) {
			if l.metrics != nil {
				l.metrics.SearchFinished(result, err)
			}
			if reporter == nil || owner.Empty() {
				return
			}
			ctx, cancel := context.WithTimeout(l.ctx, exchangeTimeout)
			defer cancel()
			if err := reporter.ReportResult(ctx, owner, result.String()); err != nil {
				l.logMain("[Listener] Failed to report %s for %s: %v", result, owner, err)
				if l.metrics != nil {
					l.metrics.ExchangeFailed("report")
				}
			}
		},
	}
}

func (l *Listener) registerMetrics() {
	l.metrics.RegisterPool(l.pool)
	l.metrics.RegisterPool(l.searchPool)
	l.metrics.RegisterGauge("channel_queue_length", "Commands waiting in the channel", func() float64 {
		l.ch.Lock()
		defer l.ch.Unlock()
		return float64(l.ch.Size())
	})
	l.metrics.RegisterGauge("channel_learned_lemmas", "Learned lemmas waiting to be pushed", func() float64 {
		l.ch.Lock()
		defer l.ch.Unlock()
		return float64(l.ch.LearnedCount())
	})
	l.metrics.RegisterGauge("search_active", "1 while a search is in flight", func() float64 {
		if l.communicator.Searching() {
			return 1
		}
		return 0
	})
	l.metrics.RegisterGauge("memory_bytes", "Last memory measurement of the watchdog", func() float64 {
		return float64(l.watchdog.Last())
	})
}

// Channel returns the listener's channel.
func (l *Listener) Channel() *channel.Channel { return l.ch }

// Communicator returns the listener's communicator.
func (l *Listener) Communicator() *communicator.Communicator { return l.communicator }

// Pool returns the pool running the long-running workers.
func (l *Listener) Pool() *threadpool.Pool { return l.pool }

// State returns the channel state, taking the channel lock.
func (l *Listener) State() channel.State {
	l.ch.Lock()
	defer l.ch.Unlock()
	return l.ch.State()
}

// Start pushes the four long-running workers into the listener pool. A
// reset clears every mode, so Start sets them again: clause sharing and
// learning when configured, and parallel mode when requested.
func (l *Listener) Start() error {
	l.ch.Lock()
	if l.cfg.ClauseSharingEnabled() {
		l.ch.SetClauseShareMode()
		l.ch.SetShouldLearnClauses()
	} else {
		l.ch.ClearClauseShareMode()
		l.ch.ClearShouldLearnClauses()
	}
	if l.parallel {
		l.ch.SetParallelMode()
	}
	l.ch.Unlock()

	workers := []struct {
		name string
		fn   func()
	}{
		{threadpool.TaskMemoryCheck, l.memoryChecker},
		{threadpool.TaskCommunication, l.communicator.Run},
		{threadpool.TaskClausePush, l.pushClauseWorker},
		{threadpool.TaskClausePull, l.pullClauseWorker},
	}
	for _, w := range workers {
		if err := l.pool.PushTask(w.name, w.fn); err != nil {
			return err
		}
	}
	return nil
}

// QueueEvent queues msg (a STOP jumps to the front) and wakes the workers.
func (l *Listener) QueueEvent(msg channel.Message) {
	l.ch.Lock()
	defer l.ch.Unlock()
	l.queueLocked(msg)
}

func (l *Listener) queueLocked(msg channel.Message) {
	l.ch.Enqueue(msg)
	l.ch.NotifyAll()
}

// Feed queues messages from src until a STOP is queued, src is closed or
// ctx is done. Queuing a STOP discards every command still pending. It
// reports whether a STOP was queued.
func (l *Listener) Feed(ctx context.Context, src <-chan channel.Message) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-src:
			if !ok {
				return false
			}
			if msg.Command() == "" {
				l.logMain("[Listener] Dropping message without command: %s", msg.Header)
				continue
			}
			l.logMain("[Listener] %s is received and notified", msg.Command())

			stop := msg.Command() == header.CommandStop
			l.ch.Lock()
			if stop {
				l.ch.ClearQueue()
			}
			l.queueLocked(msg)
			l.ch.Unlock()
			if stop {
				return true
			}
		}
	}
}

// NotifyReset asks every worker to wind down.
func (l *Listener) NotifyReset() {
	l.ch.Lock()
	defer l.ch.Unlock()
	l.ch.SetReset()
	l.ch.NotifyAll()
}

// Shutdown ends the current session: it requests a reset, waits for the
// long-running workers to return and resets the channel. The listener can
// be started again afterwards.
func (l *Listener) Shutdown() {
	l.NotifyReset()
	l.pool.WaitForTasks()
	l.ch.Lock()
	l.ch.Reset()
	l.ch.Unlock()
}

// Close shuts the listener down for good, stopping both pools.
func (l *Listener) Close() {
	l.Shutdown()
	l.cancel()
	l.pool.Shutdown()
	l.searchPool.Shutdown()
}

func (l *Listener) memoryChecker() {
	if !l.watchdog.Enabled() {
		return
	}
	for {
		used, exceeded := l.watchdog.Check()
		if exceeded {
			return
		}
		l.logMemory("[MemoryCheck] %d bytes", used)

		l.ch.Lock()
		reset := l.ch.WaitForReset(l.cfg.Memory.CheckInterval)
		l.ch.Unlock()
		if reset {
			return
		}
	}
}

func (l *Listener) pushClauseWorker() {
	l.logPush("[ClausePush] Timeout: %s", l.pushInterval)
	for {
		done := stopwatch.Measure("[ClausePush] Measured wait and write duration", l.logPush)

		l.ch.Lock()
		if l.ch.WaitForReset(l.pushInterval) {
			l.ch.Unlock()
			return
		}
		if !l.ch.ClauseShareMode() || l.ch.LearnedEmpty() {
			l.ch.Unlock()
			l.logPush("[ClausePush] Channel empty!")
			done()
			continue
		}
		learned := l.ch.DrainLearned()
		owner := l.ch.CurrentOwner()
		l.ch.Unlock()

		if !owner.Empty() {
			l.writeLemmas(owner, learned)
		}
		l.ch.SetShouldLearnClauses()
		done()
	}
}

func (l *Listener) writeLemmas(owner header.Header, learned lemma.Ledger) {
	ctx, cancel := context.WithTimeout(l.ctx, exchangeTimeout)
	defer cancel()
	n, err := l.exchange.WriteLemmas(ctx, owner, learned)
	if err != nil {
		l.logPush("[ClausePush] Failed to push %d clauses: %v", learned.Count(), err)
		if l.metrics != nil {
			l.metrics.ExchangeFailed("write")
		}
		return
	}
	l.logPush("[ClausePush] Pushed learned clauses, size: %d", n)
	if l.metrics != nil {
		l.metrics.LemmasPublished(n)
	}
}

func (l *Listener) pullClauseWorker() {
	l.logPull("[ClausePull] Timeout: %s", l.pullInterval)
	for {
		done := stopwatch.Measure("[ClausePull] Measured wait and read duration", l.logPull)

		l.ch.Lock()
		if l.ch.WaitForReset(l.pullInterval) {
			l.ch.Unlock()
			return
		}
		owner := l.ch.CurrentOwner()
		share := l.ch.ClauseShareMode()
		l.ch.Unlock()

		if !share || owner.Empty() {
			done()
			continue
		}

		lemmas := l.readLemmas(owner)
		if len(lemmas) > 0 {
			l.ch.Lock()
			if l.ch.ShouldReset() {
				l.ch.Unlock()
				return
			}
			// The owner may have moved while the lock was released.
			if current := l.ch.CurrentOwner(); current.Node() != owner.Node() || current.Name() != owner.Name() {
				l.ch.Unlock()
				l.logPull("[ClausePull] Owner changed to %s, dropping %d clauses", current, len(lemmas))
				done()
				continue
			}
			l.ch.InsertPulled(lemmas...)
			inject := owner.Clone()
			inject.Set(header.KeyCommand, header.CommandInject)
			l.queueLocked(channel.NewMessage(inject, ""))
			l.ch.Unlock()
			l.logPull("[ClausePull] %d pulled clauses queued for %s", len(lemmas), header.CommandInject)
		}
		done()
	}
}

func (l *Listener) readLemmas(owner header.Header) []lemma.Lemma {
	ctx, cancel := context.WithTimeout(l.ctx, exchangeTimeout)
	defer cancel()
	lemmas, err := l.exchange.ReadLemmas(ctx, owner)
	if err != nil {
		l.logPull("[ClausePull] Failed to pull clauses: %v", err)
		if l.metrics != nil {
			l.metrics.ExchangeFailed("read")
		}
		return nil
	}
	if l.metrics != nil {
		l.metrics.LemmasPulled(len(lemmas))
	}
	return lemmas
}
