package solver

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/usi-verification-and-security/ptplib/internal/stopwatch"
	"github.com/usi-verification-and-security/ptplib/pkg/channel"
	"github.com/usi-verification-and-security/ptplib/pkg/lemma"
)

// Stub is a search engine that pretends to work. Each round it sleeps, then
// either learns a batch of clauses into the channel or decides SAT/UNSAT at
// random. It never decides while it is still learning.
type Stub struct {
	ch    *channel.Channel
	watch *stopwatch.Watch

	mu  sync.Mutex
	rng *rand.Rand

	// waiting fixes the round length and the learn batch size; zero picks
	// both at random per round.
	waiting time.Duration
	logf    func(format string, args ...any)
}

// StubOption configures a Stub.
type StubOption func(*Stub)

// WithWaitingDuration makes every round take d and learn a fixed batch.
func WithWaitingDuration(d time.Duration) StubOption {
	return func(s *Stub) { s.waiting = d }
}

// WithSeed seeds the stub's random source.
func WithSeed(seed int64) StubOption {
	return func(s *Stub) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithLogf routes the stub's trace lines through logf.
func WithLogf(logf func(format string, args ...any)) StubOption {
	return func(s *Stub) { s.logf = logf }
}

// NewStub returns a Stub that reports into ch.
func NewStub(ch *channel.Channel, opts ...StubOption) *Stub {
	s := &Stub{
		ch:    ch,
		watch: stopwatch.New(false),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		logf:  log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stub) intn(lo, hi int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Intn(hi-lo+1)
}

func (s *Stub) roundDuration() time.Duration {
	if s.waiting > 0 {
		return s.waiting
	}
	return time.Duration(s.intn(1000, 2000)) * time.Millisecond
}

func (s *Stub) batchSize() int {
	if s.waiting > 0 {
		return 100
	}
	return s.intn(0, 2000)
}

// InitialiseLogic implements Solver.
func (s *Stub) InitialiseLogic() {
	s.watch.Start()
	s.logf("[Communicator] Initialising the logic, time: %s", s.watch.Elapsed())
	s.watch.Reset()
}

// DoPartition implements Solver.
func (s *Stub) DoPartition(node, partitions string) error {
	if !s.ch.ParallelMode() {
		return ErrNotParallel
	}
	if _, err := strconv.Atoi(partitions); partitions != "" && err != nil {
		return fmt.Errorf("invalid partition count %q: %w", partitions, err)
	}
	defer stopwatch.Measure(fmt.Sprintf("[Communicator] Partition at %s into %s", node, partitions), s.logf)()
	return nil
}

// InjectClauses implements Solver.
func (s *Stub) InjectClauses(pulled lemma.Ledger) error {
	s.logf("[Communicator] Injecting %d pulled clauses from %d owners", pulled.Count(), pulled.Len())
	for _, owner := range pulled.Owners() {
		d := time.Duration(len(pulled[owner])) * time.Microsecond
		if s.waiting > 0 {
			d = s.waiting
		}
		time.Sleep(d)
	}
	return nil
}

// LearnSomeClauses produces a batch of clauses, or none. It learns nothing
// while the channel's learn flag is cleared.
func (s *Stub) LearnSomeClauses() []lemma.Lemma {
	if !s.ch.ShouldLearnClauses() {
		return nil
	}
	if s.intn(0, 9) == 0 {
		return nil
	}
	n := s.batchSize()
	out := make([]lemma.Lemma, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, lemma.New("assert("+strconv.Itoa(i)+")", i%10))
	}
	return out
}

func (s *Stub) round() Result {
	time.Sleep(s.roundDuration())

	if learned := s.LearnSomeClauses(); len(learned) > 0 {
		s.ch.Lock()
		defer s.ch.Unlock()
		if s.ch.CurrentOwner().Empty() {
			return UNKNOWN
		}
		s.logf("[Search] Add learned clauses to channel buffer, size: %d", len(learned))
		s.ch.InsertLearned(learned...)
		s.ch.ClearShouldLearnClauses()
		return UNKNOWN
	}
	if s.intn(0, 1) == 0 {
		return SAT
	}
	return UNSAT
}

// Search implements Solver. It runs rounds until one decides or a stop is
// requested, and returns UNKNOWN in the latter case.
func (s *Stub) Search(input string) (Result, error) {
	s.logf("[Search] Instance: %s", input)
	result := UNKNOWN
	for !s.ch.ShouldStop() {
		result = s.round()
		if result != UNKNOWN {
			s.ch.Lock()
			s.ch.SetShallStop()
			s.ch.NotifyAll()
			s.ch.Unlock()
			s.logf("[Search] Set shall stop")
			break
		}
	}
	s.logf("[Search] Solver exited with %s", result)
	return result, nil
}
