package listener

import (
	"context"
	"sync"

	"github.com/usi-verification-and-security/ptplib/pkg/header"
	"github.com/usi-verification-and-security/ptplib/pkg/lemma"
	"github.com/usi-verification-and-security/ptplib/pkg/lemmaserver"
)

// Exchange moves lemmas between this solver and its peers. The owner
// header carries at least the instance name and node.
type Exchange interface {
	WriteLemmas(ctx context.Context, owner header.Header, ledger lemma.Ledger) (int, error)
	ReadLemmas(ctx context.Context, owner header.Header) ([]lemma.Lemma, error)
}

// Reporter is implemented by exchanges that also collect search results.
type Reporter interface {
	ReportResult(ctx context.Context, owner header.Header, result string) error
}

var (
	_ Exchange = (*lemmaserver.Client)(nil)
	_ Reporter = (*lemmaserver.Client)(nil)
	_ Exchange = (*MemoryExchange)(nil)
	_ Reporter = (*MemoryExchange)(nil)
)

// MemoryExchange is an in-process loopback Exchange: every lemma written is
// read back once, by whoever reads that node next.
type MemoryExchange struct {
	mu      sync.Mutex
	lists   map[string][]lemma.Lemma
	cursors map[string]int
	results map[string]string
}

// NewMemoryExchange returns an empty MemoryExchange.
func NewMemoryExchange() *MemoryExchange {
	return &MemoryExchange{
		lists:   map[string][]lemma.Lemma{},
		cursors: map[string]int{},
		results: map[string]string{},
	}
}

// WriteLemmas appends each node's lemmas under the owner's name.
func (m *MemoryExchange) WriteLemmas(_ context.Context, owner header.Header, ledger lemma.Ledger) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for node, lemmas := range ledger {
		field := lemmaserver.OwnerField(owner.Name(), node)
		m.lists[field] = append(m.lists[field], lemmas...)
		n += len(lemmas)
	}
	return n, nil
}

// ReadLemmas returns the lemmas written for the owner's node since the
// previous read.
func (m *MemoryExchange) ReadLemmas(_ context.Context, owner header.Header) ([]lemma.Lemma, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	field := lemmaserver.OwnerField(owner.Name(), owner.Node())
	list := m.lists[field]
	start := m.cursors[field]
	if start >= len(list) {
		return nil, nil
	}
	m.cursors[field] = len(list)
	return append([]lemma.Lemma(nil), list[start:]...), nil
}

// ReportResult records result for the owner.
func (m *MemoryExchange) ReportResult(_ context.Context, owner header.Header, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[lemmaserver.OwnerField(owner.Name(), owner.Node())] = result
	return nil
}

// Result returns the result reported for the owner, or "".
func (m *MemoryExchange) Result(owner header.Header) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[lemmaserver.OwnerField(owner.Name(), owner.Node())]
}

// Written returns the number of lemmas stored for the owner's node.
func (m *MemoryExchange) Written(owner header.Header) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[lemmaserver.OwnerField(owner.Name(), owner.Node())])
}
