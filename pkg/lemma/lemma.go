// Package lemma defines learned facts exchanged between solver instances and
// the per-owner ledgers that buffer them.
package lemma

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Lemma is a learned clause together with the partition level it is valid at.
type Lemma struct {
	Clause string `json:"clause"`
	Level  int    `json:"level"`
}

// New returns a Lemma.
func New(clause string, level int) Lemma {
	return Lemma{Clause: clause, Level: level}
}

// String returns the text form "<level> <clause>".
func (l Lemma) String() string {
	return strconv.Itoa(l.Level) + " " + l.Clause
}

// Parse reads the text form produced by String. Everything after the first
// space is the clause, verbatim.
func Parse(s string) (Lemma, error) {
	levelStr, clause, _ := strings.Cut(strings.TrimLeft(s, " "), " ")
	level, err := strconv.Atoi(levelStr)
	if err != nil {
		return Lemma{}, fmt.Errorf("invalid lemma level %q: %w", levelStr, err)
	}
	return Lemma{Clause: clause, Level: level}, nil
}

// Ledger maps an owner identity (a node address) to the lemmas collected
// for it, in insertion order. A nil Ledger is a valid empty ledger for
// reading.
type Ledger map[string][]Lemma

// Append adds lemmas under owner.
func (l Ledger) Append(owner string, lemmas ...Lemma) {
	l[owner] = append(l[owner], lemmas...)
}

// Len returns the number of owners.
func (l Ledger) Len() int {
	return len(l)
}

// Count returns the total number of lemmas across all owners.
func (l Ledger) Count() int {
	n := 0
	for _, lemmas := range l {
		n += len(lemmas)
	}
	return n
}

// Owners returns the owner keys in sorted order.
func (l Ledger) Owners() []string {
	owners := make([]string, 0, len(l))
	for owner := range l {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for owner, lemmas := range l {
		out[owner] = append([]Lemma(nil), lemmas...)
	}
	return out
}
