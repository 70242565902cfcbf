// Package solver defines the contract between the command dispatcher and a
// search engine, and ships a stub engine for demos and tests.
package solver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/usi-verification-and-security/ptplib/pkg/lemma"
)

// ErrNotParallel is returned for a partition request while the channel is
// not in parallel mode.
var ErrNotParallel = errors.New("partitioning requires parallel mode")

// Result is the outcome of a search.
type Result int

const (
	// Undefined means no search has produced a result yet.
	Undefined Result = iota
	SAT
	UNSAT
	// UNKNOWN is returned by a search that was stopped before deciding,
	// and recorded when a search failed.
	UNKNOWN
)

func (r Result) String() string {
	switch r {
	case SAT:
		return "sat"
	case UNSAT:
		return "unsat"
	case UNKNOWN:
		return "unknown"
	default:
		return "undefined"
	}
}

// Defined reports whether r is a decision or an explicit unknown.
func (r Result) Defined() bool { return r != Undefined }

// ParseResult is the inverse of Result.String. It is case-insensitive.
func ParseResult(s string) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sat":
		return SAT, nil
	case "unsat":
		return UNSAT, nil
	case "unknown":
		return UNKNOWN, nil
	case "undefined", "":
		return Undefined, nil
	default:
		return Undefined, fmt.Errorf("invalid result %q", s)
	}
}

// Solver is the search engine driven by the communicator.
//
// Search runs on a pool worker. It must poll the channel's ShouldStop flag
// and return promptly once it is set. When it decides on its own it sets
// ShallStop and notifies the channel under the lock before returning.
// The other methods run on the dispatcher goroutine while no search is in
// flight. The channel lock is not held during any of these calls.
type Solver interface {
	InitialiseLogic()
	Search(input string) (Result, error)
	DoPartition(node, partitions string) error
	InjectClauses(pulled lemma.Ledger) error
}
