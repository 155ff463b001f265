package pageindex

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPages is returned when a page source yields nothing to index.
	ErrNoPages = errors.New("no pages extracted from document")

	// ErrNoItems is returned when a strategy extracts zero structure items.
	ErrNoItems = errors.New("no structure items extracted")
)

// InputError means the page source is missing or unreadable. It is fatal
// and never retried.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// StrategyPreconditionError means the table of contents state does not
// allow the requested strategy.
type StrategyPreconditionError struct {
	Strategy Strategy
	Reason   string
}

func (e *StrategyPreconditionError) Error() string {
	return fmt.Sprintf("strategy %s not applicable: %s", e.Strategy, e.Reason)
}

// OracleError wraps a failed or malformed oracle exchange.
type OracleError struct {
	Op  string
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// AssemblyInvariantViolation reports an assembled tree that breaks its
// structural guarantees.
type AssemblyInvariantViolation struct {
	Detail string
}

func (e *AssemblyInvariantViolation) Error() string {
	return "assembly invariant violated: " + e.Detail
}
