// Package queryast defines the parsed representation of a qualia query: a
// conjunction of per-field predicates. It carries no parsing or execution
// logic of its own — see queryparser for the grammar and executor for
// evaluation.
package queryast

import "github.com/pianohacker/qualia/internal/value"

// PredicateKind selects which clause form a Predicate represents.
type PredicateKind int

const (
	// PhraseContains matches a property whose tokenized values contain
	// every token of the query phrase.
	PhraseContains PredicateKind = iota
	// PhraseExact matches a property whose verbatim phrase value equals
	// the query phrase exactly, including whitespace.
	PhraseExact
	// IntegerEqual matches an Integer property by exact value.
	IntegerEqual
	// IntegerRange matches an Integer property within an inclusive range.
	IntegerRange
	// DateEqual matches a Date property by exact value.
	DateEqual
	// DateRange matches a Date property within an inclusive range.
	DateRange
	// ObjectIDEqual matches the reserved object_id field by exact value.
	ObjectIDEqual
)

// Clause is a single field-predicate pair conjoined with the rest of a
// Query.
type Clause struct {
	Field string
	Kind  PredicateKind

	// Phrase* fields: meaningful for PhraseContains/PhraseExact.
	Tokens []string // case-folded tokens, for PhraseContains
	Phrase string   // verbatim text, for PhraseExact

	// Integer/Date fields: meaningful for *Equal/*Range.
	IntLow, IntHigh   int64
	DateLow, DateHigh value.Date
}

// Query is the conjunction (logical AND) of its Clauses. A Query with no
// clauses matches every object (the empty query).
type Query struct {
	Clauses []Clause
}

// Empty reports whether q has no clauses.
func (q *Query) Empty() bool { return len(q.Clauses) == 0 }
