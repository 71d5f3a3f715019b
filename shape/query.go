package shape

import (
	"reflect"

	"github.com/pianohacker/qualia/internal/queryast"
	"github.com/pianohacker/qualia/internal/value"
)

// QueryBuilder composes typed clauses against one shape's fields, the Go
// analog of the original implementation's chainable Q.equal()/.id()/.like()
// builder (original_source/src/query_builder.rs), adapted to return a
// queryast.Query directly rather than a query-text string.
type QueryBuilder[T any] struct {
	q *queryast.Query
}

// NewQueryBuilder starts an empty query builder for shape T. Each builder
// method binds T on demand (or reuses its cached binding) to map a Go
// field name to its property name. If T cannot be bound, or the field is
// not part of the binding, the snake_case form of the Go field name is
// used instead; no error is reported.
func NewQueryBuilder[T any]() *QueryBuilder[T] {
	return &QueryBuilder[T]{q: &queryast.Query{}}
}

func (qb *QueryBuilder[T]) fieldName(goField string) string {
	b, err := bindingFor(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return toSnakeCase(goField)
	}
	t := b.typ
	f, ok := t.FieldByName(goField)
	if !ok {
		return toSnakeCase(goField)
	}
	for _, fb := range b.fields {
		if fb.isID {
			continue
		}
		if t.Field(fb.index).Name == f.Name {
			return fb.propertyName
		}
	}
	return toSnakeCase(goField)
}

// Equal adds an exact-match clause: integer equality if val is an int64,
// phrase-exact if val is a string, date equality if val is a value.Date.
func (qb *QueryBuilder[T]) Equal(goField string, val interface{}) *QueryBuilder[T] {
	field := qb.fieldName(goField)
	switch v := val.(type) {
	case int64:
		qb.q.Clauses = append(qb.q.Clauses, queryast.Clause{Field: field, Kind: queryast.IntegerEqual, IntLow: v, IntHigh: v})
	case string:
		qb.q.Clauses = append(qb.q.Clauses, queryast.Clause{Field: field, Kind: queryast.PhraseExact, Phrase: value.NormalizePhrase(v)})
	case value.Date:
		qb.q.Clauses = append(qb.q.Clauses, queryast.Clause{Field: field, Kind: queryast.DateEqual, DateLow: v, DateHigh: v})
	}
	return qb
}

// Contains adds a token-contains clause against a text field.
func (qb *QueryBuilder[T]) Contains(goField, text string) *QueryBuilder[T] {
	field := qb.fieldName(goField)
	qb.q.Clauses = append(qb.q.Clauses, queryast.Clause{
		Field: field, Kind: queryast.PhraseContains, Tokens: value.Tokenize(text, nil),
	})
	return qb
}

// Between adds an inclusive integer range clause against a numeric field.
func (qb *QueryBuilder[T]) Between(goField string, lo, hi int64) *QueryBuilder[T] {
	field := qb.fieldName(goField)
	qb.q.Clauses = append(qb.q.Clauses, queryast.Clause{Field: field, Kind: queryast.IntegerRange, IntLow: lo, IntHigh: hi})
	return qb
}

// BetweenDates adds an inclusive date range clause against a date field.
func (qb *QueryBuilder[T]) BetweenDates(goField string, lo, hi value.Date) *QueryBuilder[T] {
	field := qb.fieldName(goField)
	qb.q.Clauses = append(qb.q.Clauses, queryast.Clause{Field: field, Kind: queryast.DateRange, DateLow: lo, DateHigh: hi})
	return qb
}

// Build returns the composed queryast.Query.
func (qb *QueryBuilder[T]) Build() *queryast.Query { return qb.q }
