// Package qualia is a semi-schemaless document store for files with rich,
// searchable metadata: text phrases, integers, dates, and object
// references, with checkpoint/undo journaling and a compact query
// language. This root package is a thin alias layer over store.Store,
// mirroring the teacher's own top-level nanostore.go, which re-exports its
// store package's types rather than duplicating them.
package qualia

import (
	"github.com/pianohacker/qualia/internal/value"
	"github.com/pianohacker/qualia/qerr"
	"github.com/pianohacker/qualia/shape"
	"github.com/pianohacker/qualia/store"
)

// Store is the opened, operable handle on a qualia store file.
type Store = store.Store

// Config carries Store's few open-time knobs.
type Config = store.Config

// Collection is the lazy result of a query.
type Collection = store.Collection

// Value is a tagged Field Value: a phrase, integer, object id, or date.
type Value = value.Value

// Date is a calendar date with no time component.
type Date = value.Date

// Error is qualia's single concrete error type; every fallible operation
// returns one (or a wrapper of one).
type Error = qerr.Error

// Kind classifies an Error.
type Kind = qerr.Kind

const (
	ParseError     = qerr.ParseError
	NotFound       = qerr.NotFound
	NotUnique      = qerr.NotUnique
	TypeMismatch   = qerr.TypeMismatch
	CorruptData    = qerr.CorruptData
	SchemaMismatch = qerr.SchemaMismatch
	Io             = qerr.Io
	Busy           = qerr.Busy
)

// Open opens (creating if necessary) the qualia store file at path.
func Open(path string, cfg Config) (*Store, error) {
	return store.Open(path, cfg)
}

// NewPhrase builds a Phrase value.
func NewPhrase(s string) Value { return value.NewPhrase(s) }

// NewInteger builds an Integer value.
func NewInteger(n int64) Value { return value.NewInteger(n) }

// NewObjectID builds an ObjectId value.
func NewObjectID(id int64) Value { return value.NewObjectID(id) }

// NewDate builds a Date value.
func NewDate(y, m, d int) Value { return value.NewDate(y, m, d) }

// IsErrorKind reports whether err is, or wraps, an Error of the given
// kind.
func IsErrorKind(err error, kind Kind) bool { return qerr.Is(err, kind) }

// Bind binds shape T to a property bag, for use with Add or Set.
func Bind[T any](record T) (map[string][]Value, error) { return shape.ToBag[T](record) }

// OneAs projects a Collection's sole matching object onto shape T.
func OneAs[T any](c *Collection) (T, error) { return shape.OneAs[T](c) }

// IterAs projects every object a Collection matched onto shape T.
func IterAs[T any](c *Collection) ([]T, error) { return shape.IterAs[T](c) }

// Query builds a typed QueryBuilder for shape T.
func Query[T any]() *shape.QueryBuilder[T] { return shape.NewQueryBuilder[T]() }

// AddShape binds record via shape T and adds it to s, returning its new
// object id.
func AddShape[T any](s *Store, record T) (int64, error) {
	bag, err := shape.ToBag[T](record)
	if err != nil {
		return 0, err
	}
	return s.Add(bag)
}
