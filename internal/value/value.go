// Package value implements the Field Value: the tagged scalar carried by
// every property in a qualia object. It provides classification,
// tokenization, and the lossless scalar encoding used by both the row
// store and the checkpoint journal.
package value

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/pianohacker/qualia/qerr"
)

// Tag identifies a Value's variant. Tags are also the on-disk
// discriminator written alongside an encoded scalar.
type Tag int

const (
	Phrase Tag = iota
	Integer
	ObjectID
	DateTag
)

func (t Tag) String() string {
	switch t {
	case Phrase:
		return "phrase"
	case Integer:
		return "integer"
	case ObjectID:
		return "object_id"
	case DateTag:
		return "date"
	default:
		return "unknown"
	}
}

// Date is a calendar date with no time component.
type Date struct {
	Year, Month, Day int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Compare returns -1, 0, or 1 as d orders before, equal to, or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(d.Month - o.Month)
	default:
		return sign(d.Day - o.Day)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Value is a tagged Field Value. Exactly one of the payload fields is
// meaningful, selected by Tag.
type Value struct {
	Tag     Tag
	Phrase  string
	Integer int64
	Object  int64
	Date    Date
}

// NewPhrase builds a Phrase value. The phrase is NFC-normalized so later
// byte-for-byte comparisons are stable across equivalent Unicode forms.
func NewPhrase(s string) Value {
	return Value{Tag: Phrase, Phrase: NormalizePhrase(s)}
}

// NormalizePhrase applies the same Unicode normalization Phrase values get
// on construction, so text arriving through other paths (the query
// parser's verbatim literals) compares consistently against stored
// phrases.
func NormalizePhrase(s string) string { return norm.NFC.String(s) }

// NewInteger builds an Integer value.
func NewInteger(n int64) Value { return Value{Tag: Integer, Integer: n} }

// NewObjectID builds an ObjectId value.
func NewObjectID(id int64) Value { return Value{Tag: ObjectID, Object: id} }

// NewDate builds a Date value.
func NewDate(y, m, d int) Value { return Value{Tag: DateTag, Date: Date{y, m, d}} }

// Equal implements Field Value equality: variant tags and payloads must
// match exactly. Phrases compare byte-for-byte (post-normalization); dates
// compare on all three components.
func (v Value) Equal(o Value) bool {
	if v.Tag != o.Tag {
		return false
	}
	switch v.Tag {
	case Phrase:
		return v.Phrase == o.Phrase
	case Integer:
		return v.Integer == o.Integer
	case ObjectID:
		return v.Object == o.Object
	case DateTag:
		return v.Date == o.Date
	default:
		return false
	}
}

// Classify infers a Value's variant from raw text, for callers (the query
// parser, file importers) that receive an untagged string. Integer if the
// string parses as a signed decimal integer fitting int64; Date if it
// matches YYYY-MM-DD with valid calendar components; Phrase otherwise.
// Classification never fails — an out-of-range integer or invalid date
// simply falls back to Phrase.
func Classify(raw string) Value {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return NewInteger(n)
	}
	if d, ok := parseISODate(raw); ok {
		return NewDate(d.Year, d.Month, d.Day)
	}
	return NewPhrase(raw)
}

func parseISODate(raw string) (Date, bool) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return Date{}, false
	}
	// For this fixed numeric layout time.Parse already rejects an
	// out-of-range month or a day past the end of its month, so its result
	// is used without further validation.
	y, m, d := t.Date()
	return Date{y, int(m), d}, true
}

// caseFold is the shared case-folding transformer used by tokenization;
// cases.Fold performs Unicode case-folding rather than naive ASCII
// lowercasing, so tokens compare correctly across scripts.
var caseFold = cases.Fold()

// Tokenize splits a phrase into case-folded tokens on whitespace,
// following the separator policy sep (nil means the default: any run of
// ASCII whitespace — space, tab, newline, carriage return, vertical tab,
// form feed). Empty tokens are dropped. The original phrase is
// unaffected; tokenization is purely a read of it.
func Tokenize(phrase string, sep func(rune) bool) []string {
	if sep == nil {
		sep = isWhitespace
	}
	fields := strings.FieldsFunc(norm.NFC.String(phrase), sep)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		folded := caseFold.String(f)
		if folded != "" {
			tokens = append(tokens, folded)
		}
	}
	return tokens
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// FoldToken case-folds a single token the same way Tokenize does, so query
// predicates can compare against stored tokens consistently.
func FoldToken(s string) string { return caseFold.String(s) }

// Scalar is the wire shape a Value decomposes to for storage: a tag plus a
// single opaque payload string, with separate pre-computed sort keys for
// the numeric/date index. Encode/Decode round-trip losslessly.
type Scalar struct {
	Tag        Tag
	Payload    string
	NumericKey *int64
	DateKey    *string
}

// Encode converts v to its storage Scalar.
func Encode(v Value) Scalar {
	switch v.Tag {
	case Phrase:
		return Scalar{Tag: Phrase, Payload: v.Phrase}
	case Integer:
		n := v.Integer
		return Scalar{Tag: Integer, Payload: strconv.FormatInt(n, 10), NumericKey: &n}
	case ObjectID:
		n := v.Object
		return Scalar{Tag: ObjectID, Payload: strconv.FormatInt(n, 10), NumericKey: &n}
	case DateTag:
		key := dateSortKey(v.Date)
		payload := v.Date.String()
		return Scalar{Tag: DateTag, Payload: payload, DateKey: &key}
	default:
		panic("value: encode of unknown tag")
	}
}

// dateSortKey produces a lexicographically-sortable string for a Date,
// suitable as a SQL index key for range scans.
func dateSortKey(d Date) string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Decode reconstructs a Value from a storage Scalar. An unrecognized tag
// is a CorruptData error: the row exists but its discriminator cannot be
// interpreted.
func Decode(s Scalar) (Value, error) {
	switch s.Tag {
	case Phrase:
		return Value{Tag: Phrase, Phrase: s.Payload}, nil
	case Integer:
		n, err := strconv.ParseInt(s.Payload, 10, 64)
		if err != nil {
			return Value{}, qerr.New(qerr.CorruptData, "value.Decode", err)
		}
		return Value{Tag: Integer, Integer: n}, nil
	case ObjectID:
		n, err := strconv.ParseInt(s.Payload, 10, 64)
		if err != nil {
			return Value{}, qerr.New(qerr.CorruptData, "value.Decode", err)
		}
		return Value{Tag: ObjectID, Object: n}, nil
	case DateTag:
		var y, m, d int
		if _, err := fmt.Sscanf(s.Payload, "%04d-%02d-%02d", &y, &m, &d); err != nil {
			return Value{}, qerr.New(qerr.CorruptData, "value.Decode", err)
		}
		return Value{Tag: DateTag, Date: Date{y, m, d}}, nil
	default:
		return Value{}, qerr.New(qerr.CorruptData, "value.Decode", fmt.Errorf("unknown tag %d", s.Tag))
	}
}
