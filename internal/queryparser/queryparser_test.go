package queryparser

import (
	"testing"

	"github.com/pianohacker/qualia/internal/queryast"
	"github.com/pianohacker/qualia/internal/value"
	"github.com/pianohacker/qualia/qerr"
)

func TestParseEmpty(t *testing.T) {
	q, err := Parse("   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Empty() {
		t.Fatal("expected an empty query")
	}
}

func TestParseBareValueKinds(t *testing.T) {
	cases := []struct {
		src  string
		want queryast.PredicateKind
	}{
		{"title: hello", queryast.PhraseContains},
		{"count: 42", queryast.IntegerEqual},
		{"due: 2024-01-15", queryast.DateEqual},
		{"object_id: 7", queryast.ObjectIDEqual},
	}

	for _, c := range cases {
		q, err := Parse(c.src)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", c.src, err)
		}
		if len(q.Clauses) != 1 {
			t.Fatalf("Parse(%q): expected 1 clause, got %d", c.src, len(q.Clauses))
		}
		if q.Clauses[0].Kind != c.want {
			t.Errorf("Parse(%q): got kind %v, want %v", c.src, q.Clauses[0].Kind, c.want)
		}
	}
}

func TestParseExactlyQuoted(t *testing.T) {
	q, err := Parse(`title: exactly "Hello, World"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := q.Clauses[0]
	if c.Kind != queryast.PhraseExact {
		t.Fatalf("expected PhraseExact, got %v", c.Kind)
	}
	if c.Phrase != "Hello, World" {
		t.Errorf("got phrase %q", c.Phrase)
	}
}

func TestParseBetweenIntegers(t *testing.T) {
	q, err := Parse("count: between 3 and 9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := q.Clauses[0]
	if c.Kind != queryast.IntegerRange || c.IntLow != 3 || c.IntHigh != 9 {
		t.Errorf("got %+v", c)
	}
}

func TestParseBetweenDates(t *testing.T) {
	q, err := Parse("due: between dates 2024-01-01 and 2024-12-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := q.Clauses[0]
	if c.Kind != queryast.DateRange {
		t.Fatalf("expected DateRange, got %v", c.Kind)
	}
	wantLow := value.Date{Year: 2024, Month: 1, Day: 1}
	wantHigh := value.Date{Year: 2024, Month: 12, Day: 31}
	if c.DateLow != wantLow || c.DateHigh != wantHigh {
		t.Errorf("got range [%v, %v], want [%v, %v]", c.DateLow, c.DateHigh, wantLow, wantHigh)
	}
}

func TestParseMultipleClauses(t *testing.T) {
	q, err := Parse("title: hello, count: 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Clauses) != 2 {
		t.Fatalf("expected 2 clauses, got %d", len(q.Clauses))
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`title: "unterminated`,
		`title`,
		`: hello`,
		`object_id: not-a-number`,
		`count: between 1 and 2 extra`,
	}

	for _, src := range cases {
		_, err := Parse(src)
		if err == nil {
			t.Errorf("Parse(%q): expected an error", src)
			continue
		}
		if !qerr.Is(err, qerr.ParseError) {
			t.Errorf("Parse(%q): expected a ParseError, got %v", src, err)
		}
	}
}

func TestParseObjectIDRejectsBetween(t *testing.T) {
	_, err := Parse("object_id: between 1 and 2")
	if err == nil {
		t.Fatal("expected an error")
	}
}
