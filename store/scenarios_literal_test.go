package store_test

import (
	"path/filepath"
	"testing"

	"github.com/pianohacker/qualia/internal/value"
	"github.com/pianohacker/qualia/store"
)

// These tests implement the end-to-end scenarios spec.md §8 calls S1
// through S7, with their literal fixtures and expectations, rather than
// just exercising the same operations generically.

func namesOf(t *testing.T, s *store.Store) []string {
	t.Helper()
	col, err := s.Query("")
	if err != nil {
		t.Fatalf("Query(\"\"): %v", err)
	}
	bags, err := col.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	names := make([]string, 0, len(bags))
	for _, bag := range bags {
		names = append(names, bag["name"][0].Phrase)
	}
	return names
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

// S1 — basic lifecycle.
func TestScenarioS1BasicLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s1.qualia")

	s, err := store.Open(path, store.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Add(map[string][]value.Value{"name": {value.NewPhrase("foobar")}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = store.Open(path, store.Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	names := namesOf(t, s)
	if len(names) != 1 || names[0] != "foobar" {
		t.Fatalf("got names %v, want exactly one object named foobar", names)
	}
}

// S2 — deletion.
func TestScenarioS2Deletion(t *testing.T) {
	s := openTemp(t)

	jamesID, err := s.Add(map[string][]value.Value{"name": {value.NewPhrase("James")}})
	if err != nil {
		t.Fatalf("Add James: %v", err)
	}
	if _, err := s.Add(map[string][]value.Value{"name": {value.NewPhrase("Jimmy")}}); err != nil {
		t.Fatalf("Add Jimmy: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := s.Delete(jamesID); err != nil {
		t.Fatalf("Delete James: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	names := namesOf(t, s)
	if len(names) != 1 || names[0] != "Jimmy" {
		t.Fatalf("got names %v, want exactly one object named Jimmy", names)
	}
}

// S3 — query conjunction. Ten objects, value cycling 1..4/500 and ordinal
// alternating yes/no, such that exactly one object has both value: 1 and
// ordinal: yes.
func TestScenarioS3QueryConjunction(t *testing.T) {
	s := openTemp(t)

	seed := []struct {
		name    string
		value   int64
		ordinal string
	}{
		{"first", 1, "yes"},
		{"second", 2, "no"},
		{"third", 3, "yes"},
		{"fourth", 4, "no"},
		{"fifth", 500, "yes"},
		{"sixth", 1, "no"},
		{"seventh", 2, "yes"},
		{"eighth", 3, "no"},
		{"ninth", 4, "yes"},
		{"tenth", 500, "no"},
	}
	for _, row := range seed {
		_, err := s.Add(map[string][]value.Value{
			"name":    {value.NewPhrase(row.name)},
			"value":   {value.NewInteger(row.value)},
			"ordinal": {value.NewPhrase(row.ordinal)},
		})
		if err != nil {
			t.Fatalf("Add %s: %v", row.name, err)
		}
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	col, err := s.Query("value: 1, ordinal: yes")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if col.Count() != 1 {
		t.Fatalf("got %d matches, want exactly 1", col.Count())
	}
	bag, err := col.One()
	if err != nil {
		t.Fatalf("One: %v", err)
	}
	if bag["name"][0].Phrase != "first" {
		t.Errorf("got name %q, want first", bag["name"][0].Phrase)
	}
}

// S4 — phrase vs exact, including the leading-whitespace-sensitive case.
func TestScenarioS4PhraseVsExact(t *testing.T) {
	s := openTemp(t)

	if _, err := s.Add(map[string][]value.Value{"name": {value.NewPhrase("five hundred")}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(map[string][]value.Value{"name": {value.NewPhrase(" space six")}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	mustCount := func(query string, want int) {
		t.Helper()
		col, err := s.Query(query)
		if err != nil {
			t.Fatalf("Query(%q): %v", query, err)
		}
		if col.Count() != want {
			t.Errorf("Query(%q): got %d matches, want %d", query, col.Count(), want)
		}
	}

	mustCount("name: hundred", 1)
	mustCount("name: exactly hundred", 0)
	mustCount(`name: exactly "five hundred"`, 1)
	mustCount(`name: exactly "space six"`, 0)
	mustCount(`name: exactly " space six"`, 1)
}

// S5 — date range.
func TestScenarioS5DateRange(t *testing.T) {
	s := openTemp(t)

	type person struct {
		name     string
		birthday value.Date
	}
	people := []person{
		{"Joe", value.Date{Year: 1990, Month: 10, Day: 11}},
		{"Jim", value.Date{Year: 1991, Month: 9, Day: 11}},
		{"Ann", value.Date{Year: 1992, Month: 11, Day: 9}},
	}
	for _, p := range people {
		_, err := s.Add(map[string][]value.Value{
			"name":     {value.NewPhrase(p.name)},
			"birthday": {value.NewDate(p.birthday.Year, p.birthday.Month, p.birthday.Day)},
		})
		if err != nil {
			t.Fatalf("Add %s: %v", p.name, err)
		}
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	col, err := s.Query("birthday: between dates 1991-01-01 and 1991-11-30")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	bag, err := col.One()
	if err != nil {
		t.Fatalf("One: %v", err)
	}
	if bag["name"][0].Phrase != "Jim" {
		t.Errorf("got %q, want Jim", bag["name"][0].Phrase)
	}

	col, err = s.Query("birthday: 1990-10-11")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	bag, err = col.One()
	if err != nil {
		t.Fatalf("One: %v", err)
	}
	if bag["name"][0].Phrase != "Joe" {
		t.Errorf("got %q, want Joe", bag["name"][0].Phrase)
	}
}

// S6 — undo ordering: two mutations (a rename-by-value and a delete)
// sealed in one checkpoint must both be undone, and in the right order.
func TestScenarioS6UndoOrdering(t *testing.T) {
	s := openTemp(t)

	id, err := s.Add(map[string][]value.Value{"name": {value.NewPhrase("first")}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := s.Set(id, "name", []value.Value{value.NewPhrase("second")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if names := namesOf(t, s); len(names) != 0 {
		t.Fatalf("got names %v, want none after delete", names)
	}

	if err := s.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	names := namesOf(t, s)
	if len(names) != 1 || !containsName(names, "first") {
		t.Fatalf("got names %v, want exactly one object named first", names)
	}
}

// S7 — undo across reopen.
func TestScenarioS7UndoAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s7.qualia")

	s, err := store.Open(path, store.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Add(map[string][]value.Value{"name": {value.NewPhrase("first")}}); err != nil {
		t.Fatalf("Add first: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := s.Add(map[string][]value.Value{"name": {value.NewPhrase("second")}}); err != nil {
		t.Fatalf("Add second: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = store.Open(path, store.Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	names := namesOf(t, s)
	if len(names) != 1 || names[0] != "first" {
		t.Fatalf("got names %v, want exactly one object named first", names)
	}
}
