package qualia_test

import (
	"path/filepath"
	"testing"

	"github.com/pianohacker/qualia"
)

type task struct {
	ObjectID *int64
	Title    string
	Priority int64 `qualia:"priority"`
}

func TestEndToEndShapeUsage(t *testing.T) {
	dir := t.TempDir()
	s, err := qualia.Open(filepath.Join(dir, "tasks.qualia"), qualia.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	id, err := qualia.AddShape(s, task{Title: "write docs", Priority: 2})
	if err != nil {
		t.Fatalf("AddShape: %v", err)
	}
	if _, err := qualia.AddShape(s, task{Title: "ship release", Priority: 5}); err != nil {
		t.Fatalf("AddShape: %v", err)
	}
	if err := s.Commit("seed tasks"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	q := qualia.Query[task]().Between("Priority", 1, 3).Build()
	col, err := s.QueryAST(q)
	if err != nil {
		t.Fatalf("QueryAST: %v", err)
	}

	got, err := qualia.OneAs[task](col)
	if err != nil {
		t.Fatalf("OneAs: %v", err)
	}
	if got.Title != "write docs" || got.ObjectID == nil || *got.ObjectID != id {
		t.Errorf("got %+v", got)
	}

	all, err := s.Query("")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	tasks, err := qualia.IterAs[task](all)
	if err != nil {
		t.Fatalf("IterAs: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
}

func TestIsErrorKind(t *testing.T) {
	dir := t.TempDir()
	s, err := qualia.Open(filepath.Join(dir, "tasks.qualia"), qualia.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	_, err = s.Get(123)
	if !qualia.IsErrorKind(err, qualia.NotFound) {
		t.Fatalf("expected a NotFound error, got %v", err)
	}
}
