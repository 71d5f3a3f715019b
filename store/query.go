package store

import (
	"github.com/pianohacker/qualia/internal/queryast"
	"github.com/pianohacker/qualia/internal/queryparser"
)

// ParseQuery compiles query text into an AST without running it, exposed
// so callers can inspect or cache a compiled query before executing it
// against one or more stores.
func ParseQuery(src string) (*queryast.Query, error) {
	return queryparser.Parse(src)
}
