// Package executor evaluates a parsed queryast.Query against the row
// store's property and token tables and returns the matching object ids.
// Clauses are planned in order of estimated selectivity — point lookups,
// then ranges, then token intersections — following the teacher's own
// "build the cheap filter first" idiom in query_sql_generator.go, though
// (as spec.md notes) this ordering is a performance decision and never
// changes the result.
package executor

import (
	"context"
	"database/sql"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/pianohacker/qualia/internal/queryast"
	"github.com/pianohacker/qualia/internal/value"
	"github.com/pianohacker/qualia/qerr"
)

// Queryable is satisfied by both *sql.DB and *sql.Tx, letting the
// executor run against whichever is the store's currently active handle
// (so a caller sees its own uncommitted mutations).
type Queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Execute runs q against db and returns the matching object ids. An empty
// query matches every object currently in the objects table.
func Execute(ctx context.Context, db Queryable, q *queryast.Query) ([]int64, error) {
	if q.Empty() {
		return allObjectIDs(ctx, db)
	}

	clauses := orderedBySelectivity(q.Clauses)

	var result map[int64]bool
	for i, clause := range clauses {
		ids, err := evalClause(ctx, db, clause)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			result = ids
			continue
		}
		for id := range result {
			if !ids[id] {
				delete(result, id)
			}
		}
	}

	return sortedKeys(result), nil
}

func selectivityRank(k queryast.PredicateKind) int {
	switch k {
	case queryast.ObjectIDEqual:
		return 0
	case queryast.IntegerEqual, queryast.DateEqual, queryast.PhraseExact:
		return 1
	case queryast.IntegerRange, queryast.DateRange:
		return 2
	case queryast.PhraseContains:
		return 3
	default:
		return 4
	}
}

func orderedBySelectivity(clauses []queryast.Clause) []queryast.Clause {
	out := make([]queryast.Clause, len(clauses))
	copy(out, clauses)
	sort.SliceStable(out, func(i, j int) bool {
		return selectivityRank(out[i].Kind) < selectivityRank(out[j].Kind)
	})
	return out
}

func evalClause(ctx context.Context, db Queryable, c queryast.Clause) (map[int64]bool, error) {
	switch c.Kind {
	case queryast.ObjectIDEqual:
		return pointObjectID(ctx, db, c.IntLow)
	case queryast.IntegerEqual:
		// Ambiguous per the grammar: union the integer-equality reading
		// with the single-token phrase reading, since the store carries
		// no static per-field type.
		byInt, err := propertyLookup(ctx, db, c.Field, value.Integer, sq.Eq{"numeric_key": c.IntLow})
		if err != nil {
			return nil, err
		}
		if len(c.Tokens) == 1 {
			byToken, err := tokenLookup(ctx, db, c.Field, c.Tokens[0])
			if err != nil {
				return nil, err
			}
			for id := range byToken {
				byInt[id] = true
			}
		}
		return byInt, nil
	case queryast.IntegerRange:
		return propertyLookup(ctx, db, c.Field, value.Integer, sq.GtOrEq{"numeric_key": c.IntLow}, sq.LtOrEq{"numeric_key": c.IntHigh})
	case queryast.DateEqual:
		return propertyLookup(ctx, db, c.Field, value.DateTag, sq.Eq{"date_key": dateKey(c.DateLow)})
	case queryast.DateRange:
		return propertyLookup(ctx, db, c.Field, value.DateTag, sq.GtOrEq{"date_key": dateKey(c.DateLow)}, sq.LtOrEq{"date_key": dateKey(c.DateHigh)})
	case queryast.PhraseExact:
		return propertyLookup(ctx, db, c.Field, value.Phrase, sq.Eq{"value_payload": c.Phrase})
	case queryast.PhraseContains:
		return phraseContains(ctx, db, c.Field, c.Tokens)
	default:
		return nil, qerr.New(qerr.ParseError, "executor.Execute", errUnknownClauseKind)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

const errUnknownClauseKind = errString("unrecognized clause kind")

func dateKey(d value.Date) string { return value.Encode(value.NewDate(d.Year, d.Month, d.Day)).Payload }

func allObjectIDs(ctx context.Context, db Queryable) ([]int64, error) {
	sqlStr, args, err := builder.Select("object_id").From("objects").ToSql()
	if err != nil {
		return nil, qerr.New(qerr.Io, "executor.Execute", err)
	}
	return queryIDs(ctx, db, sqlStr, args)
}

func pointObjectID(ctx context.Context, db Queryable, id int64) (map[int64]bool, error) {
	sqlStr, args, err := builder.Select("object_id").From("objects").Where(sq.Eq{"object_id": id}).ToSql()
	if err != nil {
		return nil, qerr.New(qerr.Io, "executor.Execute", err)
	}
	ids, err := queryIDs(ctx, db, sqlStr, args)
	if err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

func propertyLookup(ctx context.Context, db Queryable, field string, tag value.Tag, extra ...interface{}) (map[int64]bool, error) {
	q := builder.Select("DISTINCT object_id").From("properties").
		Where(sq.Eq{"name": field}).
		Where(sq.Eq{"value_tag": int(tag)})
	for _, cond := range extra {
		q = q.Where(cond)
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, qerr.New(qerr.Io, "executor.Execute", err)
	}
	ids, err := queryIDs(ctx, db, sqlStr, args)
	if err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

func tokenLookup(ctx context.Context, db Queryable, field, token string) (map[int64]bool, error) {
	sqlStr, args, err := builder.Select("DISTINCT object_id").From("tokens").
		Where(sq.Eq{"name": field}).
		Where(sq.Eq{"token": value.FoldToken(token)}).
		ToSql()
	if err != nil {
		return nil, qerr.New(qerr.Io, "executor.Execute", err)
	}
	ids, err := queryIDs(ctx, db, sqlStr, args)
	if err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

// phraseContains intersects the id sets of every query token under
// (field, token), implementing the token-contains predicate.
func phraseContains(ctx context.Context, db Queryable, field string, tokens []string) (map[int64]bool, error) {
	if len(tokens) == 0 {
		return map[int64]bool{}, nil
	}

	var result map[int64]bool
	for i, tok := range tokens {
		ids, err := tokenLookup(ctx, db, field, tok)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			result = ids
			continue
		}
		for id := range result {
			if !ids[id] {
				delete(result, id)
			}
		}
	}
	return result, nil
}

func queryIDs(ctx context.Context, db Queryable, sqlStr string, args []interface{}) ([]int64, error) {
	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, qerr.New(qerr.Io, "executor.Execute", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, qerr.New(qerr.Io, "executor.Execute", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, qerr.New(qerr.Io, "executor.Execute", err)
	}
	return ids, nil
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortedKeys(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
