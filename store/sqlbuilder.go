package store

import (
	sq "github.com/Masterminds/squirrel"
)

// sqlBuilder wraps squirrel to produce parameterized SQL for the store's
// own mutation statements, mirroring the teacher's sqlBuilder
// (nanostore/sql_builder.go) — a thin, intentional seam so every
// INSERT/DELETE this package issues goes through one place rather than
// ad hoc string formatting.
type sqlBuilder struct {
	sq sq.StatementBuilderType
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{sq: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

func (b *sqlBuilder) buildInsert(table string, columns []string, values []interface{}) (string, []interface{}, error) {
	return b.sq.Insert(table).Columns(columns...).Values(values...).ToSql()
}

func (b *sqlBuilder) buildDeleteWhere(table string, pred interface{}) (string, []interface{}, error) {
	return b.sq.Delete(table).Where(pred).ToSql()
}

func (b *sqlBuilder) buildSelectWhere(table string, columns []string, pred interface{}, orderBy ...string) (string, []interface{}, error) {
	q := b.sq.Select(columns...).From(table).Where(pred)
	for _, ob := range orderBy {
		q = q.OrderBy(ob)
	}
	return q.ToSql()
}
