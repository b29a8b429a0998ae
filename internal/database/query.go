package database

import (
	"strings"
)

// QueryBuilder rewrites queries written with ? placeholders for a dialect.
type QueryBuilder struct {
	dialect Dialect
}

// NewQueryBuilder creates a new QueryBuilder for the given dialect.
func NewQueryBuilder(dialect Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: dialect}
}

// Build replaces each ? with the dialect's placeholder for its position.
//
//	input:    "SELECT node FROM run_rankings WHERE run_id = ? AND item = ?"
//	SQLite:   unchanged
//	Postgres: "SELECT node FROM run_rankings WHERE run_id = $1 AND item = $2"
func (qb *QueryBuilder) Build(query string) string {
	if _, ok := qb.dialect.(*SQLiteDialect); ok {
		return query
	}

	var result strings.Builder
	result.Grow(len(query) + 8)
	position := 1

	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			result.WriteByte(query[i])
			continue
		}
		result.WriteString(qb.dialect.Placeholder(position))
		position++
	}

	return result.String()
}

// BuildWithReturning is Build plus a RETURNING clause for dialects that
// cannot report the inserted id through LastInsertId.
//
//	input:    "INSERT INTO runs (digest) VALUES (?)", "id"
//	SQLite:   "INSERT INTO runs (digest) VALUES (?)"
//	Postgres: "INSERT INTO runs (digest) VALUES ($1) RETURNING id"
func (qb *QueryBuilder) BuildWithReturning(query string, column string) string {
	converted := qb.Build(query)
	if !qb.dialect.SupportsLastInsertID() {
		converted += qb.dialect.ReturningClause(column)
	}
	return converted
}
