package core

import (
	"context"
	"database/sql"
	"strings"
)

// DBExecutor is satisfied by *sql.DB, *sql.Tx and their sqlx counterparts.
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderByClause joins orderings into an ORDER BY list, e.g. "created_at ASC, id ASC".
func OrderByClause(orderings ...DBOrdering) string {
	list := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		list = append(list, ord.String())
	}
	return strings.Join(list, ", ")
}
