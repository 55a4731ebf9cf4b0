// Package models holds the durable state of the call engine: calls, queue
// entries, agents, routing targets and voice message configuration. All
// state-mutating queries are conditional on the current stored values so
// that retried or out-of-order webhooks cannot re-apply a transition.
package models

import (
	"context"
	"database/sql"

	"github.com/vinovest/sqlx"
)

// Queryer is the interface for something that can be queried, implemented by
// both *sqlx.DB and *sqlx.Tx
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	NamedQueryContext(ctx context.Context, query string, arg any) (*sqlx.Rows, error)
}
