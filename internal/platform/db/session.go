package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type contextKey string

const sessionKey contextKey = "db_session"

// WithSession returns a context carrying an open transaction. Repositories
// route their statements through the session when one is present, which is
// how a unit of work spanning several documents commits or rolls back as
// one.
func WithSession(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, sessionKey, tx)
}

// SessionFromContext retrieves the transaction attached to the context, or
// nil when the unit of work runs in no-session fallback mode and each
// statement stands alone.
func SessionFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(sessionKey).(pgx.Tx)
	return tx
}
