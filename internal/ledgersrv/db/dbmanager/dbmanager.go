package dbmanager

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
)

// ScopedDb hands out connections that carry session-level scopes (row level
// security settings such as the current tenant).
type ScopedDb interface {
	// Conn returns a new connection to the database.
	Conn(ctx context.Context) (ScopedConn, error)
	// Stats returns the number of connection requests and returns.
	Stats() (requests, returns uint64)
}

type ScopedConn interface {
	// AddScope sets the given scope with the given value on the connection.
	AddScope(ctx context.Context, scope, value string) error
	// DropScope resets the given scope on the connection.
	DropScope(ctx context.Context, scope string) error
	// DropAllScopes resets all configured scopes on the connection.
	DropAllScopes(ctx context.Context) error
	// Conn returns the underlying connection of the ScopedConn.
	Conn() *sql.Conn
	// Close drops all scopes and returns the connection back to the pool.
	Close(ctx context.Context)
}

func NewScopedDb(ctx context.Context, dbtype string, configuredScopes []string) ScopedDb {
	switch dbtype {
	case "postgresql":
		db, err := NewPostgresqlDb(configuredScopes)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to create PostgreSQL DB")
			return nil
		}
		return db
	}
	return nil
}
