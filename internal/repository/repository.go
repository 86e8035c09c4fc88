package repository

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
)

// DBTX is the part of *sqlx.DB and *sqlx.Tx the adapters use.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// psql builds Oracle statements: go-ora binds positional :1, :2, ...
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Colon)
