package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: sq.Dollar,
	schema:      commonSchema,
	anyOf: func(column string, values []string) sq.Sqlizer {
		return sq.Expr(column+" = ANY(?)", pq.StringArray(values))
	},
}

// OpenPostgres connects to Postgres, verifies the connection and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewPostgresStore(ctx, db)
}

// NewPostgresStore wires an existing sql.DB and migrates the schema.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	store := newSQLStore(db, postgresDialect)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
