package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DataAccess is the parameterized query surface the alerting and job
// components depend on. Statements use $n placeholders only.
type DataAccess interface {
	// QueryOne returns the first row, or nil when the query matched nothing.
	QueryOne(ctx context.Context, sql string, args ...any) (Row, error)
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
	// Insert runs an INSERT ... RETURNING id and returns the id.
	Insert(ctx context.Context, sql string, args ...any) (int64, error)
	// Execute returns the number of affected rows.
	Execute(ctx context.Context, sql string, args ...any) (int64, error)
	TableExists(ctx context.Context, name string) (bool, error)
}

type DB struct {
	Pool *pgxpool.Pool
}

var _ DataAccess = (*DB)(nil)

func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

func (d *DB) QueryOne(ctx context.Context, sql string, args ...any) (Row, error) {
	rows, err := d.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (d *DB) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := d.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows: %w", err)
	}

	result := make([]Row, 0, len(maps))
	for _, m := range maps {
		result = append(result, Row(m))
	}
	return result, nil
}

func (d *DB) Insert(ctx context.Context, sql string, args ...any) (int64, error) {
	var id int64
	if err := d.Pool.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert failed: %w", err)
	}
	return id, nil
}

func (d *DB) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := d.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (d *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := d.Pool.QueryRow(ctx, `
	SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return exists, nil
}

// IsUndefinedTable reports whether err is postgres SQLSTATE 42P01.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}
