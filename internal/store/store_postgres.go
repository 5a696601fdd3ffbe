package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"authgate/internal/schema"
	"authgate/pkg/platform/sentinel"
)

// SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore persists records in PostgreSQL. Column names come straight
// from the schema's field names and the table from the registration, so the
// store needs no per-type code. Uniqueness is enforced by the database's
// unique indexes; a violation surfaces as sentinel.ErrConflict, which keeps
// duplicate registration rejection correct under concurrency.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store over an existing connection pool; the
// pool lifecycle is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) FindOne(ctx context.Context, sch *schema.Schema, matches []Match) (any, error) {
	cols := sch.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	var b strings.Builder
	args := make([]any, 0, len(matches))
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(names, ", "), sch.Table())
	for i, m := range matches {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, m.Value)
		fmt.Fprintf(&b, "%s = $%d", m.Field.Name, len(args))
	}
	b.WriteString(" LIMIT 1")

	row := s.pool.QueryRow(ctx, b.String(), args...)
	values := make([]string, len(cols))
	dests := make([]any, len(cols))
	for i := range values {
		dests[i] = &values[i]
	}
	if err := row.Scan(dests...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("query %s: %w", sch.Table(), err)
	}

	rec := sch.New()
	for i, c := range cols {
		c.Set(rec, values[i])
	}
	return rec, nil
}

func (s *PostgresStore) Insert(ctx context.Context, sch *schema.Schema, rec any) (any, error) {
	cols := sch.Columns()
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = c.Get(rec)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sch.Table(), strings.Join(names, ", "), strings.Join(placeholders, ", "))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("unique constraint %s: %w", pgErr.ConstraintName, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("insert into %s: %w", sch.Table(), err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, sch *schema.Schema, rec any) (any, error) {
	keys := sch.UniqueFields()
	if len(keys) == 0 {
		keys = sch.IdentityFields()
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("type %s has no unique or identity fields to address updates: %w",
			sch.TypeName(), sentinel.ErrInvalidState)
	}

	cols := sch.Columns()
	var b strings.Builder
	args := make([]any, 0, len(cols)+len(keys))
	fmt.Fprintf(&b, "UPDATE %s SET ", sch.Table())
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		args = append(args, c.Get(rec))
		fmt.Fprintf(&b, "%s = $%d", c.Name, len(args))
	}
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, k.Get(rec))
		fmt.Fprintf(&b, "%s = $%d", k.Name, len(args))
	}

	tag, err := s.pool.Exec(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", sch.Table(), err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
	}
	return rec, nil
}
