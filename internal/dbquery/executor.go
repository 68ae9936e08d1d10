package dbquery

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"harborgrid-cloud/internal/auth"
)

// Executor runs built queries and scans rows generically.
type Executor struct {
	db      *sql.DB
	builder *Builder
}

// NewExecutor constructs an Executor.
func NewExecutor(db *sql.DB, builder *Builder) (*Executor, error) {
	if db == nil {
		return nil, errors.New("dbquery executor: nil db")
	}
	if builder == nil {
		builder = NewBuilder()
	}
	return &Executor{db: db, builder: builder}, nil
}

// Builder exposes the underlying builder.
func (e *Executor) Builder() *Builder { return e.builder }

// Select builds and runs a SELECT, returning generic row maps.
func (e *Executor) Select(ctx context.Context, role auth.Role, q Query) ([]map[string]any, error) {
	query, args, err := e.builder.BuildSelect(role, q)
	if err != nil {
		return nil, err
	}
	return e.queryMaps(ctx, query, args)
}

// SelectAggregate builds and runs an aggregate SELECT.
func (e *Executor) SelectAggregate(ctx context.Context, role auth.Role, agg Aggregate) ([]map[string]any, error) {
	query, args, err := e.builder.BuildAggregate(role, agg)
	if err != nil {
		return nil, err
	}
	return e.queryMaps(ctx, query, args)
}

// Insert builds and runs an INSERT, returning affected rows.
func (e *Executor) Insert(ctx context.Context, role auth.Role, table string, values map[string]any) (int64, error) {
	query, args, err := e.builder.BuildInsert(role, table, values)
	if err != nil {
		return 0, err
	}
	return e.exec(ctx, query, args)
}

// Update builds and runs an UPDATE, returning affected rows.
func (e *Executor) Update(ctx context.Context, role auth.Role, table string, values map[string]any, filters []Filter) (int64, error) {
	query, args, err := e.builder.BuildUpdate(role, table, values, filters)
	if err != nil {
		return 0, err
	}
	return e.exec(ctx, query, args)
}

// Delete builds and runs a DELETE, returning affected rows.
func (e *Executor) Delete(ctx context.Context, role auth.Role, table string, filters []Filter) (int64, error) {
	query, args, err := e.builder.BuildDelete(role, table, filters)
	if err != nil {
		return 0, err
	}
	return e.exec(ctx, query, args)
}

func (e *Executor) exec(ctx context.Context, query string, args []any) (int64, error) {
	result, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (e *Executor) queryMaps(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC()
	default:
		return v
	}
}
