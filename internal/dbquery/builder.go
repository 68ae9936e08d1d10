package dbquery

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"harborgrid-cloud/internal/auth"
)

// Builder produces parameterized SQL gated by role permissions.
type Builder struct {
	perms Permissions
	stmt  sq.StatementBuilderType
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPermissions overrides the default permission table.
func WithPermissions(perms Permissions) BuilderOption {
	return func(b *Builder) {
		if perms != nil {
			b.perms = perms
		}
	}
}

// NewBuilder constructs a Builder with dollar placeholders.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		perms: DefaultPermissions(),
		stmt:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildSelect builds a SELECT statement for the role.
func (b *Builder) BuildSelect(role auth.Role, q Query) (string, []any, error) {
	if err := b.perms.Check(role, ActionSelect, q.Table); err != nil {
		return "", nil, err
	}
	if err := validIdent(q.Table); err != nil {
		return "", nil, err
	}
	columns := q.Columns
	if len(columns) == 0 {
		columns = []string{"*"}
	} else if err := validIdents(columns); err != nil {
		return "", nil, err
	}

	builder := b.stmt.Select(columns...).From(q.Table)

	for _, join := range q.Joins {
		clause, err := b.joinClause(role, join)
		if err != nil {
			return "", nil, err
		}
		builder = builder.JoinClause(clause)
	}

	builder, err := applyFilters(builder, q.Filters)
	if err != nil {
		return "", nil, err
	}

	if q.OrderBy != "" {
		if err := validIdent(q.OrderBy); err != nil {
			return "", nil, err
		}
		direction := "ASC"
		if q.Desc {
			direction = "DESC"
		}
		builder = builder.OrderBy(q.OrderBy + " " + direction)
	}
	if q.Limit > 0 {
		builder = builder.Limit(q.Limit)
	}
	if q.Offset > 0 {
		builder = builder.Offset(q.Offset)
	}
	return builder.ToSql()
}

// BuildAggregate builds an aggregate SELECT for the role.
func (b *Builder) BuildAggregate(role auth.Role, agg Aggregate) (string, []any, error) {
	if err := b.perms.Check(role, ActionSelect, agg.Table); err != nil {
		return "", nil, err
	}
	if err := validIdent(agg.Table); err != nil {
		return "", nil, err
	}
	if err := validAggFunc(agg.Func); err != nil {
		return "", nil, err
	}
	column := agg.Column
	if column == "" {
		if agg.Func != AggCount {
			return "", nil, fmt.Errorf("dbquery: %s requires a column", agg.Func)
		}
		column = "*"
	} else if err := validIdent(column); err != nil {
		return "", nil, err
	}
	if err := validIdents(agg.GroupBy); err != nil {
		return "", nil, err
	}

	expr := fmt.Sprintf("%s(%s) AS value", strings.ToUpper(string(agg.Func)), column)
	selected := append(append([]string{}, agg.GroupBy...), expr)

	builder := b.stmt.Select(selected...).From(agg.Table)
	builder, err := applyFilters(builder, agg.Filters)
	if err != nil {
		return "", nil, err
	}
	if len(agg.GroupBy) > 0 {
		builder = builder.GroupBy(agg.GroupBy...).OrderBy(agg.GroupBy...)
	}
	return builder.ToSql()
}

// BuildInsert builds an INSERT for the role. Column order is
// deterministic so generated SQL is stable across runs.
func (b *Builder) BuildInsert(role auth.Role, table string, values map[string]any) (string, []any, error) {
	if err := b.perms.Check(role, ActionInsert, table); err != nil {
		return "", nil, err
	}
	if err := validIdent(table); err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("dbquery: insert with no values")
	}

	columns := make([]string, 0, len(values))
	for column := range values {
		if err := validIdent(column); err != nil {
			return "", nil, err
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	row := make([]any, 0, len(columns))
	for _, column := range columns {
		row = append(row, values[column])
	}
	return b.stmt.Insert(table).Columns(columns...).Values(row...).ToSql()
}

// BuildUpdate builds an UPDATE for the role. At least one filter is
// required.
func (b *Builder) BuildUpdate(role auth.Role, table string, values map[string]any, filters []Filter) (string, []any, error) {
	if err := b.perms.Check(role, ActionUpdate, table); err != nil {
		return "", nil, err
	}
	if err := validIdent(table); err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("dbquery: update with no values")
	}
	if len(filters) == 0 {
		return "", nil, ErrUnsafeStatement
	}

	columns := make([]string, 0, len(values))
	for column := range values {
		if err := validIdent(column); err != nil {
			return "", nil, err
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	builder := b.stmt.Update(table)
	for _, column := range columns {
		builder = builder.Set(column, values[column])
	}
	for _, filter := range filters {
		pred, err := filterPredicate(filter)
		if err != nil {
			return "", nil, err
		}
		builder = builder.Where(pred)
	}
	return builder.ToSql()
}

// BuildDelete builds a DELETE for the role. At least one filter is
// required.
func (b *Builder) BuildDelete(role auth.Role, table string, filters []Filter) (string, []any, error) {
	if err := b.perms.Check(role, ActionDelete, table); err != nil {
		return "", nil, err
	}
	if err := validIdent(table); err != nil {
		return "", nil, err
	}
	if len(filters) == 0 {
		return "", nil, ErrUnsafeStatement
	}

	builder := b.stmt.Delete(table)
	for _, filter := range filters {
		pred, err := filterPredicate(filter)
		if err != nil {
			return "", nil, err
		}
		builder = builder.Where(pred)
	}
	return builder.ToSql()
}

func (b *Builder) joinClause(role auth.Role, join Join) (string, error) {
	// Joined tables require select permission too.
	if err := b.perms.Check(role, ActionSelect, join.Table); err != nil {
		return "", err
	}
	if err := validIdent(join.Table); err != nil {
		return "", err
	}
	if err := validIdent(join.Left); err != nil {
		return "", err
	}
	if err := validIdent(join.Right); err != nil {
		return "", err
	}
	kind := "JOIN"
	switch join.Kind {
	case JoinLeft:
		kind = "LEFT JOIN"
	case JoinInner, "":
	default:
		return "", fmt.Errorf("dbquery: unknown join kind %q", join.Kind)
	}
	return fmt.Sprintf("%s %s ON %s = %s", kind, join.Table, join.Left, join.Right), nil
}

func applyFilters(builder sq.SelectBuilder, filters []Filter) (sq.SelectBuilder, error) {
	for _, filter := range filters {
		pred, err := filterPredicate(filter)
		if err != nil {
			return builder, err
		}
		builder = builder.Where(pred)
	}
	return builder, nil
}

func filterPredicate(filter Filter) (sq.Sqlizer, error) {
	if err := validIdent(filter.Column); err != nil {
		return nil, err
	}
	if err := validOp(filter.Op); err != nil {
		return nil, err
	}
	column := filter.Column

	switch filter.Op {
	case OpEq:
		return sq.Eq{column: filter.Value}, nil
	case OpNeq:
		return sq.NotEq{column: filter.Value}, nil
	case OpGt:
		return sq.Gt{column: filter.Value}, nil
	case OpGte:
		return sq.GtOrEq{column: filter.Value}, nil
	case OpLt:
		return sq.Lt{column: filter.Value}, nil
	case OpLte:
		return sq.LtOrEq{column: filter.Value}, nil
	case OpLike:
		return sq.Like{column: filter.Value}, nil
	case OpILike:
		return sq.ILike{column: filter.Value}, nil
	case OpIn:
		if emptyList(filter.Value) {
			return nil, ErrEmptyList
		}
		return sq.Eq{column: filter.Value}, nil
	case OpNotIn:
		if emptyList(filter.Value) {
			return nil, ErrEmptyList
		}
		return sq.NotEq{column: filter.Value}, nil
	case OpNull:
		return sq.Eq{column: nil}, nil
	case OpNotNull:
		return sq.NotEq{column: nil}, nil
	}
	return nil, fmt.Errorf("dbquery: unknown operator %q", filter.Op)
}

func emptyList(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return true
	}
	return rv.Len() == 0
}
