// Package dbquery builds parameterized SQL from structured query
// descriptions, gated by a static role/table permission map. It is the
// seam between API handlers (and the advisor agent's query tool) and the
// database: callers describe tables, filters, joins and aggregates, and
// the package produces SQL with dollar placeholders via squirrel.
//
// Values never appear in generated SQL; identifiers are validated before
// any SQL is produced.
package dbquery

import (
	"errors"
	"fmt"
	"regexp"
)

// Op is a filter operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpLike    Op = "like"
	OpILike   Op = "ilike"
	OpIn      Op = "in"
	OpNotIn   Op = "notin"
	OpNull    Op = "null"
	OpNotNull Op = "notnull"
)

// JoinKind selects the join type.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
)

// AggFunc is an aggregate function.
type AggFunc string

const (
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

// Filter is a single WHERE predicate.
type Filter struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value"`
}

// Join composes an additional table into a SELECT.
type Join struct {
	Table string   `json:"table"`
	Left  string   `json:"left"`  // qualified column on the existing side
	Right string   `json:"right"` // qualified column on the joined table
	Kind  JoinKind `json:"kind"`
}

// Query describes a SELECT.
type Query struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Filters []Filter `json:"filters"`
	Joins   []Join   `json:"joins"`
	OrderBy string   `json:"order_by"`
	Desc    bool     `json:"desc"`
	Limit   uint64   `json:"limit"`
	Offset  uint64   `json:"offset"`
}

// Aggregate describes an aggregate SELECT.
type Aggregate struct {
	Table   string   `json:"table"`
	Func    AggFunc  `json:"func"`
	Column  string   `json:"column"`
	GroupBy []string `json:"group_by"`
	Filters []Filter `json:"filters"`
}

var (
	// ErrPermissionDenied is returned before any SQL is built when the
	// role has no matching table pattern for the operation.
	ErrPermissionDenied = errors.New("dbquery: permission denied")
	// ErrInvalidIdentifier is returned for table or column names that
	// fail validation.
	ErrInvalidIdentifier = errors.New("dbquery: invalid identifier")
	// ErrUnsafeStatement is returned for UPDATE/DELETE without filters.
	ErrUnsafeStatement = errors.New("dbquery: refusing unfiltered mutation")
	// ErrEmptyList is returned for in/notin filters with no values.
	ErrEmptyList = errors.New("dbquery: empty list for in/notin")
)

// identPattern accepts bare and single-qualified SQL identifiers.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

func validIdents(names []string) error {
	for _, name := range names {
		if err := validIdent(name); err != nil {
			return err
		}
	}
	return nil
}

func validOp(op Op) error {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike, OpIn, OpNotIn, OpNull, OpNotNull:
		return nil
	default:
		return fmt.Errorf("dbquery: unknown operator %q", op)
	}
}

func validAggFunc(fn AggFunc) error {
	switch fn {
	case AggCount, AggSum, AggAvg, AggMin, AggMax:
		return nil
	default:
		return fmt.Errorf("dbquery: unknown aggregate %q", fn)
	}
}
