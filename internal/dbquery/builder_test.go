package dbquery

import (
	"errors"
	"testing"

	"harborgrid-cloud/internal/auth"
)

func TestBuildSelect_FiltersAndOrder(t *testing.T) {
	b := NewBuilder()
	sqlStr, args, err := b.BuildSelect(auth.RoleViewer, Query{
		Table:   "readings",
		Columns: []string{"ts", "value_numeric"},
		Filters: []Filter{
			{Column: "zone_id", Op: OpEq, Value: "zone-cold-1"},
			{Column: "value_numeric", Op: OpGt, Value: 4.5},
		},
		OrderBy: "ts",
		Desc:    true,
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("build select: %v", err)
	}
	want := "SELECT ts, value_numeric FROM readings WHERE zone_id = $1 AND value_numeric > $2 ORDER BY ts DESC LIMIT 10"
	if sqlStr != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sqlStr, want)
	}
	if len(args) != 2 || args[0] != "zone-cold-1" || args[1] != 4.5 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildSelect_Join(t *testing.T) {
	b := NewBuilder()
	sqlStr, _, err := b.BuildSelect(auth.RoleViewer, Query{
		Table:   "readings",
		Columns: []string{"readings.ts", "zones.name"},
		Joins: []Join{
			{Table: "zones", Left: "readings.zone_id", Right: "zones.id", Kind: JoinLeft},
		},
		Filters: []Filter{{Column: "readings.point_key", Op: OpEq, Value: "temp_c"}},
	})
	if err != nil {
		t.Fatalf("build select: %v", err)
	}
	want := "SELECT readings.ts, zones.name FROM readings LEFT JOIN zones ON readings.zone_id = zones.id WHERE readings.point_key = $1"
	if sqlStr != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sqlStr, want)
	}
}

func TestBuildSelect_InOperator(t *testing.T) {
	b := NewBuilder()
	sqlStr, args, err := b.BuildSelect(auth.RoleViewer, Query{
		Table:   "readings",
		Filters: []Filter{{Column: "point_key", Op: OpIn, Value: []any{"temp_c", "humidity_pct"}}},
	})
	if err != nil {
		t.Fatalf("build select: %v", err)
	}
	want := "SELECT * FROM readings WHERE point_key IN ($1,$2)"
	if sqlStr != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sqlStr, want)
	}
	if len(args) != 2 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildSelect_EmptyInRejected(t *testing.T) {
	b := NewBuilder()
	_, _, err := b.BuildSelect(auth.RoleViewer, Query{
		Table:   "readings",
		Filters: []Filter{{Column: "point_key", Op: OpIn, Value: []any{}}},
	})
	if !errors.Is(err, ErrEmptyList) {
		t.Fatalf("expected ErrEmptyList, got %v", err)
	}
}

func TestBuildSelect_InvalidIdentifierRejected(t *testing.T) {
	b := NewBuilder()
	cases := []Query{
		{Table: "readings; DROP TABLE readings"},
		{Table: "readings", Columns: []string{"ts, (SELECT 1)"}},
		{Table: "readings", OrderBy: "ts; --"},
		{Table: "readings", Filters: []Filter{{Column: "1=1 OR x", Op: OpEq, Value: 1}}},
	}
	for _, q := range cases {
		if _, _, err := b.BuildSelect(auth.RoleAdmin, q); !errors.Is(err, ErrInvalidIdentifier) {
			t.Fatalf("query %+v: expected ErrInvalidIdentifier, got %v", q, err)
		}
	}
}

func TestBuildAggregate_GroupBy(t *testing.T) {
	b := NewBuilder()
	sqlStr, args, err := b.BuildAggregate(auth.RoleViewer, Aggregate{
		Table:   "readings",
		Func:    AggSum,
		Column:  "value_numeric",
		GroupBy: []string{"zone_id"},
		Filters: []Filter{{Column: "ts", Op: OpGte, Value: "2026-08-01"}},
	})
	if err != nil {
		t.Fatalf("build aggregate: %v", err)
	}
	want := "SELECT zone_id, SUM(value_numeric) AS value FROM readings WHERE ts >= $1 GROUP BY zone_id ORDER BY zone_id"
	if sqlStr != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sqlStr, want)
	}
	if len(args) != 1 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildAggregate_CountWithoutColumn(t *testing.T) {
	b := NewBuilder()
	sqlStr, _, err := b.BuildAggregate(auth.RoleViewer, Aggregate{Table: "notifications", Func: AggCount})
	if err != nil {
		t.Fatalf("build aggregate: %v", err)
	}
	want := "SELECT COUNT(*) AS value FROM notifications"
	if sqlStr != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sqlStr, want)
	}
}

func TestBuildInsert_DeterministicColumnOrder(t *testing.T) {
	b := NewBuilder()
	sqlStr, args, err := b.BuildInsert(auth.RoleOperator, "tasks", map[string]any{
		"title": "defrost evaporator",
		"id":    "task-1",
	})
	if err != nil {
		t.Fatalf("build insert: %v", err)
	}
	want := "INSERT INTO tasks (id,title) VALUES ($1,$2)"
	if sqlStr != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sqlStr, want)
	}
	if args[0] != "task-1" || args[1] != "defrost evaporator" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildUpdate_RequiresFilter(t *testing.T) {
	b := NewBuilder()
	_, _, err := b.BuildUpdate(auth.RoleOperator, "tasks", map[string]any{"status": "done"}, nil)
	if !errors.Is(err, ErrUnsafeStatement) {
		t.Fatalf("expected ErrUnsafeStatement, got %v", err)
	}

	sqlStr, _, err := b.BuildUpdate(auth.RoleOperator, "tasks", map[string]any{"status": "done"},
		[]Filter{{Column: "id", Op: OpEq, Value: "task-1"}})
	if err != nil {
		t.Fatalf("build update: %v", err)
	}
	want := "UPDATE tasks SET status = $1 WHERE id = $2"
	if sqlStr != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sqlStr, want)
	}
}

func TestBuildDelete_RequiresFilter(t *testing.T) {
	b := NewBuilder()
	_, _, err := b.BuildDelete(auth.RoleOperator, "tasks", nil)
	if !errors.Is(err, ErrUnsafeStatement) {
		t.Fatalf("expected ErrUnsafeStatement, got %v", err)
	}

	sqlStr, _, err := b.BuildDelete(auth.RoleOperator, "tasks", []Filter{{Column: "id", Op: OpEq, Value: "task-1"}})
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	want := "DELETE FROM tasks WHERE id = $1"
	if sqlStr != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sqlStr, want)
	}
}

func TestBuildSelect_NullOperators(t *testing.T) {
	b := NewBuilder()
	sqlStr, args, err := b.BuildSelect(auth.RoleViewer, Query{
		Table:   "notifications",
		Filters: []Filter{{Column: "acked_at", Op: OpNull}},
	})
	if err != nil {
		t.Fatalf("build select: %v", err)
	}
	want := "SELECT * FROM notifications WHERE acked_at IS NULL"
	if sqlStr != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sqlStr, want)
	}
	if len(args) != 0 {
		t.Fatalf("unexpected args: %v", args)
	}
}
