package dbquery

import (
	"errors"
	"testing"

	"harborgrid-cloud/internal/auth"
)

func TestPermissions_ViewerReadOnly(t *testing.T) {
	perms := DefaultPermissions()

	if err := perms.Check(auth.RoleViewer, ActionSelect, "readings"); err != nil {
		t.Fatalf("viewer select readings: %v", err)
	}
	if err := perms.Check(auth.RoleViewer, ActionInsert, "readings"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("viewer insert should be denied, got %v", err)
	}
	if err := perms.Check(auth.RoleViewer, ActionSelect, "audit_logs"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("viewer select audit_logs should be denied, got %v", err)
	}
}

func TestPermissions_DeniedBeforeSQL(t *testing.T) {
	b := NewBuilder()
	_, _, err := b.BuildDelete(auth.RoleViewer, "tasks", []Filter{{Column: "id", Op: OpEq, Value: "x"}})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestPermissions_AdminWildcard(t *testing.T) {
	perms := DefaultPermissions()
	for _, table := range []string{"readings", "audit_logs", "anything_else"} {
		if err := perms.Check(auth.RoleAdmin, ActionDelete, table); err != nil {
			t.Fatalf("admin delete %s: %v", table, err)
		}
	}
}

func TestPermissions_GlobPatterns(t *testing.T) {
	perms := Permissions{
		auth.RoleViewer: {
			ActionSelect: {"forecast_*"},
		},
	}
	if err := perms.Check(auth.RoleViewer, ActionSelect, "forecast_pv"); err != nil {
		t.Fatalf("glob match failed: %v", err)
	}
	if err := perms.Check(auth.RoleViewer, ActionSelect, "readings"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected denial, got %v", err)
	}
}

func TestPermissions_UnknownRole(t *testing.T) {
	perms := DefaultPermissions()
	if err := perms.Check(auth.Role("ghost"), ActionSelect, "readings"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected denial, got %v", err)
	}
}

func TestPermissions_JoinedTableChecked(t *testing.T) {
	perms := Permissions{
		auth.RoleViewer: {ActionSelect: {"readings"}},
	}
	b := NewBuilder(WithPermissions(perms))
	_, _, err := b.BuildSelect(auth.RoleViewer, Query{
		Table: "readings",
		Joins: []Join{{Table: "audit_logs", Left: "readings.id", Right: "audit_logs.resource_id"}},
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected join table denial, got %v", err)
	}
}
