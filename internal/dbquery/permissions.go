package dbquery

import (
	"fmt"
	"path"

	"harborgrid-cloud/internal/auth"
)

// Action is a query operation class for permission checks.
type Action string

const (
	ActionSelect Action = "select"
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Permissions maps role -> action -> allowed table glob patterns.
type Permissions map[auth.Role]map[Action][]string

// DefaultPermissions returns the built-in permission table.
//
// Viewers read dashboard data. Operators additionally write alert rules,
// notifications and tasks. Admins may touch any table.
func DefaultPermissions() Permissions {
	return Permissions{
		auth.RoleViewer: {
			ActionSelect: {"readings", "forecast_pv", "alert_rules", "notifications", "tasks", "zones"},
		},
		auth.RoleOperator: {
			ActionSelect: {"readings", "forecast_pv", "alert_rules", "notifications", "tasks", "zones"},
			ActionInsert: {"alert_rules", "tasks"},
			ActionUpdate: {"alert_rules", "notifications", "tasks"},
			ActionDelete: {"alert_rules", "tasks"},
		},
		auth.RoleAdmin: {
			ActionSelect: {"*"},
			ActionInsert: {"*"},
			ActionUpdate: {"*"},
			ActionDelete: {"*"},
		},
	}
}

// Check returns nil when the role may perform action on table.
// Patterns are shell globs matched against the bare table name.
func (p Permissions) Check(role auth.Role, action Action, table string) error {
	if p == nil {
		return fmt.Errorf("%w: no permission table", ErrPermissionDenied)
	}
	actions, ok := p[role]
	if !ok {
		return fmt.Errorf("%w: role=%s", ErrPermissionDenied, role)
	}
	patterns, ok := actions[action]
	if !ok {
		return fmt.Errorf("%w: role=%s action=%s", ErrPermissionDenied, role, action)
	}
	for _, pattern := range patterns {
		if matched, err := path.Match(pattern, table); err == nil && matched {
			return nil
		}
	}
	return fmt.Errorf("%w: role=%s action=%s table=%s", ErrPermissionDenied, role, action, table)
}

// Allowed reports whether the role may perform action on table.
func (p Permissions) Allowed(role auth.Role, action Action, table string) bool {
	return p.Check(role, action, table) == nil
}
