package auth

// Role is a facility staff role. Viewers read dashboards, operators
// additionally manage alert rules, acknowledgements and tasks, admins
// may touch everything including raw query mutations.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// roleRanks orders the ladder; unknown roles rank below viewer.
var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole maps a claim string onto the role ladder. The second
// return is false for roles this service does not know.
func NormalizeRole(value string) (Role, bool) {
	role := Role(value)
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role meets or exceeds required.
func RoleAtLeast(role Role, required Role) bool {
	return roleRanks[role] >= roleRanks[required]
}
