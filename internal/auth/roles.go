package auth

// Role is the access level carried in a token's role claim.
type Role string

// The ladder is ordered: each role covers everything below it. Viewers
// read runtime and consumption data, operators additionally drive
// actuators and edit fuel and equipment logs, supervisors cover every
// surface the service exposes.
const (
	RoleViewer     Role = "viewer"
	RoleOperator   Role = "operator"
	RoleSupervisor Role = "supervisor"
)

var roleLadder = []Role{RoleViewer, RoleOperator, RoleSupervisor}

// NormalizeRole maps a raw claim value onto a known role. Unknown
// values are rejected rather than defaulted.
func NormalizeRole(value string) (Role, bool) {
	role := Role(value)
	if roleRank(role) == 0 {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role covers the required level.
func RoleAtLeast(role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	for i, r := range roleLadder {
		if r == role {
			return i + 1
		}
	}
	return 0
}
