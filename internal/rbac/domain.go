package rbac

import "strings"

// Role is the dashboard visibility level of a user.
type Role string

const (
	RoleAgent      Role = "AGENT"
	RolePres       Role = "PRES"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// AllRegions is the region value granting a PRES user national visibility.
const AllRegions = "NATIONAL"

// ParseRole normalizes a stored role name. Unknown names are kept as-is so
// callers can tell them apart with Known.
func ParseRole(v string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(v)))
}

// Known reports whether r is one of the defined roles.
func (r Role) Known() bool {
	switch r {
	case RoleAgent, RolePres, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r sees and manages the whole network.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User is the authenticated actor a dashboard view is scoped for.
type User struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Region string `json:"region,omitempty"`
	Site   string `json:"site,omitempty"`
}
