package models

// User roles.
const (
	RoleAdmin = "admin"
	RoleBasic = "basic"
)

// User is the minimal account view the core needs for tag attribution and
// stop authorization. Account management itself lives outside this module.
type User struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
