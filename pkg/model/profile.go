package model

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps anything but "admin" to RoleUser.
func ParseRole(s string) Role {
	if s == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// Profile is the per-user role record.
type Profile struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// User is the identity behind an authenticated session.
type User struct {
	ID    string
	Email string
}

// AuthContext is the explicit session state handed to the components that
// act on behalf of a user.
type AuthContext struct {
	UserID string
	Email  string
	Role   Role
}

func (a AuthContext) Authenticated() bool { return a.UserID != "" }

func (a AuthContext) IsAdmin() bool { return a.Role == RoleAdmin }
