package auth

import "time"

// Role classifies what an account is allowed to do.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Account represents a login identity.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile carries the reader-facing attributes linked to an account.
type Profile struct {
	UserID    string
	FirstName string
	LastName  string
	Grade     string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName renders the profile's public name; falls back to "Anonymous".
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	default:
		return "Anonymous"
	}
}

// Principal is an authenticated account with its resolved roles.
type Principal struct {
	Account Account
	Profile Profile
	Roles   []string
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin is a convenience wrapper used by the admin handlers.
func (p Principal) IsAdmin() bool { return p.HasRole(RoleAdmin) }
