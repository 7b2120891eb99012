package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	CreateAccount(ctx context.Context, acc *Account, profile *Profile) error
	FindAccount(ctx context.Context, id string) (*Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	Profile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, profile *Profile) error
	ListProfiles(ctx context.Context) ([]*Profile, error)
	RolesForUser(ctx context.Context, userID string) ([]string, error)
	SetRole(ctx context.Context, userID, role string) error
}
