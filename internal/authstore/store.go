// Package authstore persists accounts, invites and push subscriptions.
package authstore

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

// Sentinel errors shared by both drivers.
var (
	ErrUserNotFound   = eris.New("authstore: user not found")
	ErrDuplicateUser  = eris.New("authstore: username already taken")
	ErrInviteNotFound = eris.New("authstore: invite not found")
	ErrInviteConsumed = eris.New("authstore: invite has no uses left")
)

// Store defines the persistence interface for the account database.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user model.User) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// Invites
	CreateInvite(ctx context.Context, invite model.Invite) error
	GetInvite(ctx context.Context, token string) (*model.Invite, error)
	ListInvites(ctx context.Context) ([]model.Invite, error)
	RevokeInvite(ctx context.Context, token string) error
	// ConsumeInvite atomically increments the use counter; it fails with
	// ErrInviteConsumed once max uses is reached.
	ConsumeInvite(ctx context.Context, token string) error

	// Push subscriptions
	SaveSubscription(ctx context.Context, sub model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open selects a driver by name. "sqlite" takes a file path, "postgres" a
// connection string.
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(databaseURL)
	case "postgres":
		return NewPostgres(ctx, databaseURL)
	default:
		return nil, eris.Errorf("authstore: unknown driver %q", driver)
	}
}
