package authstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testUser(id, username string) model.User {
	return model.User{
		ID:           id,
		Username:     username,
		Role:         model.RoleUser,
		Name:         "Test User",
		Phone:        "+55 11 99999-0000",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    time.Now().UTC(),
	}
}

func TestSQLiteUsers(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "gustavo")))

	byName, err := store.GetUserByUsername(ctx, "gustavo")
	require.NoError(t, err)
	assert.Equal(t, "u1", byName.ID)
	assert.Equal(t, model.RoleUser, byName.Role)
	assert.Equal(t, "$2a$10$hash", byName.PasswordHash)

	byID, err := store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "gustavo", byID.Username)
}

func TestSQLiteFixedZoneTimestampsRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	// The services stamp times in the box's fixed UTC-3 zone; reads must
	// still work.
	tz := time.FixedZone("", -3*3600)
	user := testUser("u1", "gustavo")
	user.CreatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, tz)
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUserByUsername(ctx, "gustavo")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(user.CreatedAt))

	got, err = store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(user.CreatedAt))

	expires := time.Date(2025, 3, 2, 12, 0, 0, 0, tz)
	require.NoError(t, store.CreateInvite(ctx, model.Invite{
		Token: "tok-tz", ExpiresAt: expires, MaxUses: 1,
	}))

	inv, err := store.GetInvite(ctx, "tok-tz")
	require.NoError(t, err)
	assert.True(t, inv.ExpiresAt.Equal(expires))
}

func TestSQLiteUserNotFound(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_, err := store.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = store.GetUserByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSQLiteDuplicateUsername(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "gustavo")))
	err := store.CreateUser(ctx, testUser("u2", "gustavo"))
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestSQLiteInviteLifecycle(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	inv := model.Invite{
		Token:     "tok-1",
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
		MaxUses:   2,
	}
	require.NoError(t, store.CreateInvite(ctx, inv))

	got, err := store.GetInvite(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxUses)
	assert.Equal(t, 0, got.Uses)
	assert.False(t, got.Used)

	require.NoError(t, store.ConsumeInvite(ctx, "tok-1"))
	require.NoError(t, store.ConsumeInvite(ctx, "tok-1"))

	err = store.ConsumeInvite(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrInviteConsumed)

	got, err = store.GetInvite(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Uses)
	assert.True(t, got.Used)
}

func TestSQLiteConsumeUnknownInvite(t *testing.T) {
	store := newSQLiteStore(t)

	err := store.ConsumeInvite(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInviteNotFound)
}

func TestSQLiteListAndRevokeInvites(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInvite(ctx, model.Invite{
		Token: "tok-a", ExpiresAt: time.Now().UTC().Add(time.Hour), MaxUses: 1,
	}))
	require.NoError(t, store.CreateInvite(ctx, model.Invite{
		Token: "tok-b", ExpiresAt: time.Now().UTC().Add(2 * time.Hour), MaxUses: 1,
	}))

	invites, err := store.ListInvites(ctx)
	require.NoError(t, err)
	require.Len(t, invites, 2)
	// Newest expiry first.
	assert.Equal(t, "tok-b", invites[0].Token)

	require.NoError(t, store.RevokeInvite(ctx, "tok-a"))
	err = store.RevokeInvite(ctx, "tok-a")
	assert.ErrorIs(t, err, ErrInviteNotFound)

	invites, err = store.ListInvites(ctx)
	require.NoError(t, err)
	assert.Len(t, invites, 1)
}

func TestSQLiteSubscriptions(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	sub := model.PushSubscription{
		Endpoint:  "https://push.example.com/abc",
		Keys:      model.SubscriptionKeys{P256DH: "p256", Auth: "auth"},
		CreatedBy: "gustavo",
	}
	require.NoError(t, store.SaveSubscription(ctx, sub))
	// Re-registering the same endpoint is a no-op, not an error.
	require.NoError(t, store.SaveSubscription(ctx, sub))

	subs, err := store.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "p256", subs[0].Keys.P256DH)
	assert.Equal(t, "gustavo", subs[0].CreatedBy)

	require.NoError(t, store.DeleteSubscription(ctx, sub.Endpoint))
	subs, err = store.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)
}
