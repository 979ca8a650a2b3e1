package memory

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
)

func newUser(name string) *model.User {
	return &model.User{
		ID:       uuid.Must(uuid.NewV4()),
		Username: name,
		Email:    name + "@example.com",
		Role:     model.RoleUser,
		IsActive: true,
	}
}

func TestUsers_UniqueAndCascade(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	users, tokens := s.Users(), s.Tokens()

	alice := newUser("alice")
	require.NoError(t, users.Create(ctx, alice))

	dup := newUser("alice")
	err := users.Create(ctx, dup)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	other := newUser("bob")
	other.Email = alice.Email
	var ce *errs.ConflictError
	require.ErrorAs(t, users.Create(ctx, other), &ce)
	require.Equal(t, "email", ce.Field)

	tok := &model.RefreshToken{ID: uuid.Must(uuid.NewV4()), Hash: "h1", UserID: alice.ID, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, tokens.Create(ctx, tok))

	require.NoError(t, users.Delete(ctx, alice.ID))
	_, err = tokens.Rotate(ctx, "h1", &model.RefreshToken{ID: uuid.Must(uuid.NewV4()), Hash: "h2"})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, users.Delete(ctx, alice.ID), errs.ErrNotFound)
}

func TestTokens_RotateOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(func() time.Time { return now })
	u := newUser("alice")
	require.NoError(t, s.Users().Create(ctx, u))
	require.NoError(t, s.Tokens().Create(ctx, &model.RefreshToken{
		ID: uuid.Must(uuid.NewV4()), Hash: "old", UserID: u.ID, ExpiresAt: now.Add(time.Hour),
	}))

	owner, err := s.Tokens().Rotate(ctx, "old", &model.RefreshToken{ID: uuid.Must(uuid.NewV4()), Hash: "new", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, u.ID, owner.ID)

	stored, live := s.Sessions(u.ID)
	require.Equal(t, 2, stored)
	require.Equal(t, 1, live)

	owner, err = s.Tokens().Rotate(ctx, "old", &model.RefreshToken{ID: uuid.Must(uuid.NewV4()), Hash: "other", ExpiresAt: now.Add(time.Hour)})
	require.ErrorIs(t, err, errs.ErrTokenReused)
	require.Equal(t, u.ID, owner.ID)

	n, err := s.Tokens().DeleteByUser(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
