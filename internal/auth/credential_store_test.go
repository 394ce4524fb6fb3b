// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/mocks"
	"github.com/holomush/accounts/pkg/errutil"
)

func TestNewCredentialStore_NilDependencies(t *testing.T) {
	_, err := auth.NewCredentialStore(nil, newTestPolicy(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user repository is required")

	_, err = auth.NewCredentialStore(newMemUsers(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password policy is required")
}

func TestCredentialStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates active unprivileged user with hashed password", func(t *testing.T) {
		store := newTestStore(t, newMemUsers())

		user, err := store.Create(ctx, "alice@Example.COM", "alice", "correct-horse-battery")
		require.NoError(t, err)

		assert.Equal(t, "alice@example.com", user.Email)
		assert.True(t, user.IsActive)
		assert.False(t, user.IsStaff)
		assert.False(t, user.IsSuperuser)
		assert.NotEqual(t, "correct-horse-battery", user.PasswordHash)
		assert.True(t, store.VerifyPassword(user, "correct-horse-battery"))
	})

	t.Run("empty email fails validation", func(t *testing.T) {
		store := newTestStore(t, newMemUsers())

		_, err := store.Create(ctx, "  ", "alice", "correct-horse-battery")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
		assert.Contains(t, fieldErrors(t, err), "email")
	})

	t.Run("empty username fails validation", func(t *testing.T) {
		store := newTestStore(t, newMemUsers())

		_, err := store.Create(ctx, "alice@example.com", "", "correct-horse-battery")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
		assert.Contains(t, fieldErrors(t, err), "username")
	})

	t.Run("taken email and username are both reported", func(t *testing.T) {
		store := newTestStore(t, newMemUsers())
		mustCreateUser(t, store, "alice@example.com", "alice", "correct-horse-battery")

		_, err := store.Create(ctx, "ALICE@example.com", "Alice", "another-long-secret")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateIdentity)

		fields := fieldErrors(t, err)
		assert.Equal(t, []string{auth.MsgDuplicateEmail}, fields["email"])
		assert.Equal(t, []string{auth.MsgDuplicateUsername}, fields["username"])
	})

	t.Run("repository failure is wrapped", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		users.On("GetByEmail", ctx, "bob@example.com").Return(nil, errors.New("connection reset"))
		store := newTestStore(t, users)

		_, err := store.Create(ctx, "bob@example.com", "bob", "correct-horse-battery")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "check email")
	})

	t.Run("unique violation from repository passes through", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		users.On("GetByEmail", ctx, "bob@example.com").Return(nil, auth.ErrNotFound)
		users.On("GetByUsername", ctx, "bob").Return(nil, auth.ErrNotFound)
		users.On("Create", ctx, mock.AnythingOfType("*auth.User")).Return(auth.DuplicateUsernameError())
		store := newTestStore(t, users)

		_, err := store.Create(ctx, "bob@example.com", "bob", "correct-horse-battery")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateIdentity)
		assert.Contains(t, fieldErrors(t, err), "username")
	})
}

func TestCredentialStore_CreateSuperuser(t *testing.T) {
	store := newTestStore(t, newMemUsers())

	user, err := store.CreateSuperuser(context.Background(), "root@example.com", "root", "correct-horse-battery")
	require.NoError(t, err)

	assert.True(t, user.IsActive)
	assert.True(t, user.IsStaff)
	assert.True(t, user.IsSuperuser)
}

func TestCredentialStore_Find(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newMemUsers())
	created := mustCreateUser(t, store, "carol@example.com", "carol", "correct-horse-battery")

	byEmail, err := store.FindByEmail(ctx, " carol@EXAMPLE.com ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byUsername, err := store.FindByUsername(ctx, "CAROL")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUsername.ID)

	byID, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol", byID.Username)

	_, err = store.FindByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, auth.ErrNotFound))
}

func TestCredentialStore_VerifyPassword(t *testing.T) {
	store := newTestStore(t, newMemUsers())
	user := mustCreateUser(t, store, "dave@example.com", "dave", "correct-horse-battery")

	assert.True(t, store.VerifyPassword(user, "correct-horse-battery"))
	assert.False(t, store.VerifyPassword(user, "wrong-password"))
	assert.False(t, store.VerifyPassword(nil, "correct-horse-battery"))
	assert.False(t, store.VerifyPassword(&auth.User{PasswordHash: "garbage"}, "correct-horse-battery"))
	assert.False(t, store.VerifyPassword(&auth.User{}, ""))
}

func TestCredentialStore_SetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("stores new hash and updates user", func(t *testing.T) {
		users := newMemUsers()
		store := newTestStore(t, users)
		user := mustCreateUser(t, store, "erin@example.com", "erin", "correct-horse-battery")
		oldHash := user.PasswordHash

		require.NoError(t, store.SetPassword(ctx, user, "brand-new-secret"))
		assert.NotEqual(t, oldHash, user.PasswordHash)

		stored, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.PasswordHash, stored.PasswordHash)
		assert.True(t, store.VerifyPassword(stored, "brand-new-secret"))
		assert.False(t, store.VerifyPassword(stored, "correct-horse-battery"))
	})

	t.Run("repository failure leaves user untouched", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		store := newTestStore(t, users)
		user, err := auth.NewUser("erin@example.com", "erin")
		require.NoError(t, err)
		user.PasswordHash = "previous"

		users.On("UpdatePassword", ctx, user.ID, mock.AnythingOfType("string")).Return(errors.New("disk full"))

		err = store.SetPassword(ctx, user, "brand-new-secret")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_SET_PASSWORD_FAILED")
		assert.Equal(t, "previous", user.PasswordHash)
	})
}

func TestCredentialStore_Save(t *testing.T) {
	ctx := context.Background()
	users := mocks.NewMockUserRepository(t)
	store := newTestStore(t, users)
	user, err := auth.NewUser("frank@example.com", "frank")
	require.NoError(t, err)

	users.On("Update", ctx, user).Return(errors.New("timeout")).Once()
	err = store.Save(ctx, user)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "USER_SAVE_FAILED")

	users.On("Update", ctx, user).Return(nil).Once()
	assert.NoError(t, store.Save(ctx, user))
}
