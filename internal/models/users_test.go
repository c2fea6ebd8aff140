package models

import (
	"testing"

	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserAndAuthenticate(t *testing.T) {
	db := setupTestDB(t)

	user, err := CreateUser(db, "Responder@Example.com", "secret1", constants.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "responder@example.com", user.Email)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	got, err := Authenticate(db, "responder@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = Authenticate(db, "responder@example.com", "wrong")
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	_, err = Authenticate(db, "nobody@example.com", "secret1")
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestCreateUserValidation(t *testing.T) {
	db := setupTestDB(t)

	_, err := CreateUser(db, "not-an-email", "secret1", constants.RoleUser)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	_, err = CreateUser(db, "a@example.com", "123", constants.RoleUser)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	_, err = CreateUser(db, "a@example.com", "secret1", "root")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = CreateUser(db, "a@example.com", "secret1", constants.RoleUser)
	require.NoError(t, err)
	_, err = CreateUser(db, "a@example.com", "secret1", constants.RoleUser)
	assert.Equal(t, "User with this email already exists", errors.GetMessage(err))
}

func TestEnsureAdminCreatesThenPromotes(t *testing.T) {
	db := setupTestDB(t)

	admin, created, err := EnsureAdmin(db, "admin@example.com", "secret1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, admin.IsAdmin())

	_, created, err = EnsureAdmin(db, "admin@example.com", "secret1")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = CreateUser(db, "ops@example.com", "secret1", constants.RoleUser)
	require.NoError(t, err)
	promoted, created, err := EnsureAdmin(db, "ops@example.com", "ignored")
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, promoted.IsAdmin())
}
