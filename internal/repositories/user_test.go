package repositories_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellness-todo/backend/internal/models"
	"wellness-todo/backend/internal/repositories"
)

func TestUserRepository_CreateAndFind(t *testing.T) {
	db, _ := setupRepo(t)
	repo := repositories.NewUserRepository(db)
	ctx := context.Background()

	hash, err := repositories.HashPassword("password123")
	require.NoError(t, err)

	created, err := repo.Create(ctx, &models.User{Username: "carol", Email: "carol@example.com", PasswordHash: hash})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user", created.Role)

	found, err := repo.FindByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.NoError(t, repositories.VerifyPassword(found.PasswordHash, "password123"))
	assert.Error(t, repositories.VerifyPassword(found.PasswordHash, "nope"))
}

func TestUserRepository_Errors(t *testing.T) {
	db, _ := setupRepo(t)
	repo := repositories.NewUserRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &models.User{Username: "dup", Email: "user-a@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, repositories.ErrDuplicateEmail)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}
