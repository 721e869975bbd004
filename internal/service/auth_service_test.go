package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pennywise/internal/apperr"
	"pennywise/internal/repository/sqlite"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAuthService(sqlite.NewUserStore(db), "test-secret", zap.NewNop())
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)

	u, err := svc.Register(ctx, " Alice@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, "alice@example.com", "another one")
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})

	t.Run("login yields a token for the user", func(t *testing.T) {
		token, err := svc.Login(ctx, "ALICE@example.com", "correct horse")
		require.NoError(t, err)
		owner, err := svc.Authenticate(token)
		require.NoError(t, err)
		assert.Equal(t, u.ID, owner)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice@example.com", "wrong password")
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, "bob@example.com", "correct horse")
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	})

	t.Run("bad token", func(t *testing.T) {
		_, err := svc.Authenticate("not-a-jwt")
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	})
}

func TestRegisterValidation(t *testing.T) {
	svc := newAuthService(t)
	_, err := svc.Register(context.Background(), "not-an-email", "long enough")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.Register(context.Background(), "c@example.com", "short")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
