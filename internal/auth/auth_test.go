package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tesouraria/internal/store/memory"
)

func newTestService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	st := memory.New()
	t.Cleanup(func() { st.Close() })
	return NewService(st, "unit-test-signing-secret", ttl)
}

func TestService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	uid, err := svc.Register(ctx, "Tesoureiro@Example.com", "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	// Email lookup is case-insensitive.
	token, loginUID, err := svc.Login(ctx, "tesoureiro@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, uid, loginUID)
	require.NotEmpty(t, token)

	verifiedUID, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uid, verifiedUID)
}

func TestService_RegisterRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	_, err := svc.Register(ctx, "not-an-email", "hunter22")
	assert.Error(t, err)

	_, err = svc.Register(ctx, "a@b.com", "short")
	assert.Error(t, err)
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	_, err := svc.Register(ctx, "a@b.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "A@B.com", "different-pass")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	_, err := svc.Register(ctx, "a@b.com", "hunter22")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "a@b.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown email reports the same error as a wrong password.
	_, _, err = svc.Login(ctx, "nobody@b.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_VerifyRejectsTamperedToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	_, err := svc.Register(ctx, "a@b.com", "hunter22")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "a@b.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := newTestService(t, time.Hour)
	other.secret = []byte("a-completely-different-secret")
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_VerifyRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, -time.Minute)

	_, err := svc.Register(ctx, "a@b.com", "hunter22")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "a@b.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
