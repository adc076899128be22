package webhook

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/parallel-dialer/internal/config"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
)

func newTestVerifier(maxAge time.Duration) *Verifier {
	return NewVerifier(config.WebhookConfig{
		SigningSecret: "test-secret",
		MaxTokenAge:   maxAge,
	})
}

func TestVerifyRoundTrip(t *testing.T) {
	v := newTestVerifier(time.Minute)

	token, err := v.Sign("tenant-1", "user-1")
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	other := NewVerifier(config.WebhookConfig{SigningSecret: "other-secret"})
	token, err := other.Sign("tenant-1", "user-1")
	require.NoError(t, err)

	_, err = newTestVerifier(time.Minute).Verify(token)
	assert.True(t, apperrors.Is(err, apperrors.ErrWebhookAuth))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := newTestVerifier(time.Minute).Verify("not-a-token")
	assert.True(t, apperrors.Is(err, apperrors.ErrWebhookAuth))
}

func TestVerifyRejectsStaleToken(t *testing.T) {
	v := newTestVerifier(time.Minute)

	claims := Claims{
		TenantID: "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.True(t, apperrors.Is(err, apperrors.ErrWebhookAuth))
}

func TestVerifyRejectsMissingIssuedAt(t *testing.T) {
	v := newTestVerifier(time.Minute)

	claims := Claims{TenantID: "tenant-1"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.True(t, apperrors.Is(err, apperrors.ErrWebhookAuth))
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	v := newTestVerifier(time.Minute)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		TenantID: "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.True(t, apperrors.Is(err, apperrors.ErrWebhookAuth))
}
