package webhook

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/acme/parallel-dialer/internal/config"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
)

// Claims identify the tenant that owns an inbound provider callback.
type Claims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier validates signed, time-bounded webhook tokens. Verification fails
// closed: any parse, signature, or age problem rejects the event.
type Verifier struct {
	secret []byte
	maxAge time.Duration
}

// NewVerifier constructs a verifier from configuration.
func NewVerifier(cfg config.WebhookConfig) *Verifier {
	maxAge := cfg.MaxTokenAge
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &Verifier{secret: []byte(cfg.SigningSecret), maxAge: maxAge}
}

// Verify parses the token and returns the owning tenant claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrWebhookAuth, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperrors.ErrWebhookAuth)
	}

	issued := claims.IssuedAt
	if issued == nil {
		return nil, fmt.Errorf("%w: token missing iat", apperrors.ErrWebhookAuth)
	}
	if time.Since(issued.Time) > v.maxAge {
		return nil, fmt.Errorf("%w: token older than %s", apperrors.ErrWebhookAuth, v.maxAge)
	}

	return claims, nil
}

// Sign issues a token for outbound notifications and tests.
func (v *Verifier) Sign(tenantID, userID string) (string, error) {
	claims := Claims{
		TenantID: tenantID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(v.maxAge)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
