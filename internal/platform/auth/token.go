package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer signs HS256 access tokens for staff logins.
type TokenIssuer struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
	now        func() time.Time
}

func NewTokenIssuer(signingKey []byte, issuer, audience string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{SigningKey: signingKey, Issuer: issuer, Audience: audience, TTL: ttl, now: time.Now}
}

// Issue returns a signed token for u scoped to clinicID and its expiry.
func (t *TokenIssuer) Issue(u *User, clinicID string) (string, time.Time, error) {
	if len(t.SigningKey) == 0 {
		return "", time.Time{}, fmt.Errorf("token signing key not configured")
	}
	now := t.now()
	exp := now.Add(t.TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(u.ID, 10),
			Issuer:    t.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		ClinicID: clinicID,
		Email:    u.Email,
		Roles:    u.Roles,
	}
	if t.Audience != "" {
		claims.Audience = jwt.ClaimStrings{t.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}
