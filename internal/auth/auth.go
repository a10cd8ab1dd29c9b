// Package auth verifies the bearer tokens minted by the identity
// provider in front of this service. Tokens are HS256 JWTs whose
// subject is the affiliate id.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/agnuslink/agnuslink/internal/affctx"
	"github.com/agnuslink/agnuslink/internal/config"
	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
)

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrMissingToken = errors.New("missing_token")
)

type Claims struct {
	AffiliateID snowflake.ID
	Role        string
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

var Module = fx.Module("auth",
	fx.Provide(NewVerifier),
)

func NewVerifier(cfg config.Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func (v *Verifier) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	affiliateID, err := snowflake.ParseString(claims.Subject)
	if err != nil || affiliateID == 0 {
		return Claims{}, ErrInvalidToken
	}

	role := claims.Role
	if role == "" {
		role = affctx.RoleAffiliate
	}
	return Claims{AffiliateID: affiliateID, Role: role}, nil
}

// Sign mints a token for the given claims. Used by tests and local
// tooling; production tokens come from the identity provider.
func (v *Verifier) Sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.AffiliateID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}
