package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorSubject is the only principal of the control API.
const OperatorSubject = "operator"

// Claims represents the control API token payload.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
	now       func() time.Time
}

// NewTokenService returns configured token service.
func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return &TokenService{secret: []byte(secret), expiresIn: expiresIn, now: time.Now}
}

// Issue signs a token for the operator.
func (t *TokenService) Issue(scope string) (string, error) {
	if len(t.secret) == 0 {
		return "", errors.New("token: secret is not configured")
	}
	now := t.now().UTC()
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   OperatorSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiresIn)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate verifies and decodes a token.
func (t *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("token: unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Subject == OperatorSubject {
		return claims, nil
	}
	return nil, errors.New("token: invalid claims")
}
