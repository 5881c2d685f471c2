package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Login for a wrong password.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Hasher defines password hashing contract.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher implements Hasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt-backed password hasher.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash converts plain password into hash.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare checks if provided password matches stored hash.
func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Authenticator checks the operator password and issues control tokens.
type Authenticator struct {
	hasher       Hasher
	passwordHash string
	tokens       *TokenService
}

// NewAuthenticator returns authenticator for the configured bcrypt hash.
func NewAuthenticator(hasher Hasher, passwordHash string, tokens *TokenService) *Authenticator {
	return &Authenticator{hasher: hasher, passwordHash: passwordHash, tokens: tokens}
}

// Login returns a bearer token when password matches.
func (a *Authenticator) Login(password string) (string, error) {
	if a.passwordHash == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	if err := a.hasher.Compare(a.passwordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.tokens.Issue("control")
}

// Tokens exposes the token service for request validation.
func (a *Authenticator) Tokens() *TokenService {
	return a.tokens
}
