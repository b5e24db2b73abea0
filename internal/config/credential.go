package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredential is returned when no bearer token has been stored.
var ErrNoCredential = errors.New("no stored credential; run `prepgen login --token <token>`")

const (
	keychainService = "prepgen"
	keychainAccount = "access_token"
)

// Keychain stores the backend bearer token in the platform secret store:
// macOS Keychain on darwin, $XDG_DATA_HOME/prepgen/secrets.json elsewhere.
type Keychain struct {
	service string
	account string
}

func NewKeychain() *Keychain {
	return &Keychain{service: keychainService, account: keychainAccount}
}

// Token returns the stored bearer token or ErrNoCredential.
func (k *Keychain) Token() (string, error) {
	out, err := keychainGet(k.service, k.account)
	if err != nil {
		return "", fmt.Errorf("%w (%v)", ErrNoCredential, err)
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (k *Keychain) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	if err := keychainSet(k.service, k.account, token); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// ClearToken removes the stored token. Clearing an absent token is not an error.
func (k *Keychain) ClearToken() error {
	if err := keychainDelete(k.service, k.account); err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}
	return nil
}

// TokenExpiry reads the exp claim of a JWT bearer token without verifying
// its signature. ok is false for opaque tokens or tokens without exp.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	date, err := parsed.Claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}
