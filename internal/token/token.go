// Package token mints short-lived platform JWTs for outbound API calls.
//
// The telephony platform authenticates the risk-scoring and recording-fetch
// endpoints with an RS256 JWT carrying the application ID. Tokens are minted
// on demand and cached until shortly before expiry.
package token

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbd888/callgate/internal/idgen"
)

// TokenTTL is the lifetime of a minted token.
const TokenTTL = 24 * time.Hour

// refreshMargin is how long before expiry a cached token is discarded.
const refreshMargin = 5 * time.Minute

// Minter produces signed platform tokens.
type Minter struct {
	applicationID string
	key           *rsa.PrivateKey
	now           func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewMinter creates a Minter from an application ID and a private key.
// keyMaterial is either a PEM-encoded RSA key or a path to a PEM file.
func NewMinter(applicationID, keyMaterial string) (*Minter, error) {
	if applicationID == "" {
		return nil, fmt.Errorf("token: application ID is required")
	}

	pemBytes := []byte(keyMaterial)
	if !strings.Contains(keyMaterial, "-----BEGIN") {
		b, err := os.ReadFile(keyMaterial)
		if err != nil {
			return nil, fmt.Errorf("token: read private key file: %w", err)
		}
		pemBytes = b
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("token: parse private key: %w", err)
	}

	return &Minter{
		applicationID: applicationID,
		key:           key,
		now:           time.Now,
	}, nil
}

// WithClock overrides the time source (for testing).
func (m *Minter) WithClock(now func() time.Time) *Minter {
	m.now = now
	return m
}

// Mint returns a signed token, reusing the cached one while it remains
// comfortably within its lifetime.
func (m *Minter) Mint() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.cached != "" && now.Before(m.expiresAt.Add(-refreshMargin)) {
		return m.cached, nil
	}

	expiresAt := now.Add(TokenTTL)
	claims := jwt.MapClaims{
		"application_id": m.applicationID,
		"iat":            now.Unix(),
		"exp":            expiresAt.Unix(),
		"jti":            idgen.New(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}

	m.cached = signed
	m.expiresAt = expiresAt
	return signed, nil
}
