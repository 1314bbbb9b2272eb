package authn

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// TokenPrefix identifies authcore session tokens
	TokenPrefix = "cadence_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// GenerateToken creates a new opaque session token.
// Format: cadence_<base64url(32 random bytes)>; the SHA-256 hex hash
// is what gets stored, never the token itself.
func GenerateToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return token, HashToken(token), nil
}

// HashToken computes the SHA-256 hash of a token for lookup.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct shape before
// any store lookup happens.
func ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	if encoded == "" {
		return fmt.Errorf("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

type tokenRecord struct {
	identity  Identity
	expiresAt time.Time
	revoked   bool
}

// TokenAuthenticator authenticates opaque session tokens held in
// memory. It backs local development and tests; production deployments
// authenticate through the OIDC authenticator instead.
type TokenAuthenticator struct {
	mu     sync.RWMutex
	tokens map[string]*tokenRecord // keyed by token hash
}

// NewTokenAuthenticator creates an empty token authenticator.
func NewTokenAuthenticator() *TokenAuthenticator {
	return &TokenAuthenticator{tokens: make(map[string]*tokenRecord)}
}

// Issue mints a session token for identity with the given lifetime.
// A zero ttl means the token never expires.
func (ta *TokenAuthenticator) Issue(identity Identity, ttl time.Duration) (string, error) {
	token, hash, err := GenerateToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	identity.IssuedAt = &now
	rec := &tokenRecord{identity: identity}
	if ttl > 0 {
		rec.expiresAt = now.Add(ttl)
	}

	ta.mu.Lock()
	ta.tokens[hash] = rec
	ta.mu.Unlock()
	return token, nil
}

// Revoke invalidates a previously issued token.
func (ta *TokenAuthenticator) Revoke(token string) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	if rec, ok := ta.tokens[HashToken(token)]; ok {
		rec.revoked = true
	}
}

// Authenticate implements Authenticator.
func (ta *TokenAuthenticator) Authenticate(_ context.Context, credential string) (*Identity, error) {
	if err := ValidateTokenFormat(credential); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	ta.mu.RLock()
	rec, ok := ta.tokens[HashToken(credential)]
	ta.mu.RUnlock()

	if !ok || rec.revoked {
		return nil, ErrUnauthenticated
	}
	if !rec.expiresAt.IsZero() && time.Now().After(rec.expiresAt) {
		return nil, ErrUnauthenticated
	}

	identity := rec.identity
	return &identity, nil
}
