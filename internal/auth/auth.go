// Package auth provides the external identity validator seam (ported from
// the teacher's internal/auth: Validator interface, HTTPValidator,
// sentinels) and API-key hashing for agent registration, grounded in
// moonhole-HoldemIJ's bcrypt-based session manager.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors returned by Validator implementations.
var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrUnavailable  = errors.New("auth: identity service unavailable")
)

// Identity is what a Validator resolves an external credential to.
type Identity struct {
	AgentID string `json:"agent_id"`
}

// Validator is the pluggable boundary between the table-runtime core and the
// out-of-scope identity/session-issuance system named in spec.md §1.
type Validator interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

// NoopValidator accepts any non-empty token and treats it as the agent ID
// itself; useful for local development and tests.
type NoopValidator struct{}

func (NoopValidator) Validate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{AgentID: token}, nil
}

// HTTPValidator calls out to an external identity service over HTTP.
type HTTPValidator struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPValidator(baseURL string) *HTTPValidator {
	return &HTTPValidator{BaseURL: baseURL, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (v *HTTPValidator) Validate(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.BaseURL+"/validate", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.Client.Do(req)
	if err != nil {
		return Identity{}, ErrUnavailable
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Identity{AgentID: token}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return Identity{}, ErrInvalidToken
	default:
		return Identity{}, ErrUnavailable
	}
}

// HashAPIKey hashes a freshly generated API key before it is persisted.
func HashAPIKey(key string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyAPIKey checks a presented key against its stored hash.
func VerifyAPIKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// GenerateAPIKey returns a new cryptographically random, URL-safe API key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
