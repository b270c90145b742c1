// Package auth defines the identity verification boundary. The hub never
// issues or inspects credentials itself; it hands the bearer token to a
// Verifier and receives a user id back.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInvalidToken is returned when the token is missing, expired, or unknown
// to the verifier.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Static maps fixed tokens to user ids. It backs development setups and
// tests; an empty Static rejects everyone.
type Static map[string]string

// Verify looks the token up in the map.
func (s Static) Verify(_ context.Context, token string) (string, error) {
	if userID, ok := s[token]; ok && userID != "" {
		return userID, nil
	}
	return "", ErrInvalidToken
}

// HTTP verifies tokens against an external endpoint. The endpoint receives
// {"token": "..."} and answers 200 with {"userId": "..."} for valid tokens,
// or 401/403 for invalid ones.
type HTTP struct {
	endpoint string
	client   *http.Client
}

// NewHTTP builds a verifier for the given endpoint URL.
func NewHTTP(endpoint string) *HTTP {
	return &HTTP{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID string `json:"userId"`
}

// Verify posts the token to the endpoint and returns the resolved user id.
// Endpoint outages surface as ordinary errors, distinct from ErrInvalidToken,
// so callers can tell a rejected token from an unreachable verifier.
func (v *HTTP) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return "", fmt.Errorf("auth: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("auth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: verify request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		var result verifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", fmt.Errorf("auth: decode response: %w", err)
		}
		if result.UserID == "" {
			return "", ErrInvalidToken
		}
		return result.UserID, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrInvalidToken
	default:
		return "", fmt.Errorf("auth: verify endpoint returned %d", resp.StatusCode)
	}
}
