// Package phone verifies phone-authentication tokens minted by an external
// identity provider, returning the phone number the token attests to.
package phone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JavaBool/votely/internal/config"
)

// ErrInvalidToken is returned when the provider rejects the token or it
// attests to no phone number.
var ErrInvalidToken = errors.New("invalid phone token")

// Verifier checks a phone-authentication token and returns the attested
// phone number.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (string, error)
}

// HTTPVerifier verifies tokens against the provider's account-lookup REST
// endpoint.
type HTTPVerifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPVerifier creates a verifier from the phone provider configuration.
func NewHTTPVerifier(cfg config.PhoneConfig) *HTTPVerifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPVerifier{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type lookupRequest struct {
	IDToken string `json:"idToken"`
}

type lookupResponse struct {
	Users []struct {
		PhoneNumber string `json:"phoneNumber"`
	} `json:"users"`
}

// Verify posts the token to the provider and extracts the phone number.
func (v *HTTPVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	body, err := json.Marshal(lookupRequest{IDToken: idToken})
	if err != nil {
		return "", fmt.Errorf("failed to encode lookup request: %w", err)
	}

	url := v.endpoint + "?key=" + v.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("phone provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ErrInvalidToken
	}

	var lookup lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return "", fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if len(lookup.Users) == 0 || lookup.Users[0].PhoneNumber == "" {
		return "", ErrInvalidToken
	}

	return lookup.Users[0].PhoneNumber, nil
}
