package phone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaBool/votely/internal/config"
)

func newTestVerifier(handler http.HandlerFunc) (*HTTPVerifier, *httptest.Server) {
	srv := httptest.NewServer(handler)
	v := NewHTTPVerifier(config.PhoneConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
	})
	return v, srv
}

func TestVerifyReturnsPhoneNumber(t *testing.T) {
	v, srv := newTestVerifier(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "good-token", req["idToken"])

		json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]string{{"phoneNumber": "+15551230000"}},
		})
	})
	defer srv.Close()

	number, err := v.Verify(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "+15551230000", number)
}

func TestVerifyRejectedToken(t *testing.T) {
	v, srv := newTestVerifier(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	defer srv.Close()

	_, err := v.Verify(context.Background(), "bad-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenWithoutPhone(t *testing.T) {
	v, srv := newTestVerifier(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"users": []map[string]string{}})
	})
	defer srv.Close()

	_, err := v.Verify(context.Background(), "email-only-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
