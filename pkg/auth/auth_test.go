package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robopay/pkg/logger"
)

const testSecret = "test-secret-that-is-long-enough"

func signed(t *testing.T, secret, subject string, expiry time.Time) string {
	t.Helper()
	token, err := NewValidator(secret).Sign(jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiry),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	require.NoError(t, err)
	return token
}

func serve(t *testing.T, v *Validator, path, authorization string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var payer string
	handler := Middleware(v, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payer, _ = PayerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, payer
}

func TestMiddleware_ValidToken(t *testing.T) {
	token := signed(t, testSecret, "user-123", time.Now().Add(time.Hour))

	rec, payer := serve(t, NewValidator(testSecret), "/api/v1/payments/verify", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-123", payer)
}

func TestMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name          string
		validator     *Validator
		authorization string
	}{
		{"missing header", NewValidator(testSecret), ""},
		{"wrong scheme", NewValidator(testSecret), "Basic dXNlcjpwYXNz"},
		{"expired", NewValidator(testSecret), "Bearer " + signed(t, testSecret, "u", time.Now().Add(-time.Minute))},
		{"wrong secret", NewValidator(testSecret), "Bearer " + signed(t, "another-secret", "u", time.Now().Add(time.Hour))},
		{"no subject", NewValidator(testSecret), "Bearer " + signed(t, testSecret, "", time.Now().Add(time.Hour))},
		{"garbage", NewValidator(testSecret), "Bearer not.a.jwt"},
		{"no validator", nil, "Bearer " + signed(t, testSecret, "u", time.Now().Add(time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, payer := serve(t, tt.validator, "/api/v1/robots/r1/execute", tt.authorization)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, payer)
		})
	}
}

func TestMiddleware_PublicPaths(t *testing.T) {
	for _, path := range []string{"/health", "/ready", "/api/v1/robots/r1/availability"} {
		rec, _ := serve(t, NewValidator(testSecret), path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec, _ := serve(t, NewValidator(testSecret), "/api/v1/robots/r1/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidator_RejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "u"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewValidator(testSecret).Validate(token)
	assert.Error(t, err)
}
