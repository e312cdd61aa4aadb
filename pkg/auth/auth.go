package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "robopay/pkg/errors"
	httputil "robopay/pkg/http"
	"robopay/pkg/logger"
)

type contextKey struct{}

var ErrMissingSubject = errors.New("token subject is required")

// Validator checks HS256 bearer tokens. The subject claim identifies the payer.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

func (v *Validator) Validate(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// Sign issues a token for subject. Used by tooling and tests.
func (v *Validator) Sign(claims jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func WithPayer(ctx context.Context, payer string) context.Context {
	return context.WithValue(ctx, contextKey{}, payer)
}

func PayerFromContext(ctx context.Context) (string, bool) {
	payer, ok := ctx.Value(contextKey{}).(string)
	return payer, ok && payer != ""
}

// IsPublicPath reports the routes reachable without a token.
func IsPublicPath(path string) bool {
	switch path {
	case "/health", "/ready":
		return true
	}
	return strings.HasPrefix(path, "/api/v1/robots/") && strings.HasSuffix(path, "/availability")
}

// Middleware rejects requests without a valid bearer token, except public paths.
// A nil validator rejects every non-public request.
func Middleware(validator *Validator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			unauthorized := func(message string) {
				if err := httputil.WriteError(w, apperrors.Unauthorized(message)); err != nil {
					log.Error("failed to write error response", "handler", "Auth", "operation", "WriteError", "error", err)
				}
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized("Missing Authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized("Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if validator == nil {
				unauthorized("Authentication not configured")
				return
			}

			payer, err := validator.Validate(parts[1])
			if err != nil {
				log.Debug("Rejected bearer token", "path", r.URL.Path, "error", err)
				unauthorized("Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPayer(r.Context(), payer)))
		})
	}
}
