// Package auth provides optional JWT bearer authentication for the
// explorer API.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/metrics"
)

const issuer = "explorer"

type contextKey string

const claimsContextKey contextKey = "claims"

// Claims holds JWT token claims.
type Claims struct {
	// ReadOnly tokens may only use safe methods (GET, HEAD).
	ReadOnly bool `json:"read_only,omitempty"`
	jwt.RegisteredClaims
}

// Auth issues and validates HMAC-signed tokens. A nil *Auth disables
// authentication.
type Auth struct {
	secret []byte
	ttl    time.Duration
}

// New creates an Auth for secret. An empty secret returns nil.
func New(secret string, ttl time.Duration) *Auth {
	if secret == "" {
		return nil
	}
	return &Auth{secret: []byte(secret), ttl: ttl}
}

// IssueToken signs a token for subject.
func (a *Auth) IssueToken(subject string, readOnly bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		ReadOnly: readOnly,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   issuer,
		},
	}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid token. With a nil receiver
// it passes every request through.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := a.validateToken(tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			logging.WithContext(r.Context()).Debug("token rejected", logging.Err(err))
			sendAuthError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}
		if claims.ReadOnly && r.Method != http.MethodGet && r.Method != http.MethodHead {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusForbidden, "token is read-only")
			return
		}

		metrics.RecordAuthAttempt(true)
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// EventSource cannot set headers.
	return r.URL.Query().Get("token")
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
		"code":  code,
	})
}
