// Package auth verifies reviewer bearer tokens (HS256 JWT) and carries the
// reviewer identity through the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token is present.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the reviewer token payload.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Options configures a Verifier.
type Options struct {
	Issuer   string
	TokenTTL time.Duration
	// Public lists path prefixes that bypass authentication.
	Public []string
}

// Verifier issues and checks reviewer tokens. A Verifier without a secret
// is disabled: every request passes and carries no reviewer.
type Verifier struct {
	secret []byte
	opts   Options
}

// NewVerifier returns a verifier for an HMAC secret.
func NewVerifier(secret string, optFns ...func(o *Options)) *Verifier {
	opts := Options{
		Issuer:   "caredesk",
		TokenTTL: 24 * time.Hour,
		Public:   []string{"/api/health", "/metrics"},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Verifier{secret: []byte(secret), opts: opts}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool { return len(v.secret) > 0 }

// Issue signs a token for subject.
func (v *Verifier) Issue(subject, name string) (string, error) {
	if !v.Enabled() {
		return "", errors.New("auth: no secret configured")
	}

	now := time.Now()

	claims := &Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.opts.TokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}

	return token, nil
}

// Verify parses and validates a token string.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithIssuer(v.opts.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	return claims, nil
}

// FromRequest extracts and verifies the Authorization bearer token.
func (v *Verifier) FromRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}

	return v.Verify(strings.TrimSpace(raw))
}

// Middleware rejects unauthenticated requests with 401 and stores the token
// subject as reviewer in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Enabled() || r.Method == http.MethodOptions || v.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := v.FromRequest(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="caredesk"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithReviewer(r.Context(), claims.Subject)))
	})
}

func (v *Verifier) isPublic(path string) bool {
	for _, p := range v.opts.Public {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

type reviewerKey struct{}

// WithReviewer stores the reviewer identity in ctx.
func WithReviewer(ctx context.Context, reviewer string) context.Context {
	return context.WithValue(ctx, reviewerKey{}, reviewer)
}

// ReviewerFromContext returns the authenticated reviewer, if any.
func ReviewerFromContext(ctx context.Context) (string, bool) {
	r, ok := ctx.Value(reviewerKey{}).(string)
	return r, ok && r != ""
}
