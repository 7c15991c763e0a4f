// internal/common/auth/auth.go
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Actor identifies the authenticated principal on a request. Token issuance is
// owned by an external identity service; the portal only verifies and extracts.
type Actor struct {
	ID   string
	Role string
}

const (
	RoleCitizen = "citizen"
	RoleStaff   = "staff"
	RoleAdmin   = "admin"
)

type ctxKey struct{}

// FromContext returns the actor attached to the request context, or nil.
func FromContext(ctx context.Context) *Actor {
	a, _ := ctx.Value(ctxKey{}).(*Actor)
	return a
}

// WithActor attaches an actor to a context, used by middleware and tests.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Parse validates a bearer token and extracts the actor.
func (v *Verifier) Parse(tokenStr string) (*Actor, error) {
	claims := jwt.MapClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleCitizen
	}

	return &Actor{ID: sub, Role: role}, nil
}

// Middleware extracts the bearer actor into the request context. Requests
// without a token pass through unauthenticated; handlers decide what they require.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			if actor, err := v.Parse(strings.TrimPrefix(header, "Bearer ")); err == nil {
				r = r.WithContext(WithActor(r.Context(), actor))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// IsStaff reports whether the actor may perform staff operations.
func IsStaff(a *Actor) bool {
	return a != nil && (a.Role == RoleStaff || a.Role == RoleAdmin)
}
