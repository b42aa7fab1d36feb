package auth

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-storefront/pkg/storefront"
)

type ctxKey int

const (
	claimsKey ctxKey = iota
	authErrKey
)

// ErrorWriter renders an error response. The API package supplies one so
// that auth failures share the error body of every other route.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// ClaimsFromContext returns the claims stored by Authenticate
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// WithClaims stores claims in ctx
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// Authenticate reads a bearer credential from the Authorization header or
// the jwt cookie. Valid claims are stored in the request context. An
// invalid credential is remembered so RequireAuth can reject it, but does
// not block public routes.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := jwtauth.TokenFromHeader(r)
		if tokenString == "" {
			tokenString = jwtauth.TokenFromCookie(r)
		}
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.Authorize(tokenString)
		ctx := r.Context()
		if err != nil {
			ctx = context.WithValue(ctx, authErrKey, err)
		} else {
			ctx = WithClaims(ctx, claims)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests without valid claims with 401
func RequireAuth(writeError ErrorWriter) func(http.Handler) http.Handler {
	return RequireRole(writeError)
}

// RequireRole rejects requests without valid claims with 401 and requests
// whose role is not listed with 403. No roles means any valid credential.
func RequireRole(writeError ErrorWriter, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				err, _ := r.Context().Value(authErrKey).(error)
				if err == nil {
					err = storefront.ErrUnauthorized
				}
				writeError(w, r, err)
				return
			}
			if len(roles) > 0 && !claims.HasRole(roles...) {
				writeError(w, r, storefront.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
