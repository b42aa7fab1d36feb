// Package auth issues and checks the bearer credentials that guard the
// storefront API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-storefront/pkg/storefront"
)

// Role is the role claim carried by a credential
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

const (
	DefaultAdminTTL    = time.Hour
	DefaultCustomerTTL = 3 * time.Hour

	claimRole  = "role"
	claimEmail = "email"
	claimOrder = "orderNumber"
)

// Claims is the verified content of a credential
type Claims struct {
	Subject     string    `json:"sub"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	OrderNumber string    `json:"orderNumber,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HasRole reports whether the claims carry one of roles
func (c *Claims) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// Token is an issued credential
type Token struct {
	Token     string    `json:"token"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Gate signs and verifies HS256 credentials
type Gate struct {
	ja          *jwtauth.JWTAuth
	adminTTL    time.Duration
	customerTTL time.Duration
	now         func() time.Time
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithAdminTTL sets the validity of admin credentials
func WithAdminTTL(d time.Duration) GateOption {
	return func(g *Gate) {
		g.adminTTL = d
	}
}

// WithCustomerTTL sets the validity of customer credentials
func WithCustomerTTL(d time.Duration) GateOption {
	return func(g *Gate) {
		g.customerTTL = d
	}
}

// NewGate creates a gate signing with secret
func NewGate(secret string, opts ...GateOption) (*Gate, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	g := &Gate{
		ja:          jwtauth.New("HS256", []byte(secret), nil),
		adminTTL:    DefaultAdminTTL,
		customerTTL: DefaultCustomerTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// TTL returns the credential validity for role
func (g *Gate) TTL(role Role) time.Duration {
	if role == RoleAdmin {
		return g.adminTTL
	}
	return g.customerTTL
}

// Issue signs a credential for subject with role. extra claims are added
// as they are.
func (g *Gate) Issue(subject string, role Role, extra map[string]interface{}) (*Token, error) {
	if role != RoleAdmin && role != RoleCustomer {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	expires := g.now().Add(g.TTL(role)).Truncate(time.Second)

	claims := map[string]interface{}{
		"sub":      subject,
		claimEmail: subject,
		claimRole:  string(role),
	}
	for k, v := range extra {
		claims[k] = v
	}
	jwtauth.SetIssuedAt(claims, g.now())
	jwtauth.SetExpiry(claims, expires)

	_, tokenString, err := g.ja.Encode(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign credential: %w", err)
	}
	return &Token{Token: tokenString, Role: role, ExpiresAt: expires}, nil
}

// Authorize verifies signature and expiry and extracts the claims. Every
// failure wraps storefront.ErrUnauthorized.
func (g *Gate) Authorize(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("%w: no credential", storefront.ErrUnauthorized)
	}

	token, err := jwtauth.VerifyToken(g.ja, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storefront.ErrUnauthorized, err)
	}

	exp := token.Expiration()
	if exp.IsZero() {
		return nil, fmt.Errorf("%w: credential has no expiry", storefront.ErrUnauthorized)
	}
	if !g.now().Before(exp) {
		return nil, fmt.Errorf("%w: credential expired", storefront.ErrUnauthorized)
	}

	claims := &Claims{Subject: token.Subject(), ExpiresAt: exp}
	if v, ok := token.Get(claimRole); ok {
		role, _ := v.(string)
		claims.Role = Role(role)
	}
	if claims.Role != RoleAdmin && claims.Role != RoleCustomer {
		return nil, fmt.Errorf("%w: unknown role %q", storefront.ErrUnauthorized, claims.Role)
	}
	if v, ok := token.Get(claimEmail); ok {
		claims.Email, _ = v.(string)
	}
	if v, ok := token.Get(claimOrder); ok {
		claims.OrderNumber, _ = v.(string)
	}
	return claims, nil
}
