package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendant/simple-storefront/pkg/storefront"
	"github.com/tendant/simple-storefront/pkg/storefront/orders"
	"golang.org/x/crypto/bcrypt"
)

// Service performs the admin and customer logins
type Service struct {
	gate              *Gate
	verifier          orders.Verifier
	adminEmail        string
	adminPasswordHash []byte
	logger            *slog.Logger
}

// ServiceConfig holds the login settings
type ServiceConfig struct {
	AdminEmail        string
	AdminPasswordHash string // bcrypt hash
	Verifier          orders.Verifier
	Logger            *slog.Logger
}

// NewService creates the login service. Admin login is disabled when no
// admin email or hash is configured, customer login when no verifier is.
func NewService(gate *Gate, config ServiceConfig) *Service {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gate:              gate,
		verifier:          config.Verifier,
		adminEmail:        strings.TrimSpace(config.AdminEmail),
		adminPasswordHash: []byte(config.AdminPasswordHash),
		logger:            logger,
	}
}

// Gate returns the gate credentials are issued by
func (s *Service) Gate() *Gate {
	return s.gate
}

// AdminLogin checks the configured admin credentials
func (s *Service) AdminLogin(ctx context.Context, email, password string) (*Token, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &storefront.ValidationError{Message: "email and password are required"}
	}
	if s.adminEmail == "" || len(s.adminPasswordHash) == 0 {
		s.logger.WarnContext(ctx, "admin login attempted but no admin is configured")
		return nil, fmt.Errorf("%w: invalid credentials", storefront.ErrUnauthorized)
	}

	// The hash is compared even on an email mismatch so both failures cost
	// the same.
	hashErr := bcrypt.CompareHashAndPassword(s.adminPasswordHash, []byte(password))
	if !strings.EqualFold(email, s.adminEmail) || hashErr != nil {
		return nil, fmt.Errorf("%w: invalid credentials", storefront.ErrUnauthorized)
	}

	return s.gate.Issue(s.adminEmail, RoleAdmin, nil)
}

// CustomerLogin verifies the order with the external store and issues a
// customer credential
func (s *Service) CustomerLogin(ctx context.Context, email, orderNumber string) (*Token, error) {
	email = strings.TrimSpace(email)
	orderNumber = strings.TrimSpace(orderNumber)
	if email == "" || orderNumber == "" {
		return nil, &storefront.ValidationError{Message: "email and order number are required"}
	}
	if s.verifier == nil {
		return nil, fmt.Errorf("%w: order verification is not configured", storefront.ErrExternalService)
	}

	order, err := s.verifier.VerifyOrder(ctx, email, orderNumber)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %w", storefront.ErrUnauthorized, err)
		}
		s.logger.ErrorContext(ctx, "order verification failed", "error", err)
		if !errors.Is(err, storefront.ErrExternalService) {
			err = fmt.Errorf("%w: %w", storefront.ErrExternalService, err)
		}
		return nil, err
	}

	number := order.Name
	if number == "" {
		number = orderNumber
	}
	return s.gate.Issue(strings.ToLower(email), RoleCustomer, map[string]interface{}{
		claimOrder: strings.TrimPrefix(number, "#"),
	})
}
