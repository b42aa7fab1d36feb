// Package orders verifies that a customer bought from the external store.
package orders

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrOrderNotFound is returned when no order matches both the order number
// and the email address.
var ErrOrderNotFound = errors.New("order not found or email mismatch")

// Order is the subset of an external order used for login
type Order struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
}

// Verifier looks up an order by number and checks it belongs to email.
// Implementations return ErrOrderNotFound when nothing matches and an error
// wrapping storefront.ErrExternalService when the lookup itself fails.
type Verifier interface {
	VerifyOrder(ctx context.Context, email, orderNumber string) (*Order, error)
}

// Static is an in-memory Verifier for development and tests
type Static struct {
	mu     sync.RWMutex
	orders []Order
}

// NewStatic returns a verifier knowing the given orders
func NewStatic(orders ...Order) *Static {
	return &Static{orders: append([]Order(nil), orders...)}
}

// Add registers an order
func (s *Static) Add(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
}

func (s *Static) VerifyOrder(ctx context.Context, email, orderNumber string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if Matches(o, email, orderNumber) {
			found := o
			return &found, nil
		}
	}
	return nil, ErrOrderNotFound
}

// Matches reports whether o has the given number and belongs to email. The
// number may be the order name with or without its leading '#', the order
// number or the order id. Emails compare case-insensitively.
func Matches(o Order, email, orderNumber string) bool {
	email = strings.TrimSpace(email)
	number := strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
	if email == "" || number == "" {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(o.Email), email) {
		return false
	}
	return strings.TrimPrefix(o.Name, "#") == number || o.OrderNumber == number || o.ID == number
}
