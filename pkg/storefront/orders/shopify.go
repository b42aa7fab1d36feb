package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/simple-storefront/pkg/storefront"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultAPIVersion = "2023-01"
	DefaultMaxPages   = 10
	pageSize          = 250

	// Shopify order ids are long integers while order names stay short, so
	// a numeric input at least this long is also tried as an id.
	minOrderIDDigits = 10
)

// ShopifyConfig configures the Shopify Admin API verifier
type ShopifyConfig struct {
	StoreURL    string // e.g. https://example.myshopify.com
	AccessToken string
	APIVersion  string
	MaxPages    int
	HTTPClient  *http.Client
}

// Shopify verifies orders against the Shopify Admin REST API. It asks for
// the order by id (when the number looks like one) and by name, and only
// pages through the filtered result.
type Shopify struct {
	base     *url.URL
	token    string
	version  string
	maxPages int
	client   *http.Client
}

// NewShopify validates config and returns a verifier
func NewShopify(config ShopifyConfig) (*Shopify, error) {
	if config.StoreURL == "" {
		return nil, errors.New("shopify store url is required")
	}
	if config.AccessToken == "" {
		return nil, errors.New("shopify access token is required")
	}
	base, err := url.Parse(strings.TrimRight(config.StoreURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid shopify store url %q", config.StoreURL)
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Shopify{
		base:     base,
		token:    config.AccessToken,
		version:  config.APIVersion,
		maxPages: config.MaxPages,
		client:   config.HTTPClient,
	}, nil
}

type shopifyOrder struct {
	ID          json.Number `json:"id"`
	Name        string      `json:"name"`
	OrderNumber json.Number `json:"order_number"`
	Email       string      `json:"email"`
}

type ordersPage struct {
	Orders []shopifyOrder `json:"orders"`
}

func (s *Shopify) VerifyOrder(ctx context.Context, email, orderNumber string) (*Order, error) {
	number := strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
	if number == "" || strings.TrimSpace(email) == "" {
		return nil, ErrOrderNotFound
	}

	if looksLikeOrderID(number) {
		order, err := s.search(ctx, s.ordersURL("ids", number), email, number)
		if !errors.Is(err, ErrOrderNotFound) {
			return order, err
		}
	}
	return s.search(ctx, s.ordersURL("name", number), email, number)
}

// search walks the pages starting at first until an order matches
func (s *Shopify) search(ctx context.Context, first, email, number string) (*Order, error) {
	next := first
	for page := 0; next != "" && page < s.maxPages; page++ {
		orders, link, err := s.fetch(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storefront.ErrExternalService, err)
		}
		for _, o := range orders {
			order := Order{ID: o.ID.String(), Name: o.Name, OrderNumber: o.OrderNumber.String(), Email: o.Email}
			if Matches(order, email, number) {
				return &order, nil
			}
		}
		next = link
	}
	return nil, ErrOrderNotFound
}

func looksLikeOrderID(number string) bool {
	if len(number) < minOrderIDDigits {
		return false
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ordersURL is the first page of orders.json filtered by filter=value
func (s *Shopify) ordersURL(filter, value string) string {
	u := *s.base
	u.Path = fmt.Sprintf("%s/admin/api/%s/orders.json", strings.TrimRight(u.Path, "/"), s.version)
	q := url.Values{}
	q.Set(filter, value)
	q.Set("status", "any")
	q.Set("limit", fmt.Sprint(pageSize))
	q.Set("fields", "id,name,order_number,email")
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Shopify) fetch(ctx context.Context, pageURL string) ([]shopifyOrder, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("X-Shopify-Access-Token", s.token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("order lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("order lookup: unexpected status %d", resp.StatusCode)
	}

	var page ordersPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("order lookup: decode response: %w", err)
	}
	return page.Orders, nextLink(resp.Header.Get("Link")), nil
}

// nextLink extracts the rel="next" target of an RFC 8288 Link header
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			if param == `rel="next"` || param == "rel=next" {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}
