package api

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-storefront/pkg/storefront"
	"github.com/tendant/simple-storefront/pkg/storefront/auth"
)

const maxLoginBody = 64 << 10

// AdminLoginRequest is the admin login body
type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CustomerLoginRequest is the customer login body. orderId is the field
// name older clients send.
type CustomerLoginRequest struct {
	Email       string `json:"email"`
	OrderNumber string `json:"orderNumber"`
	OrderID     string `json:"orderId"`
}

// AuthHandler serves the login routes
type AuthHandler struct {
	auth *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{auth: svc}
}

// Routes mounts the login routes
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(BodyLimit(maxLoginBody))
	r.Post("/admin-login", h.AdminLogin)
	r.Post("/customer-login", h.CustomerLogin)
	return r
}

// AdminLogin issues an admin credential
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if err := decodeLogin(r, &req, func(get func(string) string) {
		req.Email = get("email")
		req.Password = get("password")
	}); err != nil {
		WriteError(w, r, err)
		return
	}

	token, err := h.auth.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	render.JSON(w, r, token)
}

// CustomerLogin verifies the order and issues a customer credential
func (h *AuthHandler) CustomerLogin(w http.ResponseWriter, r *http.Request) {
	var req CustomerLoginRequest
	if err := decodeLogin(r, &req, func(get func(string) string) {
		req.Email = get("email")
		req.OrderNumber = get("orderNumber")
		req.OrderID = get("orderId")
	}); err != nil {
		WriteError(w, r, err)
		return
	}
	number := req.OrderNumber
	if strings.TrimSpace(number) == "" {
		number = req.OrderID
	}

	token, err := h.auth.CustomerLogin(r.Context(), req.Email, number)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	render.JSON(w, r, token)
}

// decodeLogin reads a JSON body into v, or a form body through fromForm
func decodeLogin(r *http.Request, v any, fromForm func(get func(string) string)) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxLoginBody); err != nil && err != http.ErrNotMultipart {
			return bodyError(err)
		}
		fromForm(r.FormValue)
		return nil
	}
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return &storefront.ValidationError{Message: "malformed JSON body"}
	}
	return nil
}
