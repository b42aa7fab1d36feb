package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/simple-storefront/pkg/storefront"
	"github.com/tendant/simple-storefront/pkg/storefront/auth"
	"github.com/tendant/simple-storefront/pkg/storefront/staging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Deps is everything the router serves
type Deps struct {
	Service storefront.Service
	Auth    *auth.Service
	Staging *staging.Area
	Logger  *slog.Logger

	// MaxUploadSize caps request bodies on upload routes
	MaxUploadSize int64
	// IdleTimeout aborts uploads that stall for this long
	IdleTimeout time.Duration
	// PublicCatalog leaves list and get open to anonymous callers
	PublicCatalog bool
	// CORSOrigins enables CORS for these origins when set
	CORSOrigins []string

	// Readiness checks reported by /health/ready, by name
	Readiness map[string]storefront.Pinger
	// Metrics serves /metrics when set
	Metrics http.Handler
}

// NewRouter builds the HTTP surface. Catalog reads are public unless
// PublicCatalog is off, downloads need any valid credential and every
// mutation needs the admin role.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := deps.Auth.Gate()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(deps.CORSOrigins) > 0 {
		r.Use(CORSMiddleware(deps.CORSOrigins))
	}
	r.Use(gate.Authenticate)

	anyUser := auth.RequireAuth(WriteError)
	adminOnly := auth.RequireRole(WriteError, auth.RoleAdmin)
	read := passthrough
	if !deps.PublicCatalog {
		read = anyUser
	}
	upload := chain(BodyLimit(deps.MaxUploadSize), IdleTimeout(deps.IdleTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", readinessHandler(deps.Readiness))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Mount("/auth", NewAuthHandler(deps.Auth).Routes())
	r.Mount("/content", NewContentHandler(deps.Service, deps.Staging, logger).Routes(read, adminOnly, upload))
	r.Mount("/blobs", NewBlobHandler(deps.Service, logger).Routes(adminOnly, anyUser))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, storefront.ErrNotFound)
	})

	return otelhttp.NewHandler(r, "storefront",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func passthrough(next http.Handler) http.Handler { return next }

func chain(ms ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(ms) - 1; i >= 0; i-- {
			next = ms[i](next)
		}
		return next
	}
}

func readinessHandler(checks map[string]storefront.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := map[string]string{}
		ready := true
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				slog.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
				status[name] = "unavailable"
				ready = false
				continue
			}
			status[name] = "ok"
		}

		if !ready {
			render.Status(r, http.StatusServiceUnavailable)
		}
		render.JSON(w, r, map[string]any{"ready": ready, "checks": status})
	}
}
