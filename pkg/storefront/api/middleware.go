package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tendant/simple-storefront/pkg/storefront"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// ErrIdleTimeout is returned by a request body that delivered no bytes for
// the configured idle period.
var ErrIdleTimeout = errors.New("upload idle timeout")

// BodyLimit caps request bodies at maxBytes. Requests announcing a larger
// Content-Length are rejected before any byte is read.
func BodyLimit(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				WriteError(w, r, fmt.Errorf("%w: %d bytes announced", storefront.ErrPayloadTooLarge, r.ContentLength))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// IdleTimeout replaces a fixed request timeout on upload routes: the read
// deadline is pushed forward on every body read, so a transfer may take as
// long as it needs while bytes keep arriving.
func IdleTimeout(idle time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if idle > 0 && r.Body != nil && r.Body != http.NoBody {
				r.Body = &idleReader{
					ReadCloser: r.Body,
					rc:         http.NewResponseController(w),
					idle:       idle,
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type idleReader struct {
	io.ReadCloser
	rc   *http.ResponseController
	idle time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	// ErrNotSupported from test recorders is ignored.
	_ = r.rc.SetReadDeadline(time.Now().Add(r.idle))
	n, err := r.ReadCloser.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		err = fmt.Errorf("%w: no data for %s", ErrIdleTimeout, r.idle)
	}
	return n, err
}

// bodyError classifies a failure to read the request body
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit is %d bytes", storefront.ErrPayloadTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("%w: reading request body: %w", storefront.ErrUpload, err)
}

// CORSMiddleware handles CORS headers
func CORSMiddleware(allowedOrigins []string) Middleware {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	methods := strings.Join([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, ", ")
	headers := strings.Join([]string{"Content-Type", "Authorization", "X-Request-ID"}, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if allowedOrigin == "*" || allowedOrigin == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
