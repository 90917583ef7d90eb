// Package reqid carries X-Request-Id values through HTTP clients, handlers
// and log lines.
package reqid

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"
)

const Header = "X-Request-Id"

type ctxKey struct{}

// New returns a fresh UUIDv4 request ID.
func New() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Middleware stores the incoming request ID in the request context, or
// generates one, and echoes it in the response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			var err error
			id, err = New()
			if err != nil {
				log.Errorf("[reqid.Middleware] failed to generate request ID for %v: %v", r.RemoteAddr, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// FromContext returns the request ID stored by Middleware, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// Short returns the first 6 characters of id followed by "..." for log lines.
// Shorter strings are returned unchanged.
func Short(id string) string {
	if len(id) > 6 {
		return id[:6] + "..."
	}
	return id
}

// ShortFrom is Short(FromContext(ctx)).
func ShortFrom(ctx context.Context) string {
	return Short(FromContext(ctx))
}
