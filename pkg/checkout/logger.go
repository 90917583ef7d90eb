package checkout

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"klub/internal/reqid"
)

// responseLogger remembers the status code written through it.
type responseLogger struct {
	w      http.ResponseWriter
	status int
}

func newResponseLogger(w http.ResponseWriter) *responseLogger {
	return &responseLogger{w, http.StatusOK}
}

func (l *responseLogger) WriteHeader(code int) {
	l.status = code
	l.w.WriteHeader(code)
}

func (l *responseLogger) Write(b []byte) (int, error) {
	return l.w.Write(b)
}

func (l *responseLogger) Header() http.Header {
	return l.w.Header()
}

func (l *responseLogger) Status() int {
	return l.status
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := newResponseLogger(w)
		defer func() {
			log.WithFields(log.Fields{
				"status":   lw.Status(),
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).Seconds(),
			}).Debugf("[checkout][%s] request served", reqid.ShortFrom(r.Context()))
		}()

		next.ServeHTTP(lw, r)
	})
}
