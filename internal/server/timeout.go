package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

var errRequestTimeout = errors.New("request timed out")

// timeoutWriter records whether the handler produced a response.
type timeoutWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *timeoutWriter) WriteHeader(status int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *timeoutWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// TimeoutMiddleware bounds the request context. A handler that gives up
// at the deadline without responding gets a JSON 503. Executions started
// by a request are detached from it and keep running.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{ResponseWriter: w}
			next.ServeHTTP(tw, r.WithContext(ctx))

			if !tw.wrote && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				writeError(w, r, http.StatusServiceUnavailable, errRequestTimeout)
			}
		})
	}
}
