package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionFor wraps a compression middleware so event streams and the
// metrics endpoint bypass it. Compressing SSE buffers writes and breaks
// flushing; Prometheus scrapes negotiate their own encoding.
func SkipCompressionFor(compress func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressed := compress(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
				strings.HasSuffix(r.URL.Path, "/events") ||
				r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}
