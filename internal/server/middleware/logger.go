package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger logs every request that reaches the mux. The presence
// endpoints are chatty, so this stays at Debug; turn the log level up in
// production and it goes quiet.
func NewRequestLogger(logger *slog.Logger) Middleware {
	log := logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			}
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				attrs = append(attrs, slog.String("ip", reqMeta.IP))
			}
			log.Debug("Inbound request", attrs...)
			next.ServeHTTP(w, r)
		})
	}
}
