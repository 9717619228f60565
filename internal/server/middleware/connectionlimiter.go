package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Dou2020/tasks-manager/pkg/config"
)

// UserConnectionCounter reports how many live connections a user holds.
type UserConnectionCounter func(userID string) (int, error)

// UserConnectionCycler closes the user's oldest connection to free a slot.
type UserConnectionCycler func(userID string)

// NewConnectionLimiter caps simultaneous connections per user, which keeps
// reconnect storms from piling dead tabs onto one account. Must run after
// session auth so the user id is known.
func NewConnectionLimiter(
	logger *slog.Logger,
	counter UserConnectionCounter,
	cycler UserConnectionCycler,
	cfg config.ConnectionLimitConfig,
) Middleware {
	log := logger.With(slog.String("component", "connection-limiter"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MaxPerUser <= 0 {
				// Limiting disabled.
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				log.Error("Request metadata missing from context; limiter must run inside the metadata chain")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if reqMeta.UserID == "" {
				log.Warn("No user id on request; refusing to open an unattributed connection")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			count, err := counter(reqMeta.UserID)
			if err != nil {
				log.Error("Connection count lookup failed", slog.Any("error", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if count < cfg.MaxPerUser {
				next.ServeHTTP(w, r)
				return
			}

			log.Warn("Per-user connection cap hit",
				slog.String("userID", reqMeta.UserID),
				slog.Int("count", count),
				slog.String("mode", cfg.Mode),
			)
			switch cfg.Mode {
			case "reject":
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			case "cycle":
				cycler(reqMeta.UserID)
				next.ServeHTTP(w, r)
			default:
				log.Error("Unknown connection limit mode", slog.String("mode", cfg.Mode))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
