package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Dou2020/tasks-manager/pkg/session"
	"github.com/Dou2020/tasks-manager/pkg/user"
)

// Reason code for a valid session whose account no longer exists.
const ReasonUserNotFound = "user-not-found"

// NewSessionAuth authenticates the upgrade request by replaying the HTTP
// stack's session validation against the handshake headers, then resolving
// the user record. Any failure refuses the handshake with a machine-readable
// reason; the client must re-authenticate through the login flow, there is
// no retry here.
func NewSessionAuth(logger *slog.Logger, bridge *session.Bridge, users user.Store) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			userID, err := bridge.Authenticate(r.Context(), r.Header)
			if err != nil {
				var rejection *session.RejectionError
				if errors.As(err, &rejection) {
					logger.Warn("Handshake refused",
						slog.String("reason", rejection.Reason),
						slog.String("ip", reqMeta.IP),
					)
					http.Error(w, rejection.Reason, http.StatusUnauthorized)
					return
				}
				logger.Error("Session validation failed", slog.Any("error", err), slog.String("ip", reqMeta.IP))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			u, err := users.Get(r.Context(), userID)
			if err != nil {
				if errors.Is(err, user.ErrNotFound) {
					logger.Warn("Session resolves to missing user account",
						slog.String("userID", userID),
						slog.String("ip", reqMeta.IP),
					)
					http.Error(w, ReasonUserNotFound, http.StatusUnauthorized)
					return
				}
				logger.Error("User lookup failed", slog.Any("error", err), slog.String("userID", userID))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			reqMeta.UserID = u.ID
			reqMeta.DisplayName = u.DisplayName()
			next.ServeHTTP(w, r)
		})
	}
}
