package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Handshake rejection reason codes. These are machine-readable and end up as
// the HTTP error body when the upgrade is refused.
const (
	ReasonNoCookie         = "no-cookie"
	ReasonNoSessionToken   = "no-session-token"
	ReasonSessionInvalid   = "session-invalid"
	ReasonSessionNotFound  = "session-not-found"
	ReasonSessionExpired   = "session-expired"
	ReasonNotAuthenticated = "not-authenticated"
)

// RejectionError aborts a handshake with a reason code from the set above.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "handshake rejected: " + e.Reason
}

func reject(reason string) *RejectionError {
	return &RejectionError{Reason: reason}
}

// TokenClaims is the session cookie's JWT payload. The cookie does not carry
// the session itself, only a signed pointer to the server-side record.
type TokenClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewToken mints a signed session cookie value for the given session id.
// The HTTP login flow uses this when issuing cookies; tests use it to build
// valid handshakes.
func NewToken(secret []byte, sid string, expiresAt time.Time) (string, error) {
	claims := &TokenClaims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Bridge authenticates a persistent-connection handshake against the same
// session state the HTTP stack uses.
type Bridge struct {
	store      Store
	secret     []byte
	cookieName string
	logger     *slog.Logger
}

func NewBridge(logger *slog.Logger, store Store, secret []byte, cookieName string) *Bridge {
	return &Bridge{
		store:      store,
		secret:     secret,
		cookieName: cookieName,
		logger:     logger.With(slog.String("component", "session_bridge")),
	}
}

// Authenticate validates the handshake's Cookie header and resolves it to a
// user id. On failure it returns a *RejectionError whose Reason follows the
// ladder: no cookie header, session cookie absent, token invalid, record
// missing, record expired, record without a user id.
func (b *Bridge) Authenticate(ctx context.Context, header http.Header) (string, error) {
	cookieHeader := header.Get("Cookie")
	if cookieHeader == "" {
		b.logger.Warn("Handshake without cookie header")
		return "", reject(ReasonNoCookie)
	}

	// Replay the HTTP stack's cookie parsing against the handshake header.
	req := &http.Request{Header: http.Header{"Cookie": header.Values("Cookie")}}
	cookie, err := req.Cookie(b.cookieName)
	if err != nil {
		b.logger.Warn("Handshake without session cookie", slog.String("cookieName", b.cookieName))
		return "", reject(ReasonNoSessionToken)
	}

	sid, err := b.parseToken(cookie.Value)
	if err != nil {
		b.logger.Warn("Handshake with invalid session token", slog.Any("error", err))
		return "", reject(ReasonSessionInvalid)
	}

	rec, err := b.store.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.logger.Warn("Handshake session record not found", slog.String("sid", sid))
			return "", reject(ReasonSessionNotFound)
		}
		return "", fmt.Errorf("session lookup: %w", err)
	}
	if rec.Expired(time.Now()) {
		b.logger.Warn("Handshake with expired session", slog.String("sid", sid))
		return "", reject(ReasonSessionExpired)
	}
	if rec.UserID == "" {
		b.logger.Warn("Handshake session carries no user id", slog.String("sid", sid))
		return "", reject(ReasonNotAuthenticated)
	}

	return rec.UserID, nil
}

func (b *Bridge) parseToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return b.secret, nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = jwt.ErrTokenUnverifiable
		}
		return "", err
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || claims.SID == "" {
		return "", fmt.Errorf("session token missing sid claim")
	}
	return claims.SID, nil
}
