package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"convertviral/pkg/requestcontext"
)

const (
	// SessionCookie carries the anonymous consent session.
	SessionCookie = "cv_session"
	// SessionHeader lets non-browser clients pass the anonymous session.
	SessionHeader = "X-Session-ID"

	sessionCookieMaxAge = 365 * 24 * time.Hour
	maxSessionIDLen     = 128
)

// AnonymousSession resolves the session id for requests that may not be
// authenticated. A session claim from the token wins, then the cv_session
// cookie, then the X-Session-ID header. When none is present a new session
// cookie is issued for POST requests only, so reads never mint identities.
func AnonymousSession(secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.SessionID(ctx) != "" {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := sessionFromRequest(r)
			if sessionID == "" && r.Method == http.MethodPost {
				sessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(sessionCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			}
			if sessionID != "" {
				ctx = requestcontext.WithSessionID(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && validSessionID(c.Value) {
		return c.Value
	}
	if h := strings.TrimSpace(r.Header.Get(SessionHeader)); validSessionID(h) {
		return h
	}
	return ""
}

func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
