package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"convertviral/internal/audit"
	dErrors "convertviral/pkg/domain-errors"
	"convertviral/pkg/platform/httputil"
	"convertviral/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID    string
	SessionID string
}

const bearerPrefix = "Bearer "

// AuthAuditor receives security events for rejected tokens.
type AuthAuditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type authConfig struct {
	auditor AuthAuditor
}

type AuthOption func(*authConfig)

// WithAuthAuditor emits an auth_failed event for every presented token that
// does not validate. Requests without a token are not audited.
func WithAuthAuditor(auditor AuthAuditor) AuthOption {
	return func(c *authConfig) {
		c.auditor = auditor
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's user and session in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger, opts ...AuthOption) func(http.Handler) http.Handler {
	cfg := authConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil || claims.UserID == "" {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				cfg.recordFailure(r, logger)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			if claims.SessionID != "" {
				ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (c authConfig) recordFailure(r *http.Request, logger *slog.Logger) {
	if c.auditor == nil {
		return
	}
	ctx := r.Context()
	err := c.auditor.Emit(ctx, audit.Event{
		Action:    string(audit.EventAuthFailed),
		Subject:   r.Method + " " + r.URL.Path,
		IP:        requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		RequestID: requestcontext.RequestID(ctx),
		Severity:  audit.SeverityWarning,
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to emit auth audit event",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// OptionalAuth attaches the token identity when a valid bearer token is
// present and otherwise lets the request through anonymously. An invalid
// token is treated as absent.
func OptionalAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.DebugContext(ctx, "ignoring invalid optional token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}
			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			if claims.SessionID != "" {
				ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
