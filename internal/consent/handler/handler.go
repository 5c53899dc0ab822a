package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"convertviral/internal/consent/models"
	"convertviral/internal/consent/service"
	"convertviral/internal/platform/middleware"
	dErrors "convertviral/pkg/domain-errors"
	"convertviral/pkg/platform/httputil"
	"convertviral/pkg/requestcontext"
)

// Service defines the interface for consent operations.
type Service interface {
	Record(ctx context.Context, owner models.Owner, req *models.RecordConsentRequest) (*service.RecordResult, error)
	Withdraw(ctx context.Context, owner models.Owner) (*service.RecordResult, error)
	History(ctx context.Context, owner models.Owner) (*service.History, error)
	Export(ctx context.Context, owner models.Owner) ([]models.AuditEntry, error)
	Erase(ctx context.Context, owner models.Owner) (*service.EraseResult, error)
}

// Handler handles consent-related endpoints.
type Handler struct {
	logger        *slog.Logger
	consent       Service
	jwtValidator  middleware.JWTValidator
	secureCookies bool
	authOpts      []middleware.AuthOption
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuthAuditor records rejected tokens on the authenticated routes.
func WithAuthAuditor(auditor middleware.AuthAuditor) Option {
	return func(h *Handler) {
		h.authOpts = append(h.authOpts, middleware.WithAuthAuditor(auditor))
	}
}

// New creates a new consent Handler. secureCookies marks issued anonymous
// session cookies Secure.
func New(consent Service, logger *slog.Logger, jwtValidator middleware.JWTValidator, secureCookies bool, opts ...Option) *Handler {
	h := &Handler{
		logger:        logger,
		consent:       consent,
		jwtValidator:  jwtValidator,
		secureCookies: secureCookies,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the consent routes with the chi router. Recording is
// open to anonymous sessions; reading, withdrawing, exporting and erasing
// require an authenticated owner.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(h.jwtValidator, h.logger))
		r.Use(middleware.AnonymousSession(h.secureCookies))
		r.Post("/consent/record", h.HandleRecord)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger, h.authOpts...))
		r.Get("/consent/record", h.HandleHistory)
		r.Delete("/consent/record", h.HandleWithdraw)
		r.Get("/consent/export", h.HandleExport)
		r.Delete("/consent/data", h.HandleErase)
	})
}

// ownerFromContext prefers the authenticated user and falls back to the
// anonymous session.
func ownerFromContext(ctx context.Context) models.Owner {
	return models.Owner{
		UserID:    requestcontext.UserID(ctx),
		SessionID: requestcontext.SessionID(ctx),
	}
}

// HandleRecord handles POST /consent/record.
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	owner := ownerFromContext(ctx)
	if owner.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "consent session is required"))
		return
	}

	req, ok := httputil.DecodeJSON[models.RecordConsentRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.consent.Record(ctx, owner, req)
	if err != nil {
		h.logFailure(ctx, "failed to record consent", owner, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "consent recorded",
		"request_id", requestID,
		"owner", owner.Key(),
		"action", string(result.Entry.Action),
		"outcome", result.Outcome.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, models.RecordConsentResponse{
		Success:   true,
		ConsentID: result.Entry.ID,
		Action:    result.Entry.Action,
		Timestamp: result.Entry.CreatedAt.UnixMilli(),
	})
}

// HandleHistory handles GET /consent/record.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	history, err := h.consent.History(ctx, owner)
	if err != nil {
		h.logFailure(ctx, "failed to load consent history", owner, err)
		httputil.WriteError(w, err)
		return
	}

	resp := models.HistoryResponse{
		History:           history.Entries,
		DataSubjectRights: models.DefaultDataSubjectRights(),
	}
	if resp.History == nil {
		resp.History = []models.AuditEntry{}
	}
	if c := history.Current; c != nil {
		resp.CurrentConsent = &models.CurrentConsent{
			ConsentRecord: c.Record,
			Action:        c.Action,
			ConsentID:     c.AuditID,
			UpdatedAt:     c.UpdatedAt.UnixMilli(),
		}
		resp.WithdrawalAvailable = c.Action != models.ActionWithdrawn
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleWithdraw handles DELETE /consent/record.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	result, err := h.consent.Withdraw(ctx, owner)
	if err != nil {
		h.logFailure(ctx, "failed to withdraw consent", owner, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "consent withdrawn",
		"request_id", requestcontext.RequestID(ctx),
		"owner", owner.Key(),
		"outcome", result.Outcome.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, models.WithdrawConsentResponse{
		Success:      true,
		WithdrawalID: result.Entry.ID,
		Timestamp:    result.Entry.CreatedAt.UnixMilli(),
	})
}

// HandleExport handles GET /consent/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	entries, err := h.consent.Export(ctx, owner)
	if err != nil {
		h.logFailure(ctx, "failed to export consent history", owner, err)
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	w.Header().Set("Content-Disposition", `attachment; filename="consent-export.json"`)
	httputil.WriteJSON(w, http.StatusOK, models.ExportResponse{
		Owner:      owner.Key(),
		Entries:    entries,
		ExportedAt: requestcontext.Now(ctx).UnixMilli(),
	})
}

// HandleErase handles DELETE /consent/data.
func (h *Handler) HandleErase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	result, err := h.consent.Erase(ctx, owner)
	if err != nil {
		h.logFailure(ctx, "failed to erase consent data", owner, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "consent data erased",
		"request_id", requestcontext.RequestID(ctx),
		"owner", owner.Key(),
		"erased_entries", result.Erased,
		"outcome", result.Outcome.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, models.EraseConsentResponse{
		Success:       true,
		ErasedEntries: result.Erased,
		Timestamp:     requestcontext.Now(ctx).UnixMilli(),
	})
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, owner models.Owner, err error) {
	level := slog.LevelError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"owner", owner.Key(),
		"error", err,
	)
}
