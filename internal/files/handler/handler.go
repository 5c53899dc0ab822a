package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"convertviral/internal/files"
	"convertviral/internal/platform/middleware"
	dErrors "convertviral/pkg/domain-errors"
	"convertviral/pkg/platform/httputil"
	"convertviral/pkg/requestcontext"
)

// multipartOverhead covers form boundaries and part headers on top of the
// file itself.
const multipartOverhead = 1 << 20

// Service defines the interface for file operations.
type Service interface {
	Upload(ctx context.Context, r io.Reader, size int64, name, contentType, ownerID string) (*files.Object, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (*files.Link, error)
	Delete(ctx context.Context, key string) (bool, error)
	MaxBytes() int64
}

// Handler handles file upload and download-link endpoints.
type Handler struct {
	logger       *slog.Logger
	files        Service
	jwtValidator middleware.JWTValidator
}

func New(svc Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		files:        svc,
		jwtValidator: jwtValidator,
	}
}

// Register registers the file routes. Uploads are open to anonymous callers;
// keys of authenticated uploads are only reachable by their owner.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(h.jwtValidator, h.logger))
		r.Post("/files", h.HandleUpload)
		r.Get("/files/*", h.HandleSignedURL)
		r.Delete("/files/*", h.HandleDelete)
	})
}

// HandleUpload handles POST /files with a multipart "file" part.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := h.files.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeTooLarge, "file exceeds the "+humanize.IBytes(uint64(limit))+" upload limit"))
			return
		}
		h.logger.WarnContext(ctx, "invalid upload form",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	ownerID := requestcontext.UserID(ctx)
	obj, err := h.files.Upload(ctx, file, header.Size, header.Filename, header.Header.Get("Content-Type"), ownerID)
	if err != nil {
		h.logFailure(ctx, "failed to upload file", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, obj)
}

// HandleSignedURL handles GET /files/{key}. The optional ttl query parameter
// accepts seconds or a Go duration. With redirect=true the caller is sent
// straight to the signed URL.
func (h *Handler) HandleSignedURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "*")
	if !files.CanAccess(key, requestcontext.UserID(ctx)) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "file not found"))
		return
	}

	ttl, err := parseTTL(r.URL.Query().Get("ttl"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	link, err := h.files.SignedURL(ctx, key, ttl)
	if err != nil {
		h.logFailure(ctx, "failed to sign file url", err)
		httputil.WriteError(w, err)
		return
	}
	if redirect, _ := strconv.ParseBool(r.URL.Query().Get("redirect")); redirect {
		http.Redirect(w, r, link.URL, http.StatusFound)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, link)
}

// HandleDelete handles DELETE /files/{key}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "*")
	if !files.CanAccess(key, requestcontext.UserID(ctx)) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "file not found"))
		return
	}

	deleted, err := h.files.Delete(ctx, key)
	if err != nil {
		h.logFailure(ctx, "failed to delete file", err)
		httputil.WriteError(w, err)
		return
	}
	if !deleted {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "file not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d, nil
	}
	return 0, dErrors.New(dErrors.CodeBadRequest, "ttl must be a positive number of seconds or a duration")
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeNotFound, dErrors.CodeTooLarge:
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
