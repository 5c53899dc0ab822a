package formats

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"convertviral/pkg/platform/httputil"
	"convertviral/pkg/requestcontext"
)

// Lister is what the handler needs from the format service.
type Lister interface {
	List(ctx context.Context, category Category) ([]Format, error)
}

// Handler serves the format catalogue.
type Handler struct {
	formats Lister
	logger  *slog.Logger
	maxAge  time.Duration
}

// NewHandler builds the handler. maxAge sets the Cache-Control max-age sent to
// clients.
func NewHandler(formats Lister, logger *slog.Logger, maxAge time.Duration) *Handler {
	return &Handler{formats: formats, logger: logger, maxAge: maxAge}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/formats", h.HandleList)
}

type listResponse struct {
	Formats []Format `json:"formats"`
}

// HandleList handles GET /formats?category=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category, err := ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	list, err := h.formats.List(ctx, category)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list formats",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if h.maxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+formatSeconds(h.maxAge))
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Formats: list})
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}
