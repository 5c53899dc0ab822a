// Package formats serves the catalogue of supported conversions. The list is
// near-static, so it is read through the layered cache with the long TTL.
package formats

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"convertviral/internal/cache"
	dErrors "convertviral/pkg/domain-errors"
)

// CacheKey is the cache entry holding the catalogue.
const CacheKey = "formats"

// Category groups formats by media kind.
type Category string

const (
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
)

// Format is one input format and the outputs it converts to.
type Format struct {
	Extension string   `json:"extension"`
	MimeType  string   `json:"mimeType"`
	Category  Category `json:"category"`
	Targets   []string `json:"targets"`
}

// Loader produces the catalogue on a cache miss.
type Loader func(ctx context.Context) ([]Format, error)

// Service lists formats through the cache.
type Service struct {
	cache  *cache.Cache
	ttl    time.Duration
	load   Loader
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTTL overrides the cache lifetime of the catalogue.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLoader replaces the built-in catalogue.
func WithLoader(load Loader) Option {
	return func(s *Service) {
		s.load = load
	}
}

func NewService(c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		cache:  c,
		ttl:    cache.TTLLong,
		load:   BuiltinCatalogue,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every supported format, optionally restricted to category.
func (s *Service) List(ctx context.Context, category Category) ([]Format, error) {
	all, err := cache.Remember(ctx, s.cache, CacheKey, s.ttl, s.load)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load format catalogue", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load formats")
	}
	if category == "" {
		return all, nil
	}
	out := make([]Format, 0, len(all))
	for _, f := range all {
		if f.Category == category {
			out = append(out, f)
		}
	}
	return out, nil
}

// Invalidate drops the cached catalogue so the next List reloads it.
func (s *Service) Invalidate(ctx context.Context) {
	if out := s.cache.Delete(ctx, CacheKey); !out.Committed() {
		s.logger.WarnContext(ctx, "format catalogue invalidation incomplete", "outcome", out.String())
	}
}

// ParseCategory validates a category filter. Empty means all categories.
func ParseCategory(raw string) (Category, error) {
	c := Category(raw)
	if raw == "" || slices.Contains(categories, c) {
		return c, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown format category: "+raw)
}

var categories = []Category{CategoryVideo, CategoryAudio, CategoryImage, CategoryDocument}

var builtin = []Format{
	{Extension: "mp4", MimeType: "video/mp4", Category: CategoryVideo, Targets: []string{"webm", "mov", "gif", "mp3"}},
	{Extension: "mov", MimeType: "video/quicktime", Category: CategoryVideo, Targets: []string{"mp4", "webm", "gif"}},
	{Extension: "webm", MimeType: "video/webm", Category: CategoryVideo, Targets: []string{"mp4", "gif", "mp3"}},
	{Extension: "mp3", MimeType: "audio/mpeg", Category: CategoryAudio, Targets: []string{"wav", "ogg", "m4a"}},
	{Extension: "wav", MimeType: "audio/wav", Category: CategoryAudio, Targets: []string{"mp3", "ogg", "m4a"}},
	{Extension: "ogg", MimeType: "audio/ogg", Category: CategoryAudio, Targets: []string{"mp3", "wav"}},
	{Extension: "png", MimeType: "image/png", Category: CategoryImage, Targets: []string{"jpg", "webp", "gif"}},
	{Extension: "jpg", MimeType: "image/jpeg", Category: CategoryImage, Targets: []string{"png", "webp"}},
	{Extension: "webp", MimeType: "image/webp", Category: CategoryImage, Targets: []string{"png", "jpg"}},
	{Extension: "gif", MimeType: "image/gif", Category: CategoryImage, Targets: []string{"mp4", "webm", "png"}},
	{Extension: "pdf", MimeType: "application/pdf", Category: CategoryDocument, Targets: []string{"png", "jpg", "txt"}},
}

// BuiltinCatalogue returns a copy of the formats compiled into the binary.
func BuiltinCatalogue(context.Context) ([]Format, error) {
	out := make([]Format, len(builtin))
	for i, f := range builtin {
		f.Targets = slices.Clone(f.Targets)
		out[i] = f
	}
	return out, nil
}
