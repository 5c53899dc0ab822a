// Package files stores user uploads in object storage and hands out
// time-limited signed download URLs. Uploads are deleted after a retention
// delay by an in-process scheduler.
package files

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"convertviral/internal/audit"
	"convertviral/internal/storage"
	dErrors "convertviral/pkg/domain-errors"
	"convertviral/pkg/platform/sentinel"
	"convertviral/pkg/requestcontext"
)

const (
	keyPrefix      = "uploads/"
	anonymousOwner = "anonymous"
	maxNameLen     = 128

	defaultURLTTL    = time.Hour
	defaultRetention = 24 * time.Hour
	defaultMaxBytes  = 100 << 20
	maxURLTTL        = 7 * 24 * time.Hour
)

// AuditPublisher receives file lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Object describes a stored upload.
type Object struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URLExpires  time.Time `json:"urlExpiresAt"`
	// DeleteAt is zero when no deletion was scheduled.
	DeleteAt time.Time `json:"deleteAt,omitzero"`
}

// Service is the signed-URL file store.
type Service struct {
	store     storage.ObjectStore
	scheduler *Scheduler
	auditor   AuditPublisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	urlTTL    time.Duration
	retention time.Duration
	maxBytes  int64
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(auditor AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithURLTTL sets the default lifetime of signed download URLs.
func WithURLTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.urlTTL = ttl
		}
	}
}

// WithRetention sets the delay after which uploads are deleted. Zero or less
// disables automatic deletion.
func WithRetention(retention time.Duration) Option {
	return func(s *Service) {
		s.retention = retention
	}
}

func WithMaxBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func New(store storage.ObjectStore, scheduler *Scheduler, opts ...Option) *Service {
	s := &Service{
		store:     store,
		scheduler: scheduler,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
		urlTTL:    defaultURLTTL,
		retention: defaultRetention,
		maxBytes:  defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBytes is the upload size limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores r under a fresh key owned by ownerID (empty for anonymous
// uploads), returns a signed URL and schedules the object's deletion.
func (s *Service) Upload(ctx context.Context, r io.Reader, size int64, name, contentType, ownerID string) (*Object, error) {
	if size <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file is empty")
	}
	if size > s.maxBytes {
		return nil, dErrors.New(dErrors.CodeTooLarge, "file exceeds the "+humanize.IBytes(uint64(s.maxBytes))+" upload limit")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	safeName := SanitizeName(name)
	key := ObjectKey(ownerID, s.newID(), safeName)
	info, err := s.store.Put(ctx, storage.PutInput{
		Key:         key,
		Body:        r,
		Size:        size,
		ContentType: contentType,
		Metadata:    map[string]string{"original-name": safeName, "owner": ownerOrAnonymous(ownerID)},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store upload",
			"key", key,
			"size", humanize.IBytes(uint64(size)),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "object storage unavailable")
	}
	uploadsTotal.Inc()
	uploadedBytesTotal.Add(float64(info.Size))

	url, err := s.store.PresignGet(ctx, key, s.urlTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign download url")
	}

	now := s.now()
	obj := &Object{
		Key:         key,
		URL:         url,
		Name:        safeName,
		ContentType: contentType,
		Size:        info.Size,
		URLExpires:  now.Add(s.urlTTL),
	}
	if s.retention > 0 && s.ScheduleDeletion(key, s.retention) {
		obj.DeleteAt = now.Add(s.retention)
	}

	s.logger.InfoContext(ctx, "file uploaded",
		"key", key,
		"size", humanize.IBytes(uint64(info.Size)),
		"content_type", contentType,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.EventFileUploaded, ownerID, key)
	return obj, nil
}

// Link is a signed download URL and the instant it stops working.
type Link struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SignedURL returns a download URL for key valid for ttl. A zero ttl uses the
// configured default.
func (s *Service) SignedURL(ctx context.Context, key string, ttl time.Duration) (*Link, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.urlTTL
	}
	if ttl > maxURLTTL {
		return nil, dErrors.New(dErrors.CodeValidation, "expiry must not exceed 7 days")
	}
	if _, err := s.store.Stat(ctx, key); err != nil {
		return nil, mapStoreError(err)
	}
	url, err := s.store.PresignGet(ctx, key, ttl)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign download url")
	}
	return &Link{Key: key, URL: url, ExpiresAt: s.now().Add(ttl)}, nil
}

// Delete removes key and cancels its scheduled deletion. It reports false
// when the object did not exist.
func (s *Service) Delete(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if _, err := s.store.Stat(ctx, key); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.scheduler.Cancel(key)
			return false, nil
		}
		return false, mapStoreError(err)
	}
	if err := s.store.Remove(ctx, key); err != nil {
		return false, mapStoreError(err)
	}
	s.scheduler.Cancel(key)
	s.emit(ctx, audit.EventFileDeleted, OwnerOf(key), key)
	return true, nil
}

// ScheduleDeletion removes key after delay. The deletion lives only in this
// process; it is lost on restart.
func (s *Service) ScheduleDeletion(key string, delay time.Duration) bool {
	return s.scheduler.Schedule(key, delay, func(ctx context.Context) error {
		if err := s.store.Remove(ctx, key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		s.logger.InfoContext(ctx, "scheduled file deletion executed", "key", key)
		s.emit(ctx, audit.EventFileDeletionExecuted, OwnerOf(key), key)
		return nil
	})
}

// Close stops the deletion scheduler. Pending deletions are dropped.
func (s *Service) Close(ctx context.Context) error {
	return s.scheduler.Stop(ctx)
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, ownerID, key string) {
	if s.auditor == nil {
		return
	}
	if ownerID == anonymousOwner {
		ownerID = ""
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:    string(action),
		UserID:    ownerID,
		Subject:   key,
		IP:        requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit file audit event",
			"action", string(action),
			"error", err,
		)
	}
}

// ObjectKey builds uploads/<owner|anonymous>/<id>/<name>.
func ObjectKey(ownerID, id, name string) string {
	return keyPrefix + ownerOrAnonymous(ownerID) + "/" + id + "/" + name
}

// OwnerOf returns the owner segment of an object key, "anonymous" for
// anonymous uploads, or "" when key is not an upload key.
func OwnerOf(key string) string {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return ""
	}
	owner, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return owner
}

// CanAccess reports whether userID may read or delete key. Anonymous uploads
// are reachable by anyone holding the unguessable key.
func CanAccess(key, userID string) bool {
	owner := OwnerOf(key)
	return owner == anonymousOwner || (owner != "" && owner == userID)
}

// SanitizeName keeps the base name and replaces characters outside
// [A-Za-z0-9._-] with underscores.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxNameLen {
		out = out[len(out)-maxNameLen:]
	}
	if out == "" || out == "_" {
		return "file"
	}
	return out
}

func ownerOrAnonymous(ownerID string) string {
	if ownerID == "" {
		return anonymousOwner
	}
	return ownerID
}

func validateKey(key string) error {
	if OwnerOf(key) == "" || strings.Contains(key, "..") {
		return dErrors.New(dErrors.CodeBadRequest, "invalid file key")
	}
	return nil
}

func mapStoreError(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "file not found")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "object storage unavailable")
}
