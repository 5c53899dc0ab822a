package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"convertviral/internal/audit"
	"convertviral/internal/consent/models"
	dErrors "convertviral/pkg/domain-errors"
	"convertviral/pkg/platform/outcome"
	"convertviral/pkg/platform/sentinel"
	"convertviral/pkg/requestcontext"
)

// Secondary step names reported in write outcomes.
const (
	StepAuditEntry = "audit_entry"
	StepFeedAppend = "feed_append"
	StepFeedTrim   = "feed_trim"
	StepOwnerIndex = "owner_index"
	StepArchive    = "archive"
)

const (
	defaultRetention    = 7 * 365 * 24 * time.Hour
	defaultFeedLimit    = 1000
	defaultHistoryLimit = 50
	defaultFormVersion  = "1.0"
	exportLimit         = 10000
)

// Store persists consent state. Absent records are reported as
// sentinel.ErrNotFound; a ttl of zero means no expiry.
type Store interface {
	Current(ctx context.Context, owner models.Owner) (*models.Current, error)
	SaveCurrent(ctx context.Context, owner models.Owner, current *models.Current, ttl time.Duration) error
	SaveEntry(ctx context.Context, entry *models.AuditEntry, ttl time.Duration) error
	Entry(ctx context.Context, id string) (*models.AuditEntry, error)
	AppendFeed(ctx context.Context, id string) error
	TrimFeed(ctx context.Context, limit int64) error
	FeedEntryIDs(ctx context.Context, limit int64) ([]string, error)
	IndexEntry(ctx context.Context, owner models.Owner, id string, ttl time.Duration) error
	OwnerEntryIDs(ctx context.Context, owner models.Owner, limit int64) ([]string, error)
	DeleteOwner(ctx context.Context, owner models.Owner, entryIDs []string) error
}

// Archive is a compliance copy of audit entries kept outside the key/value
// store's TTL regime.
type Archive interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	EraseOwner(ctx context.Context, owner models.Owner) (int64, error)
}

// archiveReader is implemented by archives that can list an owner's entries.
type archiveReader interface {
	ListByOwner(ctx context.Context, owner models.Owner, limit int) ([]models.AuditEntry, error)
}

// AuditPublisher receives operational security events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RecordResult pairs the written audit entry with the outcome of the
// secondary writes. The primary write always committed when a result is
// returned.
type RecordResult struct {
	Entry   *models.AuditEntry
	Outcome outcome.Outcome
}

// History is an owner's current state plus their most recent entries,
// newest first.
type History struct {
	Current *models.Current
	Entries []models.AuditEntry
}

// EraseResult reports how many audit entries were removed.
type EraseResult struct {
	Erased  int
	Outcome outcome.Outcome
}

// Service records consent decisions as current state plus an append-only
// audit trail.
//
// Within one process, writes for the same owner are serialized. Across
// instances the read-derive-write sequence is not atomic: two concurrent
// submissions for one owner on different instances can derive previousConsents
// from stale state.
type Service struct {
	store   Store
	archive Archive
	auditor AuditPublisher
	locks   *ownerLocks
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() (string, error)

	retention    time.Duration
	feedLimit    int64
	historyLimit int
	formVersion  string
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithArchive enables the compliance archive as a secondary write.
func WithArchive(archive Archive) Option {
	return func(s *Service) {
		s.archive = archive
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

func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithRetention sets the TTL of current state, entries and owner indexes.
func WithRetention(retention time.Duration) Option {
	return func(s *Service) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// WithFeedLimit bounds the global recent-activity feed.
func WithFeedLimit(limit int64) Option {
	return func(s *Service) {
		if limit > 0 {
			s.feedLimit = limit
		}
	}
}

func WithHistoryLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithFormVersion sets the version stamped on synthesized withdrawal records.
func WithFormVersion(version string) Option {
	return func(s *Service) {
		if version != "" {
			s.formVersion = version
		}
	}
}

func WithTxTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.locks.timeout = timeout
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		locks:        &ownerLocks{timeout: defaultOwnerTimeout},
		logger:       slog.Default(),
		tracer:       otel.Tracer("convertviral/internal/consent/service"),
		now:          time.Now,
		newID:        newAuditID,
		retention:    defaultRetention,
		feedLimit:    defaultFeedLimit,
		historyLimit: defaultHistoryLimit,
		formVersion:  defaultFormVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newAuditID returns a UUIDv7: time-ordered with a random suffix.
func newAuditID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Record validates req and records it for owner. Captured client IP and user
// agent come from the request context.
func (s *Service) Record(ctx context.Context, owner models.Owner, req *models.RecordConsentRequest) (*RecordResult, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "consent owner is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rec := req.ToRecord()
	rec.IP = requestcontext.ClientIP(ctx)
	rec.UserAgent = requestcontext.UserAgent(ctx)
	return s.record(ctx, "consent.Record", owner, rec, "")
}

// Withdraw records an all-optional-false decision for owner with the
// withdrawn action, whatever the prior state.
func (s *Service) Withdraw(ctx context.Context, owner models.Owner) (*RecordResult, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "consent owner is required")
	}
	rec := models.WithdrawalRecord(
		s.formVersion,
		s.now().UnixMilli(),
		requestcontext.ClientIP(ctx),
		requestcontext.UserAgent(ctx),
	)
	return s.record(ctx, "consent.Withdraw", owner, rec, models.ActionWithdrawn)
}

func (s *Service) record(ctx context.Context, spanName string, owner models.Owner, rec models.ConsentRecord, forced models.Action) (*RecordResult, error) {
	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("consent.owner_kind", ownerKind(owner)),
	))
	defer span.End()

	var result *RecordResult
	err := s.locks.WithOwner(ctx, owner.Key(), func(txCtx context.Context) error {
		// Writes outlive a client disconnect but not the transaction deadline.
		deadline, _ := txCtx.Deadline()
		writeCtx, cancel := context.WithDeadline(context.WithoutCancel(txCtx), deadline)
		defer cancel()

		previous, err := s.loadCurrent(writeCtx, owner)
		if err != nil {
			return err
		}

		action := DeriveAction(previous, rec)
		if forced != "" {
			action = forced
		}

		id, err := s.newID()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate audit id")
		}
		now := s.now()
		entry := &models.AuditEntry{
			ID:            id,
			UserID:        owner.UserID,
			SessionID:     owner.SessionID,
			IP:            rec.IP,
			UserAgent:     rec.UserAgent,
			ConsentRecord: rec.Clone(),
			Action:        action,
			CreatedAt:     now,
		}
		if previous != nil {
			entry.PreviousConsents = maps.Clone(previous.Record.Consents)
		}
		current := &models.Current{
			Record:    rec.Clone(),
			Action:    action,
			AuditID:   id,
			UserID:    owner.UserID,
			SessionID: owner.SessionID,
			UpdatedAt: now,
		}

		if err := s.store.SaveCurrent(writeCtx, owner, current, s.retention); err != nil {
			writeFailuresTotal.WithLabelValues("current").Inc()
			s.logger.ErrorContext(ctx, "failed to persist current consent state",
				"owner", owner.Key(),
				"action", string(action),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record consent")
		}

		result = &RecordResult{Entry: entry, Outcome: s.writeTrail(writeCtx, owner, entry)}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record consent failed")
		return nil, err
	}

	entry := result.Entry
	actionsTotal.WithLabelValues(string(entry.Action)).Inc()
	span.SetAttributes(
		attribute.String("consent.action", string(entry.Action)),
		attribute.String("consent.audit_id", entry.ID),
		attribute.String("consent.outcome", result.Outcome.String()),
	)
	if result.Outcome.Degraded() {
		s.logger.WarnContext(ctx, "consent recorded with degraded audit trail",
			"owner", owner.Key(),
			"audit_id", entry.ID,
			"outcome", result.Outcome.String(),
			"error", result.Outcome.Err(),
		)
	}
	s.emit(ctx, audit.Event{
		Action:     consentEvent(entry.Action),
		UserID:     owner.UserID,
		SessionID:  owner.SessionID,
		Subject:    entry.ID,
		Decision:   string(entry.Action),
		Categories: grantedCategories(entry.ConsentRecord),
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		RequestID:  requestcontext.RequestID(ctx),
	})
	return result, nil
}

// writeTrail performs the best-effort secondary writes for a committed
// decision. Feed and index steps are skipped when the entry itself failed so
// they never point at nothing.
func (s *Service) writeTrail(ctx context.Context, owner models.Owner, entry *models.AuditEntry) outcome.Outcome {
	var out outcome.Outcome
	fail := func(step string, err error) {
		if err != nil {
			writeFailuresTotal.WithLabelValues(step).Inc()
		}
		out.Fail(step, err)
	}

	if err := s.store.SaveEntry(ctx, entry, s.retention); err != nil {
		fail(StepAuditEntry, err)
	} else {
		fail(StepFeedAppend, s.store.AppendFeed(ctx, entry.ID))
		fail(StepFeedTrim, s.store.TrimFeed(ctx, s.feedLimit))
		fail(StepOwnerIndex, s.store.IndexEntry(ctx, owner, entry.ID, s.retention))
	}
	if s.archive != nil {
		fail(StepArchive, s.archive.Append(ctx, entry))
	}
	return out
}

// loadCurrent returns nil when owner has no usable current state.
func (s *Service) loadCurrent(ctx context.Context, owner models.Owner) (*models.Current, error) {
	current, err := s.store.Current(ctx, owner)
	switch {
	case err == nil:
		return current, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, nil
	case errors.Is(err, sentinel.ErrCorrupt):
		s.logger.WarnContext(ctx, "current consent state undecodable, treating as absent",
			"owner", owner.Key(),
			"error", err,
		)
		return nil, nil
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store unavailable")
	}
}

// History returns owner's current state and up to the history limit of
// their audit entries, newest first. Entries that no longer exist are skipped.
func (s *Service) History(ctx context.Context, owner models.Owner) (*History, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "consent owner is required")
	}
	ctx, span := s.tracer.Start(ctx, "consent.History", trace.WithAttributes(
		attribute.String("consent.owner_kind", ownerKind(owner)),
	))
	defer span.End()

	current, err := s.loadCurrent(ctx, owner)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ids, err := s.store.OwnerEntryIDs(ctx, owner, int64(s.historyLimit))
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store unavailable")
	}

	var entries []models.AuditEntry
	if len(ids) > 0 {
		entries, err = s.loadEntries(ctx, ids, func(models.AuditEntry) bool { return true })
	} else if current != nil {
		// Owners recorded before per-owner indexing only appear in the feed.
		entries, err = s.scanFeed(ctx, owner)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	sortNewestFirst(entries)
	if len(entries) > s.historyLimit {
		entries = entries[:s.historyLimit]
	}
	span.SetAttributes(attribute.Int("consent.history_len", len(entries)))
	return &History{Current: current, Entries: entries}, nil
}

func (s *Service) scanFeed(ctx context.Context, owner models.Owner) ([]models.AuditEntry, error) {
	ids, err := s.store.FeedEntryIDs(ctx, s.feedLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store unavailable")
	}
	return s.loadEntries(ctx, ids, func(e models.AuditEntry) bool { return e.BelongsTo(owner) })
}

func (s *Service) loadEntries(ctx context.Context, ids []string, keep func(models.AuditEntry) bool) ([]models.AuditEntry, error) {
	entries := make([]models.AuditEntry, 0, min(len(ids), s.historyLimit))
	for _, id := range ids {
		if len(entries) >= s.historyLimit {
			break
		}
		entry, err := s.store.Entry(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, sentinel.ErrNotFound):
			continue
		case errors.Is(err, sentinel.ErrCorrupt):
			s.logger.WarnContext(ctx, "audit entry undecodable, skipping",
				"audit_id", id,
				"error", err,
			)
			continue
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store unavailable")
		}
		if keep(*entry) {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

// Export returns every retained audit entry of owner, newest first, for data
// portability. The archive is preferred when it can list entries since it is
// not subject to key/value TTLs.
func (s *Service) Export(ctx context.Context, owner models.Owner) ([]models.AuditEntry, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "consent owner is required")
	}
	ctx, span := s.tracer.Start(ctx, "consent.Export")
	defer span.End()

	if reader, ok := s.archive.(archiveReader); ok {
		entries, err := reader.ListByOwner(ctx, owner, exportLimit)
		if err == nil {
			return entries, nil
		}
		s.logger.WarnContext(ctx, "consent archive unavailable for export, using key/value store",
			"owner", owner.Key(),
			"error", err,
		)
	}

	ids, err := s.store.OwnerEntryIDs(ctx, owner, exportLimit)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store unavailable")
	}
	entries := make([]models.AuditEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.store.Entry(ctx, id)
		switch {
		case err == nil:
			entries = append(entries, *entry)
		case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrCorrupt):
		default:
			span.RecordError(err)
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store unavailable")
		}
	}
	sortNewestFirst(entries)
	return entries, nil
}

// Erase removes owner's current state, audit entries and index. Global feed
// ids that pointed at erased entries are skipped on read. The archive copy is
// erased as a secondary step.
func (s *Service) Erase(ctx context.Context, owner models.Owner) (*EraseResult, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "consent owner is required")
	}
	ctx, span := s.tracer.Start(ctx, "consent.Erase", trace.WithAttributes(
		attribute.String("consent.owner_kind", ownerKind(owner)),
	))
	defer span.End()

	var result *EraseResult
	err := s.locks.WithOwner(ctx, owner.Key(), func(txCtx context.Context) error {
		deadline, _ := txCtx.Deadline()
		writeCtx, cancel := context.WithDeadline(context.WithoutCancel(txCtx), deadline)
		defer cancel()

		ids, err := s.store.OwnerEntryIDs(writeCtx, owner, 0)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store unavailable")
		}
		if err := s.store.DeleteOwner(writeCtx, owner, ids); err != nil {
			writeFailuresTotal.WithLabelValues("erase").Inc()
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to erase consent data")
		}

		result = &EraseResult{Erased: len(ids)}
		if s.archive != nil {
			if _, err := s.archive.EraseOwner(writeCtx, owner); err != nil {
				writeFailuresTotal.WithLabelValues(StepArchive).Inc()
				result.Outcome.Fail(StepArchive, err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "erase consent failed")
		s.logger.ErrorContext(ctx, "failed to erase consent data",
			"owner", owner.Key(),
			"error", err,
		)
		return nil, err
	}

	erasuresTotal.Inc()
	span.SetAttributes(attribute.Int("consent.erased", result.Erased))
	if result.Outcome.Degraded() {
		s.logger.WarnContext(ctx, "consent erased with degraded archive",
			"owner", owner.Key(),
			"outcome", result.Outcome.String(),
			"error", result.Outcome.Err(),
		)
	}
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventConsentErased),
		UserID:    owner.UserID,
		SessionID: owner.SessionID,
		Decision:  "erased",
		IP:        requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		RequestID: requestcontext.RequestID(ctx),
	})
	return result, nil
}

// sortNewestFirst orders entries by creation time, descending. Equal times
// fall back to the id, which is time-ordered.
func sortNewestFirst(entries []models.AuditEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.Timestamp = s.now()
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit consent audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func consentEvent(action models.Action) string {
	switch action {
	case models.ActionGranted:
		return string(audit.EventConsentGranted)
	case models.ActionWithdrawn:
		return string(audit.EventConsentWithdrawn)
	default:
		return string(audit.EventConsentUpdated)
	}
}

// grantedCategories lists the categories set to true, sorted.
func grantedCategories(rec models.ConsentRecord) []string {
	out := make([]string, 0, len(rec.Consents))
	for category, granted := range rec.Consents {
		if granted {
			out = append(out, category)
		}
	}
	slices.Sort(out)
	return out
}

func ownerKind(owner models.Owner) string {
	if owner.UserID != "" {
		return "user"
	}
	return "session"
}
