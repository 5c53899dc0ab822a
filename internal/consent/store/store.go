// Package store persists consent state over the shared key/value store and
// optionally archives audit entries in Postgres.
//
// Key layout:
//
//	consent:<owner>                 current-state record
//	consent:audit:<id>              immutable audit entry
//	consent:audit:log               global recent-activity feed (ids, newest first, capped)
//	consent:audit:owner:<owner>     per-owner entry index (ids, newest first)
//
// where <owner> is "user:<id>" or "session:<id>".
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"convertviral/internal/consent/models"
	"convertviral/internal/platform/kv"
	"convertviral/pkg/platform/sentinel"
)

const (
	currentKeyPrefix    = "consent:"
	entryKeyPrefix      = "consent:audit:"
	feedKey             = "consent:audit:log"
	ownerIndexKeyPrefix = "consent:audit:owner:"
)

// Store is the key/value-backed consent store.
type Store struct {
	kv kv.Store
}

func New(store kv.Store) *Store {
	return &Store{kv: store}
}

func currentKey(owner models.Owner) string { return currentKeyPrefix + owner.Key() }
func entryKey(id string) string            { return entryKeyPrefix + id }
func ownerIndexKey(owner models.Owner) string {
	return ownerIndexKeyPrefix + owner.Key()
}

func (s *Store) Current(ctx context.Context, owner models.Owner) (*models.Current, error) {
	raw, err := s.kv.Get(ctx, currentKey(owner))
	if err != nil {
		return nil, err
	}
	var current models.Current
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return nil, fmt.Errorf("decode current consent %s: %w: %w", owner.Key(), sentinel.ErrCorrupt, err)
	}
	return &current, nil
}

func (s *Store) SaveCurrent(ctx context.Context, owner models.Owner, current *models.Current, ttl time.Duration) error {
	payload, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode current consent: %w", err)
	}
	return s.kv.Set(ctx, currentKey(owner), string(payload), ttl)
}

func (s *Store) SaveEntry(ctx context.Context, entry *models.AuditEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	return s.kv.Set(ctx, entryKey(entry.ID), string(payload), ttl)
}

func (s *Store) Entry(ctx context.Context, id string) (*models.AuditEntry, error) {
	raw, err := s.kv.Get(ctx, entryKey(id))
	if err != nil {
		return nil, err
	}
	var entry models.AuditEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode audit entry %s: %w: %w", id, sentinel.ErrCorrupt, err)
	}
	return &entry, nil
}

// AppendFeed prepends id to the global feed.
func (s *Store) AppendFeed(ctx context.Context, id string) error {
	return s.kv.LPush(ctx, feedKey, id)
}

// TrimFeed keeps the newest limit ids of the global feed.
func (s *Store) TrimFeed(ctx context.Context, limit int64) error {
	return s.kv.LTrim(ctx, feedKey, 0, limit-1)
}

// FeedEntryIDs returns up to limit feed ids, newest first.
func (s *Store) FeedEntryIDs(ctx context.Context, limit int64) ([]string, error) {
	return s.kv.LRange(ctx, feedKey, 0, stopFor(limit))
}

// IndexEntry prepends id to the owner's index and refreshes its TTL.
func (s *Store) IndexEntry(ctx context.Context, owner models.Owner, id string, ttl time.Duration) error {
	key := ownerIndexKey(owner)
	if err := s.kv.LPush(ctx, key, id); err != nil {
		return err
	}
	if ttl > 0 {
		return s.kv.Expire(ctx, key, ttl)
	}
	return nil
}

// OwnerEntryIDs returns up to limit ids from the owner index, newest first.
// A limit of zero or less returns the whole index.
func (s *Store) OwnerEntryIDs(ctx context.Context, owner models.Owner, limit int64) ([]string, error) {
	ids, err := s.kv.LRange(ctx, ownerIndexKey(owner), 0, stopFor(limit))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return ids, err
}

// DeleteOwner removes the owner's current state, index and the given entries.
func (s *Store) DeleteOwner(ctx context.Context, owner models.Owner, entryIDs []string) error {
	keys := make([]string, 0, len(entryIDs)+2)
	keys = append(keys, currentKey(owner), ownerIndexKey(owner))
	for _, id := range entryIDs {
		keys = append(keys, entryKey(id))
	}
	return s.kv.Del(ctx, keys...)
}

func stopFor(limit int64) int64 {
	if limit <= 0 {
		return -1
	}
	return limit - 1
}
