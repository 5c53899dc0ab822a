package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"convertviral/internal/consent/models"
	"convertviral/internal/platform/kv"
	"convertviral/pkg/platform/sentinel"
)

// StoreSuite runs against any kv backend; the integration build reuses it
// with Redis.
type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	newKV func() kv.Store
	kv    kv.Store
	store *Store
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.kv = s.newKV()
	s.store = New(s.kv)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newKV: func() kv.Store { return kv.NewMemoryStore() }})
}

func entry(id string, owner models.Owner, at time.Time) *models.AuditEntry {
	return &models.AuditEntry{
		ID:        id,
		UserID:    owner.UserID,
		SessionID: owner.SessionID,
		Action:    models.ActionGranted,
		ConsentRecord: models.ConsentRecord{
			Consents:  map[string]bool{"essential": true, "analytics": true},
			Timestamp: at.UnixMilli(),
			Version:   "1.0",
		},
		CreatedAt: at.UTC(),
	}
}

func (s *StoreSuite) TestCurrentRoundTrip() {
	owner := models.Owner{UserID: "42"}
	_, err := s.store.Current(s.ctx, owner)
	s.ErrorIs(err, sentinel.ErrNotFound)

	now := time.Unix(1_700_000_000, 0).UTC()
	current := &models.Current{
		Record:    models.ConsentRecord{Consents: map[string]bool{"analytics": true}, Timestamp: 1, Version: "1.0"},
		Action:    models.ActionGranted,
		AuditID:   "a1",
		UserID:    "42",
		UpdatedAt: now,
	}
	s.Require().NoError(s.store.SaveCurrent(s.ctx, owner, current, time.Hour))

	got, err := s.store.Current(s.ctx, owner)
	s.Require().NoError(err)
	s.Equal(current.AuditID, got.AuditID)
	s.Equal(current.Record.Consents, got.Record.Consents)
	s.True(now.Equal(got.UpdatedAt))

	raw, err := s.kv.Get(s.ctx, "consent:user:42")
	s.Require().NoError(err)
	s.Contains(raw, `"a1"`)
}

func (s *StoreSuite) TestCorruptValues() {
	s.Require().NoError(s.kv.Set(s.ctx, "consent:session:abc", "not json", 0))
	_, err := s.store.Current(s.ctx, models.Owner{SessionID: "abc"})
	s.ErrorIs(err, sentinel.ErrCorrupt)

	s.Require().NoError(s.kv.Set(s.ctx, "consent:audit:bad", "{", 0))
	_, err = s.store.Entry(s.ctx, "bad")
	s.ErrorIs(err, sentinel.ErrCorrupt)
}

func (s *StoreSuite) TestFeedIsNewestFirstAndTrimmed() {
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Require().NoError(s.store.AppendFeed(s.ctx, id))
	}
	ids, err := s.store.FeedEntryIDs(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal([]string{"d", "c", "b", "a"}, ids)

	s.Require().NoError(s.store.TrimFeed(s.ctx, 2))
	ids, err = s.store.FeedEntryIDs(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal([]string{"d", "c"}, ids)

	ids, err = s.store.FeedEntryIDs(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal([]string{"d"}, ids)
}

func (s *StoreSuite) TestOwnerIndexAndDelete() {
	owner := models.Owner{UserID: "7"}
	other := models.Owner{SessionID: "7"}
	now := time.Now()

	ids, err := s.store.OwnerEntryIDs(s.ctx, owner, 0)
	s.Require().NoError(err)
	s.Empty(ids)

	for i, id := range []string{"e1", "e2"} {
		s.Require().NoError(s.store.SaveEntry(s.ctx, entry(id, owner, now.Add(time.Duration(i)*time.Second)), time.Hour))
		s.Require().NoError(s.store.IndexEntry(s.ctx, owner, id, time.Hour))
	}
	s.Require().NoError(s.store.SaveEntry(s.ctx, entry("o1", other, now), time.Hour))
	s.Require().NoError(s.store.IndexEntry(s.ctx, other, "o1", time.Hour))
	s.Require().NoError(s.store.SaveCurrent(s.ctx, owner, &models.Current{AuditID: "e2"}, time.Hour))

	ids, err = s.store.OwnerEntryIDs(s.ctx, owner, 0)
	s.Require().NoError(err)
	s.Equal([]string{"e2", "e1"}, ids)

	s.Require().NoError(s.store.DeleteOwner(s.ctx, owner, ids))

	_, err = s.store.Current(s.ctx, owner)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Entry(s.ctx, "e1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	ids, err = s.store.OwnerEntryIDs(s.ctx, owner, 0)
	s.Require().NoError(err)
	s.Empty(ids)

	got, err := s.store.Entry(s.ctx, "o1")
	s.Require().NoError(err)
	s.Equal("7", got.SessionID)
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "consent:user:1", currentKey(models.Owner{UserID: "1"}))
	assert.Equal(t, "consent:session:s", currentKey(models.Owner{SessionID: "s"}))
	assert.Equal(t, "consent:audit:x", entryKey("x"))
	assert.Equal(t, "consent:audit:owner:user:1", ownerIndexKey(models.Owner{UserID: "1"}))
	require.Equal(t, int64(-1), stopFor(0))
	require.Equal(t, int64(4), stopFor(5))
}
