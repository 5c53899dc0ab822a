//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"convertviral/internal/consent/models"
	"convertviral/internal/platform/kv"
	"convertviral/pkg/testutil/containers"
)

func TestRedisConsentStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &StoreSuite{newKV: func() kv.Store {
		require.NoError(t, rc.FlushAll(context.Background()))
		return kv.NewRedisStore(rc.Client.Client)
	}})
}

type PostgresArchiveSuite struct {
	suite.Suite
	ctx     context.Context
	pg      *containers.PostgresContainer
	archive *PostgresArchive
}

func TestPostgresArchiveSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresArchiveSuite))
}

func (s *PostgresArchiveSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.archive = NewPostgresArchive(s.pg.DB)
	s.Require().NoError(s.archive.EnsureSchema(s.ctx))
}

func (s *PostgresArchiveSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "consent_audit_archive"))
}

func (s *PostgresArchiveSuite) TestAppendListErase() {
	owner := models.Owner{UserID: "u1"}
	other := models.Owner{SessionID: "s1"}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := entry("01", owner, base)
	second := entry("02", owner, base.Add(time.Minute))
	second.Action = models.ActionWithdrawn
	second.PreviousConsents = map[string]bool{"essential": true, "analytics": true}
	second.IP = "198.51.100.1"

	s.Require().NoError(s.archive.Append(s.ctx, first))
	s.Require().NoError(s.archive.Append(s.ctx, second))
	s.Require().NoError(s.archive.Append(s.ctx, entry("03", other, base)))

	s.Run("re-append is a no-op", func() {
		dup := *first
		dup.Action = models.ActionUpdated
		s.Require().NoError(s.archive.Append(s.ctx, &dup))
	})

	entries, err := s.archive.ListByOwner(s.ctx, owner, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("02", entries[0].ID)
	s.Equal(models.ActionWithdrawn, entries[0].Action)
	s.Equal(second.PreviousConsents, entries[0].PreviousConsents)
	s.Equal("198.51.100.1", entries[0].IP)
	s.Equal(models.ActionGranted, entries[1].Action)
	s.Nil(entries[1].PreviousConsents)
	s.Equal(first.ConsentRecord.Consents, entries[1].ConsentRecord.Consents)

	n, err := s.archive.EraseOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	entries, err = s.archive.ListByOwner(s.ctx, owner, 10)
	s.Require().NoError(err)
	s.Empty(entries)

	remaining, err := s.archive.ListByOwner(s.ctx, other, 10)
	s.Require().NoError(err)
	s.Len(remaining, 1)
}
