package storage

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/stretchr/testify/suite"

	"convertviral/pkg/platform/sentinel"
)

// ObjectStoreContractSuite is shared by the memory and minio stores.
type ObjectStoreContractSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func() ObjectStore
	store    ObjectStore
}

func (s *ObjectStoreContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *ObjectStoreContractSuite) put(key, body string) ObjectInfo {
	info, err := s.store.Put(s.ctx, PutInput{
		Key:         key,
		Body:        strings.NewReader(body),
		Size:        int64(len(body)),
		ContentType: "text/plain",
		Metadata:    map[string]string{"owner": "user-1"},
	})
	s.Require().NoError(err)
	return info
}

func (s *ObjectStoreContractSuite) TestPutAndStat() {
	s.put("uploads/user-1/a/report.txt", "hello world")

	info, err := s.store.Stat(s.ctx, "uploads/user-1/a/report.txt")
	s.Require().NoError(err)
	s.Equal(int64(11), info.Size)
	s.Equal("text/plain", info.ContentType)
}

func (s *ObjectStoreContractSuite) TestStatMissing() {
	_, err := s.store.Stat(s.ctx, "uploads/missing")
	s.ErrorIs(err, ErrObjectNotFound)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ObjectStoreContractSuite) TestPresign() {
	s.put("uploads/anonymous/b/image.png", "png")
	url, err := s.store.PresignGet(s.ctx, "uploads/anonymous/b/image.png", 15*time.Minute)
	s.Require().NoError(err)
	s.Contains(url, "image.png")
}

func (s *ObjectStoreContractSuite) TestRemoveIsIdempotent() {
	s.put("uploads/user-1/c/file.bin", "x")
	s.Require().NoError(s.store.Remove(s.ctx, "uploads/user-1/c/file.bin"))
	s.Require().NoError(s.store.Remove(s.ctx, "uploads/user-1/c/file.bin"))

	_, err := s.store.Stat(s.ctx, "uploads/user-1/c/file.bin")
	s.ErrorIs(err, ErrObjectNotFound)
}

func (s *ObjectStoreContractSuite) TestPutReadsWholeBody() {
	body := strings.Repeat("a", 64*1024)
	info, err := s.store.Put(s.ctx, PutInput{
		Key:         "uploads/user-1/d/big.txt",
		Body:        io.MultiReader(strings.NewReader(body[:1024]), strings.NewReader(body[1024:])),
		Size:        int64(len(body)),
		ContentType: "text/plain",
	})
	s.Require().NoError(err)
	s.Equal(int64(len(body)), info.Size)
}
