// Package storage abstracts the S3-compatible blob store behind uploaded
// files. Objects are opaque; access is granted through time-limited signed
// URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"convertviral/pkg/platform/sentinel"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = fmt.Errorf("object %w", sentinel.ErrNotFound)

// PutInput describes one object write.
type PutInput struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo is what the store reports about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStore is interface-driven so file logic stays testable and the
// backend (minio/S3 or in-memory) can be swapped without rewiring services.
type ObjectStore interface {
	Put(ctx context.Context, in PutInput) (ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}
