// internal/minio/common.go
//
// Shared definitions for the object storage client.

package minio

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Config for the MinIO client.
type Config struct {
	Endpoint        string // e.g. "minio:9000" (no scheme)
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string // defaults to "us-east-1"
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// ClientInterface is the subset of object storage the room directory and the
// template store rely on.
type ClientInterface interface {
	// PutObject uploads an object, creating the bucket if needed.
	PutObject(ctx context.Context, bucket, object string, data io.Reader, size int64, contentType string) error

	// GetObject downloads an object; ErrObjectNotFound when absent.
	GetObject(ctx context.Context, bucket, object string) ([]byte, error)

	// ListObjects lists objects under prefix, newest first.
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
