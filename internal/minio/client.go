// internal/minio/client.go
//
// Object storage client on top of github.com/minio/minio-go/v7.

package minio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client wraps the official MinIO client.
type Client struct {
	client *minio.Client
	config Config

	mu      sync.Mutex
	buckets map[string]bool // buckets known to exist
}

var _ ClientInterface = (*Client)(nil)

// NewClient creates a MinIO client. No request is made until first use.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		client:  client,
		config:  cfg,
		buckets: make(map[string]bool),
	}, nil
}

// ensureBucket creates the bucket if it does not exist yet.
func (c *Client) ensureBucket(ctx context.Context, bucket string) error {
	c.mu.Lock()
	known := c.buckets[bucket]
	c.mu.Unlock()
	if known {
		return nil
	}

	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		err = c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region})
		if err != nil {
			// Lost a creation race with another writer.
			if minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
	}

	c.mu.Lock()
	c.buckets[bucket] = true
	c.mu.Unlock()
	return nil
}

// PutObject uploads an object.
func (c *Client) PutObject(ctx context.Context, bucket, object string, data io.Reader, size int64, contentType string) error {
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := c.client.PutObject(ctx, bucket, object, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object failed: %w", err)
	}
	return nil
}

// GetObject downloads an object.
func (c *Client) GetObject(ctx context.Context, bucket, object string) ([]byte, error) {
	reader, err := c.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.mapError(bucket, object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, c.mapError(bucket, object, err)
	}
	return data, nil
}

// ListObjects lists objects under prefix, newest first.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return nil, err
	}

	objectCh := c.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var objects []ObjectInfo
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects failed: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			LastModified: object.LastModified,
			Size:         object.Size,
		})
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	return objects, nil
}

func (c *Client) mapError(bucket, object string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%s/%s: %w", bucket, object, ErrObjectNotFound)
	}
	return fmt.Errorf("get object failed: %w", err)
}
