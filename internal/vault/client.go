// Package vault brokers the object store holding book files and cover images.
package vault

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"openshelf.org/internal/config"
)

// SignedLink is a time-limited credential granting read access to an object.
type SignedLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Client wraps MinIO/S3 interactions for book files and covers.
type Client struct {
	mc           *minio.Client
	filesBucket  string
	coversBucket string
	region       string
	now          func() time.Time
}

// New creates a vault client from the Config.
func New(cfg *config.Config) (*Client, error) {
	mc, err := minio.New(cfg.VaultEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.VaultAccessKey, cfg.VaultSecretKey, ""),
		Secure: cfg.VaultUseSSL,
		Region: cfg.VaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("init vault client: %w", err)
	}
	return &Client{
		mc:           mc,
		filesBucket:  cfg.FilesBucket,
		coversBucket: cfg.CoversBucket,
		region:       cfg.VaultRegion,
		now:          time.Now,
	}, nil
}

// EnsureBuckets makes sure the file/cover buckets exist before use.
func (c *Client) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{c.filesBucket, c.coversBucket} {
		exists, err := c.mc.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// IssueSignedLink mints a presigned GET URL for a book file. The TTL is
// clamped below by a minute so a link handed to the reader is always usable.
func (c *Client) IssueSignedLink(ctx context.Context, path string, ttl time.Duration) (SignedLink, error) {
	if ttl < time.Minute {
		ttl = time.Minute
	}
	u, err := c.mc.PresignedGetObject(ctx, c.filesBucket, path, ttl, url.Values{})
	if err != nil {
		return SignedLink{}, fmt.Errorf("presign %s: %w", path, err)
	}
	return SignedLink{URL: u.String(), ExpiresAt: c.now().UTC().Add(ttl)}, nil
}

// UploadFile stores a book file in the private files bucket.
func (c *Client) UploadFile(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := c.mc.PutObject(ctx, c.filesBucket, path, r, size, opts); err != nil {
		return fmt.Errorf("upload file %s: %w", path, err)
	}
	return nil
}

// UploadCover stores a cover image and returns its public-style URL.
func (c *Client) UploadCover(ctx context.Context, path string, r io.Reader, size int64, contentType string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := c.mc.PutObject(ctx, c.coversBucket, path, r, size, opts); err != nil {
		return "", fmt.Errorf("upload cover %s: %w", path, err)
	}
	return c.mc.EndpointURL().String() + "/" + c.coversBucket + "/" + path, nil
}

// FetchFile downloads a stored book file; the worker uses it to inspect PDFs.
func (c *Client) FetchFile(ctx context.Context, path string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.filesBucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}
	return data, nil
}

// RemoveFile deletes a book file; used when a book is removed from the catalog.
func (c *Client) RemoveFile(ctx context.Context, path string) error {
	return c.mc.RemoveObject(ctx, c.filesBucket, path, minio.RemoveObjectOptions{})
}

// FileReference renders the stored content pointer for an uploaded object.
func (c *Client) FileReference(path string) string {
	return c.mc.EndpointURL().String() + "/" + c.filesBucket + "/" + path
}
