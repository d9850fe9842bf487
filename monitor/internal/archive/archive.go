package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/obsidianstack/pulsewatch/monitor/internal/config"
)

const contentType = "application/gzip"

// objectStore is the subset of *minio.Client the uploader uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies artifacts into one bucket under a key prefix.
type Uploader struct {
	client objectStore
	bucket string
	prefix string
	region string
}

// New connects to the configured endpoint and makes sure the bucket exists.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Uploader, error) {
	if cfg.AccessKey() == "" || cfg.SecretKey() == "" {
		return nil, fmt.Errorf("archive: credentials are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey(), cfg.SecretKey(), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: create client: %w", err)
	}
	u := newUploader(client, cfg)
	if err := u.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func newUploader(client objectStore, cfg config.ArchiveConfig) *Uploader {
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
	}
}

// Archive uploads the artifact file at filePath as <prefix>/<artifactID>.gz.
func (u *Uploader) Archive(ctx context.Context, artifactID, filePath string) error {
	key := u.Key(artifactID)
	if _, err := u.client.FPutObject(ctx, u.bucket, key, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}
	return nil
}

// Key returns the object key for an artifact.
func (u *Uploader) Key(artifactID string) string {
	return path.Join(u.prefix, artifactID+".gz")
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("archive: check bucket %q: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
		return fmt.Errorf("archive: create bucket %q: %w", u.bucket, err)
	}
	return nil
}
