package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

// S3Uploader writes objects into one bucket of an S3 compatible store.
type S3Uploader struct {
	mc     *minio.Client
	config S3Config
}

var _ Uploader = (*S3Uploader)(nil)

func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 export: bucket is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &S3Uploader{mc: mc, config: cfg}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (u *S3Uploader) EnsureBucket(ctx context.Context) error {
	name := u.config.Bucket
	exists, err := u.mc.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", name, err)
	}
	if exists {
		return nil
	}
	region := u.config.Region
	if region == "" {
		region = "us-east-1"
	}
	if err := u.mc.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", name, err)
	}
	slog.Info("Created export bucket", "bucket", name)
	return nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	info, err := u.mc.PutObject(ctx, u.config.Bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", u.config.Bucket, key, err)
	}
	slog.Info("Uploaded results", "bucket", info.Bucket, "key", info.Key, "size", info.Size)
	return nil
}

// Location returns the bucket/key display form of an uploaded object.
func (u *S3Uploader) Location(key string) string {
	return u.config.Endpoint + "/" + u.config.Bucket + "/" + key
}
