package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cv-retrieval/internal/domain"
)

// MinioConfig holds connection settings for S3-compatible storage.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
}

// MinioFetcher reads s3://bucket/key URLs.
type MinioFetcher struct {
	client *minio.Client
}

func NewMinioFetcher(cfg MinioConfig) (*MinioFetcher, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint cannot be empty")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioFetcher{client: client}, nil
}

func (f *MinioFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, MaxDocumentBytes+1))
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: object %s/%s", domain.ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}
	if len(data) > MaxDocumentBytes {
		return nil, fmt.Errorf("object %s/%s exceeds %d bytes", bucket, key, MaxDocumentBytes)
	}
	return data, nil
}

// parseS3URL splits s3://bucket/path/to/key.
func parseS3URL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", domain.Validationf("storage url %q: %v", rawURL, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", domain.Validationf("not an s3 url: %q", rawURL)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", domain.Validationf("s3 url %q has no object key", rawURL)
	}
	return u.Host, key, nil
}
