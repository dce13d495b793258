package engine

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source fetches the bytes behind an image location.
type Source interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FileSource reads images from the local file system.
type FileSource struct {
	// Dir resolves relative paths. Empty means the working directory.
	Dir string
}

// Fetch implements Source.
func (s FileSource) Fetch(_ context.Context, location string) ([]byte, error) {
	path := location
	if s.Dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(s.Dir, path)
	}
	return os.ReadFile(path)
}

// S3Config holds construction parameters for an S3 image source.
type S3Config struct {
	Region          string
	Endpoint        string // optional; enables a custom endpoint such as MinIO
	AccessKeyID     string // optional; falls back to the default credentials chain
	SecretAccessKey string
	PathStyle       bool
}

// S3Source fetches images addressed as s3://bucket/key.
type S3Source struct {
	client *s3.Client
}

// NewS3Source builds an S3 client from the default AWS configuration.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3SourceWithClient(client), nil
}

// NewS3SourceWithClient wraps an existing client.
func NewS3SourceWithClient(client *s3.Client) *S3Source {
	return &S3Source{client: client}
}

// Fetch implements Source.
func (s *S3Source) Fetch(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseS3URL(location)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func parseS3URL(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 url: %q", location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 url has no object key: %q", location)
	}
	return u.Host, key, nil
}

// Sources routes s3:// locations to S3 and everything else to Local.
type Sources struct {
	Local Source
	S3    Source
}

// Fetch implements Source.
func (s Sources) Fetch(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "s3://") {
		if s.S3 == nil {
			return nil, fmt.Errorf("no s3 source configured for %q", location)
		}
		return s.S3.Fetch(ctx, location)
	}
	local := s.Local
	if local == nil {
		local = FileSource{}
	}
	return local.Fetch(ctx, location)
}

// sidecarPath returns the model description location next to an image.
func sidecarPath(location string) string {
	ext := filepath.Ext(location)
	return strings.TrimSuffix(location, ext) + ".yaml"
}
