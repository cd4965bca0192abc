package importer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nhle/travel-crm/internal/model"
)

// GetObjectAPI is the slice of the S3 client S3Source needs.
type GetObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a CSV export stored as an S3 object.
type S3Source struct {
	client GetObjectAPI
	bucket string
	key    string
}

// NewS3Source builds an S3 client from cfg and the default credential
// chain (AWS_ACCESS_KEY_ID, shared config, instance role). A custom
// endpoint with path-style addressing works against MinIO.
func NewS3Source(ctx context.Context, cfg model.S3Config, bucket, key string) (*S3Source, error) {
	if bucket == "" {
		bucket = cfg.Bucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	if key == "" {
		return nil, fmt.Errorf("s3 object key required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewS3SourceWithClient(client, bucket, key), nil
}

// NewS3SourceWithClient wraps an existing client.
func NewS3SourceWithClient(client GetObjectAPI, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// Kind returns KindS3.
func (s *S3Source) Kind() Kind { return KindS3 }

// Fetch downloads and parses the object.
func (s *S3Source) Fetch(ctx context.Context) ([]Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	records, err := ReadCSV(out.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return records, nil
}

// ParseS3URL splits "s3://bucket/path/to/key.csv". An empty bucket means
// the configured default.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %q", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("missing object key in %q", raw)
	}
	return u.Host, key, nil
}

// IsS3URL reports whether raw uses the s3:// scheme.
func IsS3URL(raw string) bool {
	return strings.HasPrefix(raw, "s3://")
}
