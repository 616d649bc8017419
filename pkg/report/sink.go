package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DirSink stores report artifacts as files in a local directory.
type DirSink struct {
	Dir string
}

// Store writes data to Dir/name, creating the directory if needed.
func (s DirSink) Store(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}

// S3PutAPI is the subset of the S3 client the sink uses.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink stores report artifacts as S3 objects.
type S3Sink struct {
	api    S3PutAPI
	bucket string
	prefix string
}

// NewS3Sink creates a sink writing to bucket under an optional key
// prefix.
func NewS3Sink(api S3PutAPI, bucket, prefix string) *S3Sink {
	return &S3Sink{api: api, bucket: bucket, prefix: prefix}
}

// Store uploads data and returns its s3:// location.
func (s *S3Sink) Store(ctx context.Context, name string, data []byte) (string, error) {
	key := name
	if s.prefix != "" {
		key = s.prefix + "/" + name
	}

	if _, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	}); err != nil {
		return "", fmt.Errorf("put report s3://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
