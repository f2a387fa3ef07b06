package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Blob is an object store for upload bytes.
type Blob interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3API is the subset of the S3 client used by S3Blob.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Blob stores uploads in a bucket.
type S3Blob struct {
	client S3API
	bucket string
}

func NewS3Blob(client S3API, bucket string) *S3Blob {
	if client == nil {
		panic("uploads: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("uploads: bucket cannot be empty")
	}
	return &S3Blob{client: client, bucket: bucket}
}

func (b *S3Blob) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("uploads: s3 put %s: %w", key, err)
	}
	return nil
}

func (b *S3Blob) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("uploads: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("uploads: s3 read %s: %w", key, err)
	}
	return data, nil
}

// DiskBlob stores uploads under a local directory.
type DiskBlob struct {
	dir string
}

func NewDiskBlob(dir string) (*DiskBlob, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: create dir: %w", err)
	}
	return &DiskBlob{dir: dir}, nil
}

func (b *DiskBlob) path(key string) (string, error) {
	p := filepath.Join(b.dir, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.dir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("uploads: invalid key %q", key)
	}
	return p, nil
}

func (b *DiskBlob) Put(ctx context.Context, key, contentType string, data []byte) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("uploads: create dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("uploads: write %s: %w", key, err)
	}
	return os.Rename(tmp, p)
}

func (b *DiskBlob) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("uploads: read %s: %w", key, err)
	}
	return data, nil
}
