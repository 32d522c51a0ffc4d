// Package storage puts gallery files and avatars into Cloudflare R2 through
// the S3 API and hands back their CDN URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"qrcard_backend/pkg/config"
)

var ErrNotConfigured = errors.New("object storage is not configured")

// ObjectStore is what controllers upload through.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (url string, err error)
	Delete(ctx context.Context, url string) error
}

// s3API is the part of *s3.Client the store calls.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type R2Store struct {
	client s3API
	bucket string
	cdn    string
}

// NewR2Store builds an S3 client pointed at the account's R2 endpoint.
func NewR2Store(ctx context.Context, cfg config.StorageConfig) (*R2Store, error) {
	if cfg.AccountID == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.BucketName == "" {
		return nil, ErrNotConfigured
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		o.UsePathStyle = true
	})
	return newR2Store(client, cfg.BucketName, cfg.CDNBaseURL), nil
}

func newR2Store(client s3API, bucket, cdn string) *R2Store {
	return &R2Store{client: client, bucket: bucket, cdn: strings.TrimRight(cdn, "/")}
}

func (r *R2Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("could not upload %s to R2: %w", key, err)
	}
	return r.URLFor(key), nil
}

func (r *R2Store) Delete(ctx context.Context, url string) error {
	key, ok := r.KeyFromURL(url)
	if !ok {
		return fmt.Errorf("not an object of this bucket: %s", url)
	}
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("could not delete %s from R2: %w", key, err)
	}
	return nil
}

func (r *R2Store) URLFor(key string) string {
	return r.cdn + "/" + key
}

// KeyFromURL strips the CDN prefix; ok is false for foreign URLs.
func (r *R2Store) KeyFromURL(url string) (string, bool) {
	prefix := r.cdn + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, key != ""
}

// ObjectKey lays objects out as users/<username>/<folder>/<unique><ext>.
// ext overrides the uploaded file's extension when non-empty.
func ObjectKey(username, folder, filename, ext string) string {
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	unique := fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString())
	return path.Join("users", slug.Make(username), slug.Make(folder), unique+ext)
}
