// Package minio stores submission artifacts in an S3 compatible bucket.
package minio

import (
	"context"
	"fmt"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/pleastandby/major-project-sub000/pkg/storage"
)

const defaultURLExpiry = 15 * time.Minute

// Config describes the bucket connection.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
	URLExpiry time.Duration
}

// Store implements the content store contract on MinIO.
type Store struct {
	client *miniogo.Client
	bucket string
	prefix string
	expiry time.Duration
	logger zerolog.Logger
}

// New connects to MinIO and makes sure the bucket exists.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket must be provided")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		expiry: expiry,
		logger: logger.With().Str("component", "minio").Logger(),
	}, nil
}

// Put writes the artifact under a fresh key.
func (s *Store) Put(ctx context.Context, object storage.Object) (storage.Stored, error) {
	key := storage.ObjectKey(s.prefix, object.Name)
	contentType := object.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, object.Body, object.Size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return storage.Stored{}, fmt.Errorf("failed to put object %q: %w", key, err)
	}

	s.logger.Info().Str("key", info.Key).Int64("size", info.Size).Msg("artifact stored in minio")

	return storage.Stored{Key: info.Key}, nil
}

// URL presigns a short-lived download link. Links expire, so callers resolve right before use.
func (s *Store) URL(ctx context.Context, stored storage.Stored) (string, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, stored.Key, miniogo.StatObjectOptions{}); err != nil {
		if miniogo.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", fmt.Errorf("object %q does not exist", stored.Key)
		}
		return "", fmt.Errorf("failed to stat object %q: %w", stored.Key, err)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, stored.Key, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object %q: %w", stored.Key, err)
	}
	return presigned.String(), nil
}
