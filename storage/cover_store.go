// Package storage holds cover art in MinIO. Audio payloads never touch
// this bucket, they live in the entity store; only small mutable assets
// like covers belong here.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ChainFM/config"
	"ChainFM/logger"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// CoverStore wraps a MinIO bucket for cover images.
type CoverStore struct {
	client *minio.Client
	bucket string
	public string
}

// NewCoverStore connects to MinIO and ensures the cover bucket exists.
func NewCoverStore(cfg *config.Config) (*CoverStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created cover bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &CoverStore{
		client: client,
		bucket: cfg.MinioBucket,
		public: cfg.MinioPublicBase,
	}, nil
}

// Put uploads a cover image and returns its public URL.
func (s *CoverStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload cover %s: %w", key, err)
	}
	logger.Debug("Cover uploaded",
		logger.String("key", key),
		logger.Int64("size", size))
	return s.URL(key), nil
}

// URL returns the public URL for a stored cover.
func (s *CoverStore) URL(key string) string {
	return fmt.Sprintf("%s/%s", s.public, path.Join(s.bucket, key))
}

// List returns objects under the given key prefix.
func (s *CoverStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list bucket %s: %w", s.bucket, obj.Err)
		}
		objects = append(objects, ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return objects, nil
}
