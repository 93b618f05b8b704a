package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/photocat/internal/config"
)

// BlobStore holds photo blobs in three buckets, all keyed by content hash.
type BlobStore struct {
	client  *minio.Client
	buckets config.BucketsConfig
}

func NewBlobStore(cfg config.MinIOConfig) (*BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &BlobStore{client: client, buckets: cfg.Buckets}, nil
}

// EnsureBuckets creates the three buckets if they don't exist.
func (s *BlobStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.buckets.Originals, s.buckets.Thumbnails, s.buckets.DefaultViews} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// UploadOriginal streams the original file from disk, preserving its format.
func (s *BlobStore) UploadOriginal(ctx context.Context, key, path string) error {
	_, err := s.client.FPutObject(ctx, s.buckets.Originals, key, path, minio.PutObjectOptions{
		ContentType: contentTypeByExt(path),
	})
	if err != nil {
		return fmt.Errorf("upload original %s: %w", key, err)
	}
	return nil
}

// UploadThumbnail stores the 100px JPEG rendition.
func (s *BlobStore) UploadThumbnail(ctx context.Context, key string, data []byte) error {
	return s.put(ctx, s.buckets.Thumbnails, key, data)
}

// UploadDefaultView stores the 2048px JPEG rendition.
func (s *BlobStore) UploadDefaultView(ctx context.Context, key string, data []byte) error {
	return s.put(ctx, s.buckets.DefaultViews, key, data)
}

func (s *BlobStore) put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *BlobStore) ExistsOriginal(ctx context.Context, key string) (bool, error) {
	return s.exists(ctx, s.buckets.Originals, key)
}

func (s *BlobStore) ExistsThumbnail(ctx context.Context, key string) (bool, error) {
	return s.exists(ctx, s.buckets.Thumbnails, key)
}

func (s *BlobStore) ExistsDefaultView(ctx context.Context, key string) (bool, error) {
	return s.exists(ctx, s.buckets.DefaultViews, key)
}

func (s *BlobStore) exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

func (s *BlobStore) ListOriginals(ctx context.Context) (map[string]struct{}, error) {
	return s.listKeys(ctx, s.buckets.Originals)
}

func (s *BlobStore) ListThumbnails(ctx context.Context) (map[string]struct{}, error) {
	return s.listKeys(ctx, s.buckets.Thumbnails)
}

func (s *BlobStore) ListDefaultViews(ctx context.Context) (map[string]struct{}, error) {
	return s.listKeys(ctx, s.buckets.DefaultViews)
}

// listKeys returns every key in the bucket, for existence snapshots.
func (s *BlobStore) listKeys(ctx context.Context, bucket string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", bucket, obj.Err)
		}
		keys[obj.Key] = struct{}{}
	}
	return keys, nil
}

// Ping checks object-store connectivity.
func (s *BlobStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.buckets.Originals)
	return err
}

func contentTypeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
