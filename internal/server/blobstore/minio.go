package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	// Multipart tuning: parts of at least 5MB, at most 4 uploaded in
	// parallel, so memory and socket usage stay bounded for any file size.
	partSize    = 5 * 1024 * 1024
	partThreads = 4

	defaultContentType = "application/octet-stream"
)

// minioAPI is the slice of the minio client the store uses; narrowed so
// tests can substitute a fake.
type minioAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioStore stores photos in an S3-compatible bucket via minio-go.
type MinioStore struct {
	endpoint string
	bucket   string
	useSSL   bool
	client   minioAPI
}

// NewMinioStore creates a store backed by the given S3-compatible endpoint.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStore{
		endpoint: endpoint,
		bucket:   bucket,
		useSSL:   useSSL,
		client:   client,
	}, nil
}

// Put uploads one object. minio-go splits large payloads into parts and
// aborts the multipart upload on failure, so a failed Put leaves no parts
// behind.
func (s *MinioStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string, onProgress ProgressFunc) (*PutResult, error) {
	if contentType == "" {
		contentType = defaultContentType
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    partSize,
		NumThreads:  partThreads,
		Progress:    newProgressReader(size, onProgress),
	})
	if err != nil {
		return nil, &StorageError{Op: "put", Key: key, Err: err}
	}

	return &PutResult{Key: key, URL: s.ObjectURL(key)}, nil
}

// Remove deletes one object.
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return &StorageError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// ObjectURL returns the public URL for a key.
func (s *MinioStore) ObjectURL(key string) string {
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, key)
}
