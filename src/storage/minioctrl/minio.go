// Package minioctrl serves the embedding artifact and the knowledge catalog out of
// a MinIO bucket.
package minioctrl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Scheme prefixes artifact locations kept in object storage
const Scheme = "minio"

type MinioService struct {
	client *minio.Client
}

func NewMinioService(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %v", err)
	}

	return &MinioService{
		client: client,
	}, nil
}

func (s *MinioService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return nil
}

// OpenObject streams an object. A missing object is reported as fs.ErrNotExist.
func (s *MinioService) OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", translate(err))
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller starts reading
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucketName, objectName, translate(err))
	}
	return obj, nil
}

func (s *MinioService) StatObject(ctx context.Context, bucketName, objectName string) (int64, error) {
	info, err := s.client.StatObject(ctx, bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to stat object %s/%s: %w", bucketName, objectName, translate(err))
	}
	return info.Size, nil
}

func (s *MinioService) PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, bucketName, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %v", err)
	}

	return nil
}

// UploadFile copies a local file into the bucket, creating the bucket if needed
func (s *MinioService) UploadFile(ctx context.Context, bucketName, objectName, path, contentType string) (int64, error) {
	if err := s.EnsureBucketExists(ctx, bucketName); err != nil {
		return 0, err
	}
	info, err := s.client.FPutObject(ctx, bucketName, objectName, path, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return 0, fmt.Errorf("failed to upload %s: %v", path, err)
	}
	return info.Size, nil
}

func (s *MinioService) DeleteObject(ctx context.Context, bucketName, objectName string) error {
	err := s.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}

	return nil
}

// ParseURL splits minio://bucket/path/to/object into bucket and object name
func ParseURL(raw string) (bucket, object string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid object url %q: %w", raw, err)
	}
	if u.Scheme != Scheme {
		return "", "", fmt.Errorf("invalid object url %q: scheme must be %s", raw, Scheme)
	}
	bucket = u.Host
	object = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid object url %q: bucket and object are required", raw)
	}
	return bucket, object, nil
}

// IsURL reports whether path points into object storage
func IsURL(path string) bool {
	return strings.HasPrefix(path, Scheme+"://")
}

// BuildURL is the inverse of ParseURL
func BuildURL(bucket, object string) string {
	return Scheme + "://" + bucket + "/" + strings.TrimPrefix(object, "/")
}

func translate(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
	}
	return err
}
