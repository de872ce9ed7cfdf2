package file

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage provides an S3-compatible object store backend using MinIO. The
// worker reads source images and masks from it and writes regenerated
// results back; everything lives in a single bucket under per-kind prefixes.
type Storage struct {
	client      *minio.Client
	bucketName  string
	externalURL string
}

// NewStorage creates a new Storage instance connected to the specified MinIO
// server. If the bucket does not exist, it will be created automatically.
// externalURL is the base URL under which stored objects are fetchable by
// clients (e.g. "http://localhost:9000").
func NewStorage(ctx context.Context, endpoint, accessKey, secretKey, bucketName, externalURL string, useSSL bool) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:      client,
		bucketName:  bucketName,
		externalURL: externalURL,
	}, nil
}

// Save uploads the provided reader to the specified subdirectory in the
// bucket as a PNG object. Returns the object path within the bucket.
func (s *Storage) Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error) {
	objectName := path.Join(subdir, filename)

	_, err := s.client.PutObject(ctx, s.bucketName, objectName, src, -1, minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return objectName, nil
}

// Load retrieves the object at the given path and returns a reader.
func (s *Storage) Load(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	return obj, nil
}

// Delete removes the specified object from the bucket.
func (s *Storage) Delete(ctx context.Context, objectPath string) error {
	return s.client.RemoveObject(ctx, s.bucketName, objectPath, minio.RemoveObjectOptions{})
}

// PublicURL returns the externally fetchable URL of a stored object.
func (s *Storage) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", s.externalURL, s.bucketName, objectPath)
}
