package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/movieservice/auth-service/internal/apperr"
)

// MaxAvatarSize caps uploaded avatar images.
const MaxAvatarSize = 5 << 20

var avatarExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AvatarStore is what the user handlers need from object storage.
type AvatarStore interface {
	UploadAvatar(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (string, error)
	Ping(ctx context.Context) error
}

// MinIOStorage stores user avatars in a MinIO (or S3 compatible) bucket.
type MinIOStorage struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg MinIOConfig) (*MinIOStorage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket, baseURL: cfg.baseURL()}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// AvatarKey builds the object key for a new avatar of the given content type.
func AvatarKey(userID, contentType string) (string, error) {
	ext, ok := avatarExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", apperr.Invalid("unsupported image type %q", contentType)
	}
	return fmt.Sprintf("avatars/%s/%s%s", userID, uuid.NewString(), ext), nil
}

// ObjectURL returns the public link for key.
func (s *MinIOStorage) ObjectURL(key string) string {
	return objectURL(s.baseURL, s.bucket, key)
}

func objectURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + key
}

// UploadAvatar stores the image and returns its public URL.
func (s *MinIOStorage) UploadAvatar(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (string, error) {
	if size <= 0 || size > MaxAvatarSize {
		return "", apperr.Invalid("avatar must be between 1 byte and %d bytes", MaxAvatarSize)
	}
	key, err := AvatarKey(userID, contentType)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	return s.ObjectURL(key), nil
}

// Ping checks that the bucket is reachable.
func (s *MinIOStorage) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

var _ AvatarStore = (*MinIOStorage)(nil)
