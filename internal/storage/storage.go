package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the base used to build object links, e.g. a CDN.
	PublicURL string
}

// AvatarStore keeps user avatars in an S3 compatible bucket.
type AvatarStore struct {
	cl      *minio.Client
	bucket  string
	baseURL string
	log     *zap.Logger
}

var allowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ErrUnsupportedType is returned for uploads that are not images.
var ErrUnsupportedType = errors.New("unsupported avatar content type")

// New connects to MinIO and makes sure the bucket exists. It returns nil, nil
// when no endpoint is configured.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*AvatarStore, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	if err := cl.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errBucketExists := cl.BucketExists(ctx, cfg.Bucket)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}

	return &AvatarStore{
		cl:      cl,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(base, "/"),
		log:     log,
	}, nil
}

// ObjectKey builds the key an avatar for userID is stored under.
func ObjectKey(userID uint64, contentType string) (string, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	return fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), ext), nil
}

// PutAvatar uploads the image and returns its public URL.
func (s *AvatarStore) PutAvatar(ctx context.Context, userID uint64, r io.Reader, size int64, contentType string) (string, error) {
	key, err := ObjectKey(userID, contentType)
	if err != nil {
		return "", err
	}
	if _, err := s.cl.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("put avatar: %w", err)
	}
	s.log.Debug("avatar stored", zap.Uint64("user_id", userID), zap.String("key", key))
	return s.URL(key), nil
}

// RemoveAvatar deletes an avatar previously returned by PutAvatar. Foreign
// URLs are ignored.
func (s *AvatarStore) RemoveAvatar(ctx context.Context, avatarURL string) error {
	prefix := s.baseURL + "/" + s.bucket + "/"
	if !strings.HasPrefix(avatarURL, prefix) {
		return nil
	}
	key := strings.TrimPrefix(avatarURL, prefix)
	return s.cl.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *AvatarStore) URL(key string) string {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return s.baseURL + "/" + s.bucket + "/" + key
	}
	u.Path = path.Join(u.Path, s.bucket, key)
	return u.String()
}
