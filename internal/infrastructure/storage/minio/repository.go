package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// StoredObject describes an uploaded artifact.
type StoredObject struct {
	Key         string    `json:"key"`
	Bucket      string    `json:"bucket"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ObjectStorage stores protest artifacts.  Evidence lives under the session
// it belongs to; reports under the session that generated them.
type ObjectStorage interface {
	UploadEvidence(ctx context.Context, sessionID common.ID, fileName, contentType string, r io.Reader, size int64) (*StoredObject, error)
	UploadReport(ctx context.Context, sessionID common.ID, fileName, contentType string, r io.Reader, size int64) (*StoredObject, error)
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

type objectStorage struct {
	client *Client
	logger logging.Logger
}

// NewObjectStorage returns an ObjectStorage over the client.
func NewObjectStorage(client *Client, log logging.Logger) ObjectStorage {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &objectStorage{client: client, logger: log.Named("storage")}
}

// sanitizeFileName keeps object keys flat and predictable.
func sanitizeFileName(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func (s *objectStorage) upload(ctx context.Context, bucket, key, contentType string, r io.Reader, size int64) (*StoredObject, error) {
	info, err := s.client.API().PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEvidenceUploadFailed, "upload object")
	}
	s.logger.Info("uploaded object",
		logging.String("bucket", bucket),
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return &StoredObject{
		Key:         key,
		Bucket:      bucket,
		SizeBytes:   info.Size,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
	}, nil
}

func (s *objectStorage) UploadEvidence(ctx context.Context, sessionID common.ID, fileName, contentType string, r io.Reader, size int64) (*StoredObject, error) {
	key := fmt.Sprintf("evidence/%s/%s-%s", sessionID, common.NewID(), sanitizeFileName(fileName))
	return s.upload(ctx, s.client.EvidenceBucket(), key, contentType, r, size)
}

func (s *objectStorage) UploadReport(ctx context.Context, sessionID common.ID, fileName, contentType string, r io.Reader, size int64) (*StoredObject, error) {
	key := fmt.Sprintf("reports/%s/%s", sessionID, sanitizeFileName(fileName))
	return s.upload(ctx, s.client.ReportBucket(), key, contentType, r, size)
}

func (s *objectStorage) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	// GetObject is lazy, so existence is checked up front.
	if _, err := s.client.API().StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNotFound, "object not found")
	}
	obj, err := s.client.API().GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "download object")
	}
	return obj, nil
}

func (s *objectStorage) Remove(ctx context.Context, bucket, key string) error {
	if err := s.client.API().RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "remove object")
	}
	return nil
}

func (s *objectStorage) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if expiry == 0 {
		expiry = s.client.PresignExpiry()
	}
	u, err := s.client.API().PresignedGetObject(ctx, bucket, key, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "presign object")
	}
	return u.String(), nil
}
