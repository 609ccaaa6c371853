// Package minio stores the binary artifacts of a protest: evidence photos,
// contractor quotes, and generated report packages.
package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/pkg/errors"
)

// MinIOAPI is the subset of the minio-go client this package uses,
// extracted so tests can fake it.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// Config holds the object-store connection settings.
type Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	EvidenceBucket  string        `mapstructure:"evidence_bucket"`
	ReportBucket    string        `mapstructure:"report_bucket"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

func applyDefaults(cfg *Config) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.EvidenceBucket == "" {
		cfg.EvidenceBucket = "protest-evidence"
	}
	if cfg.ReportBucket == "" {
		cfg.ReportBucket = "protest-reports"
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = time.Hour
	}
}

// Client wraps the object store with bucket bootstrap and health checks.
type Client struct {
	api    MinIOAPI
	cfg    Config
	logger logging.Logger
}

// NewClient connects, verifies reachability, and ensures both buckets exist.
func NewClient(cfg Config, log logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	applyDefaults(&cfg)

	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "create object store client")
	}

	c := &Client{api: api, cfg: cfg, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := api.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "connect to object store")
	}
	if err := c.EnsureBuckets(ctx); err != nil {
		return nil, err
	}

	log.Info("object store connected",
		logging.String("endpoint", cfg.Endpoint), logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

// NewClientWithAPI wraps an existing API, for tests.
func NewClientWithAPI(api MinIOAPI, cfg Config, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	applyDefaults(&cfg)
	return &Client{api: api, cfg: cfg, logger: log}
}

// EnsureBuckets creates the evidence and report buckets if absent.
func (c *Client) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{c.cfg.EvidenceBucket, c.cfg.ReportBucket} {
		exists, err := c.api.BucketExists(ctx, bucket)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "check bucket "+bucket)
		}
		if !exists {
			if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
				return errors.Wrap(err, errors.ErrCodeStorageError, "create bucket "+bucket)
			}
			c.logger.Info("created bucket", logging.String("bucket", bucket))
		}
	}
	return nil
}

// HealthCheck verifies the store and both buckets are reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.ListBuckets(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "object store unreachable")
	}
	for _, bucket := range []string{c.cfg.EvidenceBucket, c.cfg.ReportBucket} {
		exists, err := c.api.BucketExists(ctx, bucket)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "check bucket "+bucket)
		}
		if !exists {
			return errors.New(errors.ErrCodeStorageError, fmt.Sprintf("bucket %s missing", bucket))
		}
	}
	return nil
}

// API returns the underlying store API.
func (c *Client) API() MinIOAPI { return c.api }

// EvidenceBucket returns the evidence bucket name.
func (c *Client) EvidenceBucket() string { return c.cfg.EvidenceBucket }

// ReportBucket returns the report bucket name.
func (c *Client) ReportBucket() string { return c.cfg.ReportBucket }

// PresignExpiry returns the default presigned URL lifetime.
func (c *Client) PresignExpiry() time.Duration { return c.cfg.PresignExpiry }
