package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
)

// MinIOStore keeps JSON snapshots of attendance days before they are cleared.
type MinIOStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		now:    time.Now,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// DayArchive is the object body written by ArchiveDay.
type DayArchive struct {
	Date       string                    `json:"date"`
	ArchivedAt time.Time                 `json:"archived_at"`
	Records    []models.AttendanceRecord `json:"records"`
}

// ArchiveKey names the object for an archive of date taken at ts.
func ArchiveKey(date string, ts time.Time) string {
	return fmt.Sprintf("attendance/%s/cleared-%s.json", date, ts.UTC().Format("20060102T150405.000Z"))
}

// ArchiveDay uploads records as one JSON object. Each call writes a new
// object, so clearing the same day twice keeps both snapshots.
func (s *MinIOStore) ArchiveDay(ctx context.Context, date string, records []models.AttendanceRecord) error {
	ts := s.now()
	data, err := json.Marshal(DayArchive{Date: date, ArchivedAt: ts, Records: records})
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	return s.PutObject(ctx, ArchiveKey(date, ts), data, "application/json")
}

// PutObject uploads data to MinIO under the given key.
func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
