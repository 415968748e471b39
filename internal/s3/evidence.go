package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/Capitan-Parrot/threatsnap/internal/storage"
	"github.com/goccy/go-json"
)

// EvidenceStore keeps evidence images and records as objects in one bucket.
// A record is uploaded with a single PutObject, so it is either absent or complete.
type EvidenceStore struct {
	client *Client
	bucket string
}

func NewEvidenceStore(ctx context.Context, client *Client, bucket string) (*EvidenceStore, error) {
	if err := client.EnsureBucketExists(ctx, bucket); err != nil {
		return nil, fmt.Errorf("bucket error: %w", err)
	}
	return &EvidenceStore{client: client, bucket: bucket}, nil
}

func (s *EvidenceStore) SaveImage(ctx context.Context, name string, data []byte) (string, error) {
	if err := storage.ValidName(name); err != nil {
		return "", err
	}
	if err := s.client.Upload(ctx, s.bucket, name, data, "image/jpeg"); err != nil {
		return "", err
	}
	return s.path(name), nil
}

func (s *EvidenceStore) SaveRecord(ctx context.Context, name string, record models.LogRecord) (string, error) {
	if err := storage.ValidName(name); err != nil {
		return "", err
	}

	// Конвертируем запись в JSON
	jsonData, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := s.client.Upload(ctx, s.bucket, name, jsonData, "application/json"); err != nil {
		return "", err
	}
	return s.path(name), nil
}

func (s *EvidenceStore) ListRecords(ctx context.Context) ([]models.LogRecord, error) {
	keys, err := s.client.ListKeys(ctx, s.bucket, "")
	if err != nil {
		return nil, err
	}

	records := []models.LogRecord{}
	for _, key := range keys {
		if !strings.HasSuffix(key, storage.RecordExt) {
			continue
		}

		data, err := s.client.Download(ctx, s.bucket, key)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", key, err)
		}

		var record models.LogRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		records = append(records, record)
	}

	storage.SortNewestFirst(records)
	return records, nil
}

func (s *EvidenceStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := storage.ValidName(name); err != nil {
		return nil, err
	}

	data, err := s.client.Download(ctx, s.bucket, name)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

func (s *EvidenceStore) Reset(ctx context.Context) error {
	return s.client.RemovePrefix(ctx, s.bucket, "")
}

func (s *EvidenceStore) path(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, name)
}
