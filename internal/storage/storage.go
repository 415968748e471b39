// Package storage persists evidence images and log records in a local directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

var ErrNotFound = errors.New("evidence not found")

const (
	ImageExt  = ".jpg"
	RecordExt = ".json"
)

// DirStore keeps evidence as files in one directory. Writes go to a temporary
// file that is renamed into place, so readers never see a partial record.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence dir %s: %w", dir, err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) SaveImage(_ context.Context, name string, data []byte) (string, error) {
	return s.writeAtomic(name, data)
}

func (s *DirStore) SaveRecord(_ context.Context, name string, record models.LogRecord) (string, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.writeAtomic(name, data)
}

func (s *DirStore) writeAtomic(name string, data []byte) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return path, nil
}

// ListRecords returns every record in the directory, newest first.
func (s *DirStore) ListRecords(_ context.Context) ([]models.LogRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	records := []models.LogRecord{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), RecordExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}

		var record models.LogRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Name(), err)
		}
		records = append(records, record)
	}

	SortNewestFirst(records)
	return records, nil
}

func (s *DirStore) Read(_ context.Context, name string) ([]byte, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// Reset removes all evidence files.
func (s *DirStore) Reset(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ValidName accepts plain file names only.
func ValidName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}
	return nil
}

// SortNewestFirst orders records by their sortable timestamp id, descending.
func SortNewestFirst(records []models.LogRecord) {
	slices.SortStableFunc(records, func(a, b models.LogRecord) int {
		return strings.Compare(b.Timestamp, a.Timestamp)
	})
}

// ActionRequired keeps only records whose analysis asks for action.
func ActionRequired(records []models.LogRecord) []models.LogRecord {
	return lo.Filter(records, func(r models.LogRecord, _ int) bool {
		return r.Analysis.ActionRequired
	})
}
