// Package store persists the active job set as a single JSON document,
// rewritten wholesale and atomically on every change. The file is the sole
// source of truth for restoring jobs after a restart.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/haul-dl/haul/internal/domain"
)

type FileStore struct {
	path string
}

func New(path string) *FileStore {
	return &FileStore{path: path}
}

// Save rewrites the whole document with the given jobs.
func (s *FileStore) Save(jobs []*domain.Job) error {
	records := make([]jobRecord, len(jobs))
	for i, j := range jobs {
		records[i].FromDomain(j)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal active set: %w", err)
	}
	data = append(data, '\n')

	return writeAtomic(s.path, data)
}

// Load reads the document back into unbound jobs. A missing file is not an
// error: it means no jobs were active.
func (s *FileStore) Load() ([]*domain.Job, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read active set %s: %w", s.path, err)
	}

	var records []jobRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse active set %s: %w", s.path, err)
	}

	jobs := make([]*domain.Job, 0, len(records))
	for i := range records {
		j, err := records[i].ToDomain()
		if err != nil {
			return nil, fmt.Errorf("restore job %q: %w", records[i].ClientID, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// writeAtomic stages data in a temp file next to path and renames it into
// place, so readers never observe a partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".haul-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
