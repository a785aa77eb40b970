package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Brownie44l1/fruit-classifier/internal/logger"
)

// FileStore keeps the whole history as one JSON array. Append is
// read-modify-write with no locking across processes: two concurrent writers
// can lose records. Only one writer is expected.
type FileStore struct {
	path   string
	logger *logger.Logger
}

func NewFileStore(path string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileStore{path: path, logger: log}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) LoadAll() []Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warning("Failed to read history %s: %v", s.path, err)
		}
		return []Record{}
	}
	if len(data) == 0 {
		return []Record{}
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warning("Ignoring unreadable history %s: %v", s.path, err)
		return []Record{}
	}
	if records == nil {
		records = []Record{}
	}
	return records
}

func (s *FileStore) Append(rec Record) error {
	records := append(s.LoadAll(), rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create history temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace history: %w", err)
	}

	return nil
}
