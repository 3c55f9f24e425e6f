package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps all records for one module in a single JSON document,
// replaced atomically on every write. Overlapping scheduled runs may race,
// but a reader always sees either the old or the fully written new file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Read(target string) (Record, bool, error) {
	recs, err := s.load()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := recs[target]
	return rec, ok, nil
}

func (s *FileStore) Write(target string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		// Corrupt file: start over rather than refuse to make progress.
		recs = map[string]Record{}
	}
	recs[target] = rec
	return s.save(recs)
}

func (s *FileStore) Reset(target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := recs[target]; !ok {
		return nil
	}
	delete(recs, target)
	return s.save(recs)
}

func (s *FileStore) All() (map[string]Record, error) {
	return s.load()
}

func (s *FileStore) load() (map[string]Record, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, &StorageError{Path: s.path, Err: err}
	}
	recs := map[string]Record{}
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, &StorageError{Path: s.path, Err: err}
	}
	return recs, nil
}

func (s *FileStore) save(recs map[string]Record) error {
	if err := WriteFileAtomic(s.path, recs); err != nil {
		return &StorageError{Path: s.path, Err: err}
	}
	return nil
}

// WriteFileAtomic marshals v as indented JSON and replaces path via a
// temp-file-then-rename so no reader ever observes a partial record.
func WriteFileAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
