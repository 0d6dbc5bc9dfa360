package artwork

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store maps a library item ID to the artwork URL we settled on for it.
// Entries are only ever added or overwritten.
type Store interface {
	Get(itemID string) (string, bool)
	Put(itemID, url string) error
	Len() int
	Close() error
}

// FileStore keeps the whole mapping in memory and rewrites the JSON file in
// full after every Put. Not safe for concurrent writers.
type FileStore struct {
	path    string
	entries map[string]string
}

// OpenFileStore loads the cache from path, falling back to legacyPath. A
// missing or unreadable cache is not an error: we start empty and write to
// path from then on.
func OpenFileStore(path, legacyPath string) *FileStore {
	fs := &FileStore{path: path, entries: map[string]string{}}
	for _, candidate := range []string{path, legacyPath} {
		if candidate == "" {
			continue
		}
		entries, err := readEntries(candidate)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			slog.Warn("Failed to read artwork cache, starting empty",
				slog.String("path", candidate),
				slog.String("error", err.Error()))
			return fs
		}
		fs.entries = entries
		slog.Debug("Loaded artwork cache",
			slog.String("path", candidate),
			slog.Int("entries", len(entries)))
		return fs
	}
	return fs
}

func readEntries(path string) (map[string]string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries := map[string]string{}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

func (fs *FileStore) Get(itemID string) (string, bool) {
	url, ok := fs.entries[itemID]
	return url, ok && url != ""
}

func (fs *FileStore) Put(itemID, url string) error {
	fs.entries[itemID] = url
	return fs.flush()
}

func (fs *FileStore) Len() int {
	return len(fs.entries)
}

func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) flush() error {
	body, err := json.MarshalIndent(fs.entries, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cover_cache-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fs.path)
}
