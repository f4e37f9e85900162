package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog"
)

const (
	// entriesDir holds one document per key below the cache root.
	entriesDir = "entries"

	// entryFileExtension is the file extension used for cache entries.
	entryFileExtension = ".json"

	// tempFilePrefix marks in-progress writes; they are never read as entries.
	tempFilePrefix = ".tmp-"

	fileBackend = "file"
)

// FileStore persists entries as JSON documents, one file per key.
// Writes go to a temporary file that is renamed over the target, so a reader
// sees either the previous entry or the new one.
type FileStore struct {
	fs     billy.Filesystem
	logger zerolog.Logger

	// mu serializes directory mutations against listings; memfs is not
	// safe for concurrent mutation.
	mu sync.RWMutex
}

// NewFileStore creates a file store rooted at directory on the local disk.
// The directory is created if it does not exist.
func NewFileStore(directory string, logger zerolog.Logger) (*FileStore, error) {
	if directory == "" {
		return nil, errors.New("cache directory cannot be empty")
	}

	if err := os.MkdirAll(directory, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return NewFileStoreFS(osfs.New(directory), logger)
}

// NewFileStoreFS creates a file store on an arbitrary billy filesystem.
func NewFileStoreFS(filesystem billy.Filesystem, logger zerolog.Logger) (*FileStore, error) {
	if filesystem == nil {
		return nil, errors.New("filesystem cannot be nil")
	}

	if err := filesystem.MkdirAll(entriesDir, 0o750); err != nil {
		return nil, fmt.Errorf("create entries directory: %w", err)
	}

	return &FileStore{
		fs:     filesystem,
		logger: logger,
	}, nil
}

// Root returns the root of the underlying filesystem.
func (s *FileStore) Root() string {
	return s.fs.Root()
}

// Get reads the entry for key.
func (s *FileStore) Get(_ context.Context, key Key) (*Entry, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: malformed key %q", ErrInvalidKeyInput, key)
	}

	s.mu.RLock()
	data, err := util.ReadFile(s.fs, s.entryPath(key))
	s.mu.RUnlock()

	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			StoreReads.WithLabelValues(fileBackend, "miss").Inc()
			return nil, ErrNotFound
		}
		StoreReads.WithLabelValues(fileBackend, "error").Inc()
		StoreErrors.WithLabelValues(fileBackend, "get").Inc()
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	entry, err := decodeEntry(key, data)
	if err != nil {
		StoreReads.WithLabelValues(fileBackend, "corrupt").Inc()
		s.logger.Debug().Err(err).Str("key", key.String()).Msg("Corrupt cache file")
		return nil, err
	}

	StoreReads.WithLabelValues(fileBackend, "hit").Inc()
	return entry, nil
}

// Put writes the entry, replacing any previous entry for the same key.
func (s *FileStore) Put(_ context.Context, entry *Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		StoreErrors.WithLabelValues(fileBackend, "put").Inc()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(s.entryPath(entry.Key), data); err != nil {
		StoreErrors.WithLabelValues(fileBackend, "put").Inc()
		return err
	}

	StoreWrites.WithLabelValues(fileBackend).Inc()
	EntrySize.WithLabelValues(fileBackend).Observe(float64(len(data)))
	return nil
}

// writeAtomic writes to a temporary file first, then renames it over target.
func (s *FileStore) writeAtomic(target string, data []byte) error {
	tmp, err := s.fs.TempFile(entriesDir, tempFilePrefix)
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close cache file: %w", err)
	}

	if err := s.fs.Rename(tmpName, target); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Delete removes the entry for key. Missing entries are ignored.
func (s *FileStore) Delete(_ context.Context, key Key) error {
	if !key.Valid() {
		return fmt.Errorf("%w: malformed key %q", ErrInvalidKeyInput, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.entryPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		StoreErrors.WithLabelValues(fileBackend, "delete").Inc()
		return fmt.Errorf("delete cache file: %w", err)
	}
	return nil
}

// ListExpired returns the keys of entries whose TTL had elapsed at now.
// Unreadable entries are skipped; Get reports them as corrupt.
func (s *FileStore) ListExpired(ctx context.Context, now time.Time) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.fs.ReadDir(entriesDir)
	if err != nil {
		StoreErrors.WithLabelValues(fileBackend, "list").Inc()
		return nil, fmt.Errorf("read cache directory: %w", err)
	}

	var expired []Key
	for _, info := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key, ok := keyFromFileName(info)
		if !ok {
			continue
		}

		data, err := util.ReadFile(s.fs, s.entryPath(key))
		if err != nil {
			continue
		}
		entry, err := decodeEntry(key, data)
		if err != nil {
			continue
		}
		if entry.IsExpiredAt(now) {
			expired = append(expired, key)
		}
	}

	return expired, nil
}

// Purge removes every entry and any leftover temporary file.
func (s *FileStore) Purge(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.fs.ReadDir(entriesDir)
	if err != nil {
		StoreErrors.WithLabelValues(fileBackend, "purge").Inc()
		return fmt.Errorf("read cache directory: %w", err)
	}

	removed := 0
	for _, info := range files {
		if info.IsDir() {
			continue
		}
		name := info.Name()
		if path.Ext(name) != entryFileExtension && !strings.HasPrefix(name, tempFilePrefix) {
			continue
		}
		err := s.fs.Remove(s.fs.Join(entriesDir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			StoreErrors.WithLabelValues(fileBackend, "purge").Inc()
			return fmt.Errorf("remove cache file %s: %w", name, err)
		}
		removed++
	}

	s.logger.Info().Int("removed", removed).Msg("Cache purged")
	return nil
}

// Stats returns the number of entries and their total size on disk.
func (s *FileStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.fs.ReadDir(entriesDir)
	if err != nil {
		return Stats{}, fmt.Errorf("read cache directory: %w", err)
	}

	var stats Stats
	for _, info := range files {
		if _, ok := keyFromFileName(info); !ok {
			continue
		}
		stats.Entries++
		stats.Bytes += info.Size()
	}
	return stats, nil
}

// Ping checks that the entries directory accepts writes.
func (s *FileStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	probe, err := s.fs.TempFile(entriesDir, tempFilePrefix+"probe-")
	if err != nil {
		return fmt.Errorf("cache directory not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return s.fs.Remove(name)
}

func (s *FileStore) entryPath(key Key) string {
	return s.fs.Join(entriesDir, key.String()+entryFileExtension)
}

// keyFromFileName extracts the key from an entry file name.
func keyFromFileName(info os.FileInfo) (Key, bool) {
	if info.IsDir() {
		return "", false
	}
	name := info.Name()
	if path.Ext(name) != entryFileExtension {
		return "", false
	}
	key := Key(strings.TrimSuffix(name, entryFileExtension))
	return key, key.Valid()
}
