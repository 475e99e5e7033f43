// Package localfs is a filesystem-backed implementation of
// ports.CacheStore and ports.NASStore. Objects are stored as files
// with the object key as the relative path, the same layout the
// teacher's block store uses for block keys.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/ports"
)

// Store is a filesystem-backed object store rooted at BasePath. A
// single Store value can back either tier (cache or NAS); callers
// construct one per tier with a different BasePath.
type Store struct {
	mu       sync.RWMutex
	basePath string
	closed   bool
}

// Config holds construction options for Store.
type Config struct {
	// BasePath is the root directory objects are stored under. Object
	// keys are paths relative to this directory.
	BasePath string

	// CreateDir creates BasePath if it doesn't exist. Default: true.
	CreateDir bool

	DirMode  os.FileMode
	FileMode os.FileMode
}

// ErrClosed is returned by every method once Close has been called.
var ErrClosed = errors.New("localfs: store is closed")

func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:  basePath,
		CreateDir: true,
		DirMode:   0755,
		FileMode:  0644,
	}
}

func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("localfs: base path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("localfs: %s is not a directory", cfg.BasePath)
	}

	return &Store{basePath: cfg.BasePath}, nil
}

func NewWithPath(basePath string) (*Store, error) {
	return New(DefaultConfig(basePath))
}

func (s *Store) objectPath(objectKey string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(objectKey))
}

func (s *Store) Write(ctx context.Context, objectKey string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	path := s.objectPath(objectKey)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Store) StreamWrite(ctx context.Context, objectKey string, r io.Reader) (int64, error) {
	// The lock only guards the closed check: holding it across the copy
	// would block every other call on this store, including reads that
	// feed r itself, until the stream ends.
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}

	path := s.objectPath(objectKey)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return 0, copyErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, closeErr
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	return n, nil
}

func (s *Store) Read(ctx context.Context, objectKey string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	data, err := os.ReadFile(s.objectPath(objectKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "object not found", objectKey)
		}
		return nil, err
	}
	return data, nil
}

func (s *Store) StreamRead(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.Open(s.objectPath(objectKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "object not found", objectKey)
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) RangeStreamRead(ctx context.Context, objectKey string, offset, length int64) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.Open(s.objectPath(objectKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "object not found", objectKey)
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if offset < 0 || offset > info.Size() {
		f.Close()
		return nil, apperr.New(apperr.ErrInvalidRange, "range offset out of bounds: "+objectKey)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	if length < 0 {
		return f, nil
	}
	return &limitedReadCloser{r: io.LimitReader(f, length), c: f}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

func (s *Store) Delete(ctx context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	path := s.objectPath(objectKey)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.cleanEmptyDirs(filepath.Dir(path))
	return nil
}

func (s *Store) Exists(ctx context.Context, objectKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}

	_, err := os.Stat(s.objectPath(objectKey))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Move(ctx context.Context, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	src := s.objectPath(srcKey)
	dst := s.objectPath(dstKey)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "object not found", srcKey)
		}
		return err
	}
	s.cleanEmptyDirs(filepath.Dir(src))
	return nil
}

func (s *Store) Size(ctx context.Context, objectKey string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	info, err := os.Stat(s.objectPath(objectKey))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "object not found", objectKey)
		}
		return 0, err
	}
	return info.Size(), nil
}

func (s *Store) Rmdir(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	path := s.objectPath(prefix)
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("localfs: %s is not empty", prefix)
	}
	return os.Remove(path)
}

// cleanEmptyDirs removes empty directories up to basePath, mirroring
// the teacher's garbage-collecting delete so trash/rename churn
// doesn't leave a forest of empty folders behind.
func (s *Store) cleanEmptyDirs(dir string) {
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

func (s *Store) Preallocate(ctx context.Context, objectKey string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	path := s.objectPath(objectKey)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Truncate(size)
}

func (s *Store) ChunkWrite(ctx context.Context, objectKey string, data []byte, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	path := s.objectPath(objectKey)
	f, err := os.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "object not preallocated", objectKey)
		}
		return err
	}
	defer f.Close()

	_, err = f.WriteAt(data, offset)
	return err
}

func (s *Store) CreateFolder(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return os.MkdirAll(s.objectPath(path), 0755)
}

func (s *Store) DeleteFolder(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	full := s.objectPath(path)
	if err := os.RemoveAll(full); err != nil {
		return err
	}
	s.cleanEmptyDirs(filepath.Dir(full))
	return nil
}

func (s *Store) MoveFolder(ctx context.Context, srcPath, dstPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	src := s.objectPath(srcPath)
	dst := s.objectPath(dstPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return apperr.New(apperr.ErrFolderNotFound, "folder not found: "+srcPath)
		}
		return err
	}
	s.cleanEmptyDirs(filepath.Dir(src))
	return nil
}

// ListByPrefix lists every object key under prefix, sorted, walking
// the subtree on disk without a metadata-store round trip.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	prefixPath := s.objectPath(prefix)
	var keys []string

	if _, err := os.Stat(prefixPath); err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, err
	}

	err := filepath.WalkDir(prefixPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) BasePath() string {
	return s.basePath
}

var (
	_ ports.CacheStore = (*Store)(nil)
	_ ports.NASStore   = (*Store)(nil)
)
