package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/log"
)

// Store is the durable on-disk cache. Asset names map to files below root;
// the file's modification time is the asset's last-modified time.
type Store struct {
	root   string
	logger *log.Logger
}

// New opens the cache rooted at root, creating the directory if needed.
func New(root string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}

	return &Store{
		root:   root,
		logger: logger,
	}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Path returns the file that holds key.
func (s *Store) Path(key string) (string, error) {
	name, ok := data.CleanName(key)
	if !ok {
		return "", errs.InvalidKey(nil, key)
	}

	full := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.InvalidKey(err, key)
	}

	return full, nil
}

// Exists reports whether key is cached.
func (s *Store) Exists(key string) bool {
	_, ok := s.ModTime(key)
	return ok
}

// ModTime returns the cached last-modified time of key in milliseconds.
func (s *Store) ModTime(key string) (int64, bool) {
	info, err := s.stat(key)
	if err != nil {
		return data.UnknownTime, false
	}
	return info.ModTime().UnixMilli(), true
}

func (s *Store) stat(key string) (fs.FileInfo, error) {
	full, err := s.Path(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.AssetNotFound(nil, key)
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, errs.AssetNotFound(nil, key)
	}

	return info, nil
}

// Open returns the cached bytes of key.
func (s *Store) Open(key string) (data.Stream, error) {
	full, err := s.Path(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.AssetNotFound(err, key)
		}
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, errs.AssetNotFound(nil, key)
	}

	return data.NewMeta(file, info.Size(), info.ModTime().UnixMilli()), nil
}

// Remove deletes key from the cache. A missing key is not an error.
func (s *Store) Remove(key string) error {
	full, err := s.Path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
