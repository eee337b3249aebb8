// Package file implements key/value storage as one file per key in a
// directory, optionally gzip-compressed.
package file

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/storefront/internal/persist"
)

// ErrInvalidKey is returned for keys that cannot be used as file names.
var ErrInvalidKey = errors.New("invalid storage key")

var (
	_ persist.Storage = (*Storage)(nil)
	_ persist.Pinger  = (*Storage)(nil)
)

// Storage stores each key in <dir>/<key>.json, or <dir>/<key>.json.gz when
// compression is enabled. Writes replace the file atomically.
type Storage struct {
	dir      string
	compress bool
}

// New creates dir if needed and returns a Storage rooted at it.
func New(dir string, compress bool) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create storage dir %s", dir)
	}
	return &Storage{dir: dir, compress: compress}, nil
}

// Get reads the value stored under key.
func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return "", false, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if s.compress {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return "", false, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", false, errors.Wrapf(err, "read %s", path)
	}
	return string(data), true, nil
}

// Set writes value under key through a temporary file and rename, so a
// crash never leaves a partially written value behind.
func (s *Storage) Set(_ context.Context, key, value string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := s.writeTo(tmp, value); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %s", key)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "sync %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", key)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}

// Ping checks that the storage directory is still accessible.
func (s *Storage) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return errors.Wrap(err, "stat storage dir")
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *Storage) writeTo(w io.Writer, value string) error {
	if !s.compress {
		_, err := io.WriteString(w, value)
		return err
	}

	gz := pgzip.NewWriter(w)
	if _, err := io.WriteString(gz, value); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}

func (s *Storage) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	name := key + ".json"
	if s.compress {
		name += ".gz"
	}
	return filepath.Join(s.dir, name), nil
}
