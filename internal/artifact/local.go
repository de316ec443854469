package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"

	"github.com/spf13/afero"
)

// LocalStore keeps artifacts on a filesystem rooted at a base directory.
type LocalStore struct {
	fs afero.Fs
}

// NewLocalStore roots the store at dir on the OS filesystem.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewLocalStoreFs wraps an existing afero filesystem, e.g. afero.NewMemMapFs in tests.
func NewLocalStoreFs(fsys afero.Fs) *LocalStore {
	return &LocalStore{fs: fsys}
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) Save(_ context.Context, key, _ string, data []byte) (string, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0o750); err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, key, data, 0o600); err != nil {
		return "", err
	}
	return key, nil
}

func (s *LocalStore) Open(_ context.Context, url string) (io.ReadCloser, string, error) {
	key, err := NormalizeKey(url)
	if err != nil {
		return nil, "", err
	}
	data, err := afero.ReadFile(s.fs, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return io.NopCloser(bytes.NewReader(data)), contentType, nil
}

func (s *LocalStore) Exists(_ context.Context, url string) (bool, error) {
	key, err := NormalizeKey(url)
	if err != nil {
		return false, nil
	}
	return afero.Exists(s.fs, key)
}

func (s *LocalStore) Delete(_ context.Context, url string) error {
	key, err := NormalizeKey(url)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(key); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
