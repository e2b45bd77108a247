package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LocalStore writes objects under a directory that the API server exposes
// at PublicBaseURL.
type LocalStore struct {
	root    string
	baseURL string
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}
	return &LocalStore{root: root, baseURL: baseURL}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create directory for %s", key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "failed to write %s", key)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", key)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", errors.Wrapf(err, "failed to store %s", key)
	}

	return joinURL(s.baseURL, key), nil
}

func (s *LocalStore) PutJSON(ctx context.Context, key string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal data")
	}
	return s.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json")
}

func (s *LocalStore) GetJSON(_ context.Context, key string, v any) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return errors.Wrap(ErrNotFound, key)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", key)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode data")
	}
	return nil
}
