package datastores

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/metrics"
)

type fileStore struct {
	basePath string
}

func NewFileStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("file datastore needs a path")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(abs, 0750); err != nil {
		return nil, err
	}
	return &fileStore{basePath: abs}, nil
}

func (s *fileStore) Type() string {
	return "file"
}

func (s *fileStore) resolve(p string) (string, error) {
	if !IsValidPath(p) {
		return "", common.ErrInvalidPath
	}
	return filepath.Join(s.basePath, filepath.FromSlash(p)), nil
}

// Put writes to a temp file beside the target, syncs it, then hard links it
// into place. os.Link fails when the target exists, so nothing is overwritten
// and readers only ever see a complete file.
func (s *fileStore) Put(ctx context.Context, p string, r io.Reader) (int64, error) {
	metrics.StoreOperations.WithLabelValues("file", "put").Inc()
	target, err := s.resolve(p)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(target)
	if err = os.MkdirAll(dir, 0750); err != nil {
		return 0, err
	}
	if _, err = os.Lstat(target); err == nil {
		return 0, common.ErrPathExists
	}

	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, err
	}
	tempName := f.Name()
	defer os.Remove(tempName)

	written, err := io.Copy(f, &contextReader{ctx: ctx, r: r})
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}

	if err = os.Link(tempName, target); err != nil {
		if os.IsExist(err) {
			return 0, common.ErrPathExists
		}
		return 0, err
	}
	if err = syncDir(dir); err != nil {
		return written, fmt.Errorf("error syncing directory: %w", err)
	}
	return written, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func (s *fileStore) Get(ctx context.Context, p string) (io.ReadSeekCloser, error) {
	metrics.StoreOperations.WithLabelValues("file", "get").Inc()
	target, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.ErrMediaNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *fileStore) Delete(ctx context.Context, p string) error {
	metrics.StoreOperations.WithLabelValues("file", "delete").Inc()
	target, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err = os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fileStore) Exists(ctx context.Context, p string) (bool, error) {
	target, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	_, err = os.Lstat(target)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
