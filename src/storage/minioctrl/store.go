package minioctrl

import (
	"context"
	"errors"
	"io"
	"time"

	"algomind/src/fsutil"
)

// ObjectStore exposes a MinioService through fsutil.FileStore. Paths are
// minio://bucket/object URLs.
type ObjectStore struct {
	svc     *MinioService
	timeout time.Duration
}

var _ fsutil.FileStore = (*ObjectStore)(nil)

func NewObjectStore(svc *MinioService, timeout time.Duration) *ObjectStore {
	return &ObjectStore{svc: svc, timeout: timeout}
}

func (s *ObjectStore) ReadFile(path string) ([]byte, error) {
	rc, err := s.ReadFileAsStream(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ReadFileAsStream opens the object. The object reads lazily, so the timeout runs
// until the reader is closed.
func (s *ObjectStore) ReadFileAsStream(path string) (io.ReadCloser, error) {
	bucket, object, err := ParseURL(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.context()
	rc, err := s.svc.OpenObject(ctx, bucket, object)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{ReadCloser: rc, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func (s *ObjectStore) Size(path string) (int64, error) {
	bucket, object, err := ParseURL(path)
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.context()
	defer cancel()
	return s.svc.StatObject(ctx, bucket, object)
}

func (s *ObjectStore) context() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), s.timeout)
}

// Router dispatches minio:// paths to the object store and everything else to the
// local filesystem
type Router struct {
	Local   fsutil.FileStore
	Objects fsutil.FileStore
}

var errNoObjectStore = errors.New("minio is not configured")

func (r Router) pick(path string) (fsutil.FileStore, error) {
	if IsURL(path) {
		if r.Objects == nil {
			return nil, errNoObjectStore
		}
		return r.Objects, nil
	}
	return r.Local, nil
}

func (r Router) ReadFile(path string) ([]byte, error) {
	fs, err := r.pick(path)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(path)
}

func (r Router) ReadFileAsStream(path string) (io.ReadCloser, error) {
	fs, err := r.pick(path)
	if err != nil {
		return nil, err
	}
	return fs.ReadFileAsStream(path)
}

func (r Router) Size(path string) (int64, error) {
	fs, err := r.pick(path)
	if err != nil {
		return 0, err
	}
	return fs.Size(path)
}
