package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local keeps documents as files in a single directory.
type Local struct {
	dir string
}

// NewLocal creates the upload directory if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("upload dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Backend() string { return "local" }

// Dir returns the upload directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Put(ctx context.Context, name string, data []byte) error {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid object name %q", name)
	}
	p := filepath.Join(l.dir, name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

func (l *Local) Find(ctx context.Context, token string) (Object, error) {
	if !ValidToken(token) {
		return Object{}, ErrNotFound
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return Object{}, fmt.Errorf("scan upload dir: %w", err)
	}
	// ReadDir returns entries sorted by filename.
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		obj, ok := objectFromName(token, e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return Object{}, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		obj.Size = info.Size()
		obj.ModTime = info.ModTime()
		return obj, nil
	}
	return Object{}, ErrNotFound
}

func (l *Local) Open(ctx context.Context, obj Object) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(l.dir, obj.Name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Fetch returns the file in place; release is a no-op.
func (l *Local) Fetch(ctx context.Context, obj Object) (string, func(), error) {
	p := filepath.Join(l.dir, obj.Name)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	return p, func() {}, nil
}

func (l *Local) Delete(ctx context.Context, name string) error {
	err := os.Remove(filepath.Join(l.dir, filepath.Base(name)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) Ping(ctx context.Context) error {
	st, err := os.Stat(l.dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", l.dir)
	}
	return nil
}

func (l *Local) Close() error { return nil }
