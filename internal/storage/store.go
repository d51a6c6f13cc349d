package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/local/tourneur/internal/config"
	"github.com/local/tourneur/internal/filetype"
)

var (
	// ErrNotFound means no stored object matches the token.
	ErrNotFound = errors.New("document not found")
	// ErrExists means a create-only write hit an existing object.
	ErrExists = errors.New("object already exists")
)

// Object is a stored document, named {token}{ext}.
type Object struct {
	Token   string
	Name    string
	Ext     string
	Size    int64
	ModTime time.Time
}

// IsPDF reports whether the object was uploaded as a PDF.
func (o Object) IsPDF() bool {
	info, ok := filetype.Lookup(o.Ext)
	return ok && info.Kind == filetype.KindPDF
}

// Type is the extension without its dot ("pdf", "png", ...).
func (o Object) Type() string { return strings.TrimPrefix(o.Ext, ".") }

// Store holds uploaded documents. Objects are immutable once written.
type Store interface {
	Backend() string
	// Put writes a new object; it never overwrites (ErrExists).
	Put(ctx context.Context, name string, data []byte) error
	// Find resolves a token by name prefix; the first match in lexical order wins.
	Find(ctx context.Context, token string) (Object, error)
	Open(ctx context.Context, obj Object) (io.ReadCloser, error)
	// Fetch returns a local filesystem path for the object; call release when done.
	Fetch(ctx context.Context, obj Object) (path string, release func(), err error)
	Delete(ctx context.Context, name string) error
	Ping(ctx context.Context) error
	Close() error
}

// New builds the configured backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.UploadDir)
	case "s3":
		return NewS3(ctx, cfg.S3)
	case "gcs":
		return NewGCS(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// objectFromName parses "{token}{ext}" for the given token. It rejects names
// where the token is only a prefix of a longer identifier.
func objectFromName(token, name string) (Object, bool) {
	if !strings.HasPrefix(name, token) {
		return Object{}, false
	}
	ext := name[len(token):]
	if ext != "" && !strings.HasPrefix(ext, ".") {
		return Object{}, false
	}
	return Object{Token: token, Name: name, Ext: strings.ToLower(ext)}, true
}

// fetchToTemp copies r into a temp file carrying ext so libraries that look
// at the suffix behave. The returned release removes the file.
func fetchToTemp(r io.Reader, ext string) (string, func(), error) {
	f, err := os.CreateTemp("", tempPrefix+"*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("create temp: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("download to temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	name := f.Name()
	return name, func() { _ = os.Remove(name) }, nil
}
