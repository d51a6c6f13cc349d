package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/local/tourneur/internal/config"
	"github.com/local/tourneur/internal/filetype"
)

// GCS stores documents in a Google Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	name   string
	prefix string
}

// NewGCS uses Application Default Credentials.
func NewGCS(ctx context.Context, cfg config.GCSConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is not set")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(cfg.Bucket), name: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (g *GCS) Backend() string { return "gcs" }

func (g *GCS) key(name string) string { return g.prefix + name }

// Put writes with a does-not-exist precondition, so concurrent writers of
// the same name cannot clobber each other.
func (g *GCS) Put(ctx context.Context, name string, data []byte) error {
	w := g.bucket.Object(g.key(name)).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if info, ok := filetype.Lookup(name); ok {
		w.ContentType = info.MIMETypes[0]
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return g.writeErr(name, err)
	}
	if err := w.Close(); err != nil {
		return g.writeErr(name, err)
	}
	log.Debug().Str("bucket", g.name).Str("object", g.key(name)).Int("size", len(data)).Msg("stored upload in GCS")
	return nil
}

func (g *GCS) writeErr(name string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return ErrExists
	}
	return fmt.Errorf("failed to write %s to GCS: %w", name, err)
}

func (g *GCS) Find(ctx context.Context, token string) (Object, error) {
	if !ValidToken(token) {
		return Object{}, ErrNotFound
	}
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: g.key(token)})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return Object{}, fmt.Errorf("list %s: %w", token, err)
		}
		obj, ok := objectFromName(token, strings.TrimPrefix(attrs.Name, g.prefix))
		if !ok {
			continue
		}
		obj.Size = attrs.Size
		obj.ModTime = attrs.Updated
		return obj, nil
	}
	return Object{}, ErrNotFound
}

func (g *GCS) Open(ctx context.Context, obj Object) (io.ReadCloser, error) {
	r, err := g.bucket.Object(g.key(obj.Name)).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", obj.Name, err)
	}
	return r, nil
}

func (g *GCS) Fetch(ctx context.Context, obj Object) (string, func(), error) {
	r, err := g.Open(ctx, obj)
	if err != nil {
		return "", nil, err
	}
	defer r.Close()
	return fetchToTemp(r, obj.Ext)
}

func (g *GCS) Delete(ctx context.Context, name string) error {
	err := g.bucket.Object(g.key(name)).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Sweep deletes objects under the prefix older than maxAge.
func (g *GCS) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: g.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return removed, nil
		}
		if err != nil {
			return removed, fmt.Errorf("list for sweep: %w", err)
		}
		if attrs.Updated.After(cutoff) {
			continue
		}
		if err := g.bucket.Object(attrs.Name).Delete(ctx); err != nil {
			log.Warn().Err(err).Str("object", attrs.Name).Msg("sweep: delete failed")
			continue
		}
		removed++
	}
}

func (g *GCS) Ping(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	return err
}

func (g *GCS) Close() error { return g.client.Close() }
