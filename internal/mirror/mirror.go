// Package mirror uploads finished release directories to a blob store so
// the local archive has an off-machine copy. Mirroring is best effort and
// runs after a release completes; a failed upload never fails the release.
package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BlobStore writes one artifact and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
}

// Mirrorer walks release directories and uploads every regular file.
type Mirrorer struct {
	store  BlobStore
	prefix string
	// parallel bounds concurrent uploads per release.
	parallel int
	logger   *zap.Logger
}

// Config assembles a Mirrorer.
type Config struct {
	// Prefix is prepended to every object path, e.g. "releases".
	Prefix string
	// Parallel bounds concurrent uploads, default 4.
	Parallel int
	Logger   *zap.Logger
}

// New wires a Mirrorer to a store.
func New(store BlobStore, cfg Config) (*Mirrorer, error) {
	if store == nil {
		return nil, fmt.Errorf("mirror: blob store is required")
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Mirrorer{
		store:    store,
		prefix:   cfg.Prefix,
		parallel: cfg.Parallel,
		logger:   cfg.Logger,
	}, nil
}

// MirrorRelease uploads every file under dir, keyed as
// "<prefix>/<dirname>/<relative path>". Uploads run concurrently; the first
// failure cancels the rest.
func (m *Mirrorer) MirrorRelease(ctx context.Context, dir string) error {
	base := filepath.Base(dir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)

	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		object := path.Join(m.prefix, base, filepath.ToSlash(rel))
		g.Go(func() error {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			uri, err := m.store.PutObject(gctx, object, contentTypeOf(p), data)
			if err != nil {
				return fmt.Errorf("upload %s: %w", object, err)
			}
			m.logger.Debug("artifact mirrored", zap.String("uri", uri))
			return nil
		})
		return nil
	})
	if walkErr != nil {
		// Let in-flight uploads settle before reporting the walk error.
		_ = g.Wait()
		return fmt.Errorf("walk release dir: %w", walkErr)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.logger.Info("release mirrored", zap.String("dir", base))
	return nil
}

func contentTypeOf(p string) string {
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
