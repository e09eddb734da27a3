// Package blob stores normalized media audio in a local directory or an
// S3-compatible bucket (MinIO in the reference deployment).
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"nexus/internal/config"
	"nexus/internal/services"
)

// Store is content storage keyed by media identifier.
type Store interface {
	// Put uploads the primary asset for mediaID and returns its reference.
	Put(ctx context.Context, mediaID string, r io.Reader) (string, error)
	// Get opens the object at ref. Missing objects wrap services.ErrNotFound.
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes the object at ref. Deleting a missing object is not an error.
	Delete(ctx context.Context, ref string) error
}

// Key returns the object name for a media item's primary audio asset.
func Key(mediaID string) string {
	return "audio/" + mediaID + ".wav"
}

// New builds the configured blob store.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return NewS3(ctx, cfg.Storage)
	case config.StorageLocal, "":
		return NewLocal(cfg.Storage.LocalDir)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "blob", "new", fmt.Sprintf("unsupported backend %q", cfg.Storage.Backend), nil)
	}
}

// FetchToFile copies the object at ref into a new file under dir. The
// returned cleanup removes the file and is safe to call on every path.
func FetchToFile(ctx context.Context, store Store, ref, dir, pattern string) (string, func(), error) {
	noop := func() {}
	body, err := store.Get(ctx, ref)
	if err != nil {
		return "", noop, err
	}
	defer body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", noop, fmt.Errorf("ensure temp dir: %w", err)
	}
	file, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}
	path := file.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := io.Copy(file, body); err != nil {
		_ = file.Close()
		cleanup()
		return "", noop, fmt.Errorf("download %s: %w", ref, err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}

// PutFile uploads the file at path as mediaID's primary asset.
func PutFile(ctx context.Context, store Store, mediaID, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()
	return store.Put(ctx, mediaID, file)
}

func notFound(ref string, err error) error {
	return services.Wrap(services.ErrNotFound, "blob", "get", ref, err)
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
