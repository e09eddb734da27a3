package blob

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

// Local keeps objects as files below a root directory.
type Local struct {
	rootDir string
}

// NewLocal returns a Local store rooted at rootDir.
func NewLocal(rootDir string) (*Local, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, errors.New("blob: local root dir is empty")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Local{rootDir: rootDir}, nil
}

func (l *Local) path(ref string) (string, error) {
	cleaned := filepath.Clean("/" + ref)
	if cleaned == "/" {
		return "", fmt.Errorf("blob: invalid reference %q", ref)
	}
	return filepath.Join(l.rootDir, cleaned), nil
}

func (l *Local) Put(_ context.Context, mediaID string, r io.Reader) (string, error) {
	ref := Key(mediaID)
	target, err := l.path(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create blob parent: %w", err)
	}
	tmp := target + ".part"
	dest, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(dest, r); err != nil {
		_ = dest.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := dest.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return ref, nil
}

func (l *Local) Get(_ context.Context, ref string) (io.ReadCloser, error) {
	target, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(ref, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

func (l *Local) Delete(_ context.Context, ref string) error {
	target, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
