package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"retain/internal/archive"
)

// FilesystemResolver serves locators as paths under a fixed root directory.
// Locators may not escape the root.
type FilesystemResolver struct {
	root string
}

var _ archive.Resolver = (*FilesystemResolver)(nil)

// NewFilesystemResolver creates a resolver rooted at root.
func NewFilesystemResolver(root string) (*FilesystemResolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	return &FilesystemResolver{root: abs}, nil
}

// resolve maps a locator onto a path inside the root, rejecting traversal.
func (r *FilesystemResolver) resolve(loc archive.Locator) (string, error) {
	cleaned := filepath.Clean("/" + string(loc))
	full := filepath.Join(r.root, cleaned)
	if full != r.root && !strings.HasPrefix(full, r.root+string(filepath.Separator)) {
		return "", fmt.Errorf("locator %q escapes storage root", loc)
	}
	return full, nil
}

func (r *FilesystemResolver) Exists(ctx context.Context, loc archive.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := r.resolve(loc)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}

func (r *FilesystemResolver) Open(ctx context.Context, loc archive.Locator) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := r.resolve(loc)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

func (r *FilesystemResolver) Delete(ctx context.Context, loc archive.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := r.resolve(loc)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
