package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"retain/internal/archive"
)

// FilesystemCatalog is an AssetCatalog over the same storage root the
// filesystem resolver serves. An asset ID is the file's path relative to the
// root, or a raw http(s) URL for manual entries that are tracked but not
// file-backed.
type FilesystemCatalog struct {
	root string
}

var _ archive.AssetCatalog = (*FilesystemCatalog)(nil)

// NewFilesystemCatalog creates a catalog rooted at root.
func NewFilesystemCatalog(root string) (*FilesystemCatalog, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving catalog root: %w", err)
	}
	return &FilesystemCatalog{root: abs}, nil
}

func (c *FilesystemCatalog) Archivable(ctx context.Context, assetID string) (bool, error) {
	info, err := c.Describe(ctx, assetID)
	if err != nil {
		return false, err
	}
	return info.Category.Archivable(), nil
}

func (c *FilesystemCatalog) Describe(ctx context.Context, assetID string) (*archive.AssetInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if isURL(assetID) {
		base := urlBase(assetID)
		return &archive.AssetInfo{
			Locator:    archive.Locator(assetID),
			FileBacked: false,
			FileName:   base,
			MIMEType:   mimeByName(base),
			Category:   categoryByName(base),
		}, nil
	}

	cleaned := filepath.Clean("/" + assetID)
	full := filepath.Join(c.root, cleaned)
	if full != c.root && !strings.HasPrefix(full, c.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("asset %q escapes catalog root", assetID)
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("asset %q: %w", assetID, archive.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat asset %q: %w", assetID, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("asset %q is not a regular file", assetID)
	}

	return &archive.AssetInfo{
		Locator:    archive.Locator(strings.TrimPrefix(cleaned, "/")),
		FileBacked: true,
		FileName:   info.Name(),
		MIMEType:   mimeByName(full),
		SizeBytes:  info.Size(),
		Category:   categoryByName(full),
	}, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// urlBase returns the last URL path segment without query noise.
func urlBase(rawURL string) string {
	s := rawURL
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func mimeByName(name string) string {
	return mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
}

// categoryByName buckets a file into the coarse asset categories the archive
// lifecycle cares about.
func categoryByName(name string) archive.AssetCategory {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "pdf", "doc", "docx", "odt", "ods", "odp", "xls", "xlsx", "ppt", "pptx", "rtf", "txt", "csv":
		return archive.CategoryDocument
	case "mp4", "m4v", "mov", "avi", "mkv", "webm", "mpg", "mpeg":
		return archive.CategoryVideo
	case "png", "jpg", "jpeg", "gif", "webp", "svg", "tif", "tiff", "bmp":
		return archive.CategoryImage
	case "mp3", "wav", "ogg", "flac", "m4a", "aac":
		return archive.CategoryAudio
	default:
		return archive.CategoryOther
	}
}
