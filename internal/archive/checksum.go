package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// DefaultHashTimeout bounds a single hashing pass over one file.
const DefaultHashTimeout = 60 * time.Second

// ChecksumEngine computes and compares SHA-256 fingerprints of files addressed
// by storage locators. It is stateless; all file access goes through the
// resolver with a bounded timeout.
type ChecksumEngine struct {
	resolver Resolver
	timeout  time.Duration
}

// NewChecksumEngine creates an engine reading through resolver. A zero
// timeout falls back to DefaultHashTimeout.
func NewChecksumEngine(resolver Resolver, timeout time.Duration) *ChecksumEngine {
	if timeout <= 0 {
		timeout = DefaultHashTimeout
	}
	return &ChecksumEngine{resolver: resolver, timeout: timeout}
}

// Compute streams the file and returns its SHA-256 as lowercase hex.
// Returns ErrFileUnreadable (wrapped) if the locator cannot be opened or read.
func (e *ChecksumEngine) Compute(ctx context.Context, loc Locator) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rc, err := e.resolver.Open(ctx, loc)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w: %v", loc, ErrFileUnreadable, err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("reading %s: %w: %v", loc, ErrFileUnreadable, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the file's checksum and compares it against the stored
// value. If the file cannot be read, verification conservatively fails:
// integrity that cannot be proven is treated as violated.
func (e *ChecksumEngine) Verify(ctx context.Context, rec *Record) bool {
	if !rec.HasChecksum() {
		return false
	}
	sum, err := e.Compute(ctx, rec.Locator)
	if err != nil {
		return false
	}
	return sum == rec.ChecksumSHA256
}
