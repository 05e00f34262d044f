package archive

import (
	"context"
	"io"
)

// Locator addresses the underlying file at its original storage location.
// For file-backed records it is a key understood by the configured Resolver
// (a path under the storage root, or an object key). For manual entries it is
// a raw URL that no Resolver can serve.
type Locator string

func (l Locator) String() string { return string(l) }

// Resolver gives read and delete access to files addressed by locators.
// Implementations must honor context cancellation so file I/O stays bounded;
// on timeout the file is treated as missing, never hung on.
type Resolver interface {
	// Exists reports whether the locator resolves to a readable file.
	Exists(ctx context.Context, loc Locator) (bool, error)

	// Open opens the file's content for streaming.
	Open(ctx context.Context, loc Locator) (io.ReadCloser, error)

	// Delete removes the underlying file. Deleting a file that is already
	// gone is not an error.
	Delete(ctx context.Context, loc Locator) error
}
