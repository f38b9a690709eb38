package registry

import (
	"context"
	"io"
)

// Blobs stores model artifacts. Paths are forward-slash separated and
// relative to the store root. Implementations are safe for concurrent use.
type Blobs interface {
	// Open returns an error wrapping fs.ErrNotExist for a missing blob.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Create truncates any existing blob. The blob is only visible once
	// the writer is closed without error.
	Create(ctx context.Context, path string) (io.WriteCloser, error)
	// Remove is a no-op for a missing blob.
	Remove(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}
