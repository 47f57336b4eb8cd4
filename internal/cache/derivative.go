// Package cache holds the bounded in-process store for encoded image
// derivatives. Entries are pure recomputable artifacts: losing one costs a
// transform, never data.
package cache

import (
	"bytes"
	"context"
	"time"
)

// Entry is an encoded derivative held by the cache. The cache owns its
// buffers exclusively; Get and Put exchange clones so callers can never
// alias cached bytes.
type Entry struct {
	Data         []byte
	ContentType  string
	OriginalSize int64
	StoredAt     time.Time
}

// DerivativeCache is the bounded key→buffer store consulted before the
// transform pipeline runs. Implementations must keep size at or below
// capacity across concurrent use.
type DerivativeCache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, entry Entry) error
	DeletePrefix(ctx context.Context, prefix string) error
	// Clear removes every entry and returns the pre-clear size for
	// observability.
	Clear(ctx context.Context) (int, error)
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

func cloneEntry(in Entry) Entry {
	return Entry{
		Data:         bytes.Clone(in.Data),
		ContentType:  in.ContentType,
		OriginalSize: in.OriginalSize,
		StoredAt:     in.StoredAt,
	}
}
