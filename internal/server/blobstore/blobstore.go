// Package blobstore provides durable object storage for uploaded photos.
package blobstore

import (
	"context"
	"fmt"
	"io"
)

// ProgressFunc receives upload progress as a percentage in 0..100. For a
// single Put the reported percentages never decrease, and the last call for
// a successful Put reports 100.
type ProgressFunc func(percent int)

// PutResult describes a stored object.
type PutResult struct {
	Key string
	URL string
}

// Store is the interface for durable photo storage backends.
type Store interface {
	// Put uploads an object, reporting progress as bytes go out. Large
	// payloads are uploaded in bounded-parallel parts; a failed part aborts
	// the whole object and leaves nothing behind.
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string, onProgress ProgressFunc) (*PutResult, error)

	// Remove deletes an object. Callers treat failures during cascading
	// deletes as non-fatal.
	Remove(ctx context.Context, key string) error

	// ObjectURL returns the public URL for a stored key.
	ObjectURL(key string) string
}

// StorageError wraps a backend failure with the operation and key involved.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// progressReader is handed to the backend as the progress hook: it receives
// a Read call for every chunk that goes out on the wire.
type progressReader struct {
	total int64
	seen  int64
	last  int
	fn    ProgressFunc
}

func newProgressReader(total int64, fn ProgressFunc) *progressReader {
	return &progressReader{total: total, fn: fn}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n := len(p)
	r.seen += int64(n)
	if r.fn != nil && r.total > 0 {
		percent := int(r.seen * 100 / r.total)
		if percent > 100 {
			percent = 100
		}
		// Monotonic per object: parts may complete out of order upstream,
		// but the byte count only grows.
		if percent > r.last {
			r.last = percent
			r.fn(percent)
		}
	}
	return n, nil
}
