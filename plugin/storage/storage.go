// Package storage abstracts where skill file attachments live: the local
// filesystem by default, an S3-compatible bucket when configured.
package storage

import "context"

// Driver is a flat key/blob store. Keys are slash-separated paths like
// "skills/<uid>/<filename>".
type Driver interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns found=false for a missing key.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
