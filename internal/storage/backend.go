package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// Object describes one entry returned by List.
type Object struct {
	Name    string    `json:"name"`
	Key     string    `json:"key"` // full key relative to the backend root
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Backend abstracts the local filesystem and S3-compatible object stores.
// Keys are slash separated and relative to the backend root.
type Backend interface {
	// Name returns the backend identifier ("local", "s3").
	Name() string

	// Put stores data at key, replacing any existing object. Readers never
	// observe a partially written object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object at key, or an error wrapping ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object at key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the entries directly under prefix. A missing prefix
	// yields an empty list.
	List(ctx context.Context, prefix string) ([]Object, error)
}
