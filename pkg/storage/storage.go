package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested path does not exist in storage.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by Create when the path is already taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Storage provides an abstraction over key-value style file storage.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	// Create writes data at path only if nothing exists there yet.
	Create(ctx context.Context, path string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Location returns a human readable location for path (file path or s3 URL).
	Location(path string) string
}
