// Package backend provides the storage abstraction repository files, their
// checksum side-files and metadata documents are kept in.
//
// Keys are slash separated paths relative to the repository root, e.g.
// "org/example/foo/1.0/foo-1.0.jar".
package backend

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a key does not exist in the backend.
	ErrNotFound = errors.New("not found")

	// ErrInvalidKey is returned for keys that escape the backend root.
	ErrInvalidKey = errors.New("invalid key")
)

// Backend defines the interface for storage backends.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Write stores data at the given key.
	// If the key already exists, it should be overwritten.
	Write(ctx context.Context, key string, r io.Reader) error

	// Read retrieves data at the given key.
	// Returns ErrNotFound if the key does not exist.
	// The caller must close the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes data at the given key.
	// Returns nil if the key does not exist (idempotent).
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys with the given prefix.
	// The prefix should use "/" as the path separator.
	List(ctx context.Context, prefix string) ([]string, error)
}

// WriterBackend extends Backend with direct writer access.
// This is optional and allows backends to provide more efficient writes
// for callers that can write directly rather than provide a reader.
type WriterBackend interface {
	Backend

	// Writer returns a WriteCloser for writing to the given key.
	// The write is only committed when Close returns nil.
	// If Close returns an error, the write should be considered failed.
	Writer(ctx context.Context, key string) (io.WriteCloser, error)
}

// SizeAwareBackend extends Backend with size information.
type SizeAwareBackend interface {
	Backend

	// Size returns the size in bytes of the data at the given key.
	// Returns ErrNotFound if the key does not exist.
	Size(ctx context.Context, key string) (int64, error)
}

// Entry is an immediate child of a directory-like prefix.
type Entry struct {
	Name  string
	IsDir bool
}

// DirectoryBackend extends Backend with a non-recursive listing.
type DirectoryBackend interface {
	Backend

	// Children returns the immediate children of prefix sorted by name.
	// A missing prefix yields no entries.
	Children(ctx context.Context, prefix string) ([]Entry, error)
}

// Children lists the immediate children of prefix, using the backend's own
// listing when it implements DirectoryBackend and deriving it from List
// otherwise.
func Children(ctx context.Context, b Backend, prefix string) ([]Entry, error) {
	if db, ok := b.(DirectoryBackend); ok {
		return db.Children(ctx, prefix)
	}

	prefix = strings.Trim(prefix, "/")
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var entries []Entry
	for _, key := range keys {
		rel := key
		if prefix != "" {
			if !strings.HasPrefix(key, prefix+"/") {
				continue
			}
			rel = strings.TrimPrefix(key, prefix+"/")
		}
		name, _, nested := strings.Cut(rel, "/")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		entries = append(entries, Entry{Name: name, IsDir: nested})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// CleanKey normalises a key and rejects keys containing ".." segments.
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, `\`, "/")
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	return strings.Trim(path.Clean("/"+key), "/"), nil
}
