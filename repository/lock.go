package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/wolfeidau/maven-repo/backend"
)

// LockFilename is the advisory lock file kept next to metadata documents.
const LockFilename = ".maven-metadata.lock"

const lockRetryDelay = 50 * time.Millisecond

// localPather is implemented by backends that keep keys as local files.
type localPather interface {
	Path(key string) (string, error)
}

// unwrapper is implemented by backend decorators.
type unwrapper interface {
	Unwrap() backend.Backend
}

// localPath resolves key to a local file path, looking through backend
// decorators. It reports false for backends without local files.
func localPath(b backend.Backend, key string) (string, bool) {
	for {
		if p, ok := b.(localPather); ok {
			path, err := p.Path(key)
			return path, err == nil
		}
		u, ok := b.(unwrapper)
		if !ok {
			return "", false
		}
		b = u.Unwrap()
	}
}

// lockDir takes the advisory lock of the directory dir, waiting until it is
// free or ctx is done. Backends without local files are not locked across
// processes and get a no-op release.
func lockDir(ctx context.Context, storage backend.Backend, dir string) (func(), error) {
	key := LockFilename
	if dir != "" {
		key = dir + "/" + LockFilename
	}
	path, ok := localPath(storage, key)
	if !ok {
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("locking %s: %w", dir, ctx.Err())
	}
	return func() { _ = fl.Unlock() }, nil
}
