package metadata

import (
	"fmt"
	"slices"
	"time"

	"github.com/wolfeidau/maven-repo/version"
)

// Resolution is the outcome of resolving snapshot candidates.
type Resolution struct {
	// Latest is the highest candidate in Maven version order.
	Latest string

	// Snapshot is the descriptor to record. It carries a timestamp and build
	// number for unique snapshots and is an empty marker otherwise.
	Snapshot *Snapshot

	// Time is the decoded build timestamp of a unique snapshot. It is zero
	// for generic snapshots; file modification times are never consulted.
	Time time.Time
}

// ResolveSnapshot picks the newest candidate and decomposes it.
func ResolveSnapshot(candidates []string) (Resolution, error) {
	if len(candidates) == 0 {
		return Resolution{}, fmt.Errorf("%w: no snapshot versions found", ErrContentNotFound)
	}

	sorted := slices.Clone(candidates)
	version.Sort(sorted)
	latest := sorted[len(sorted)-1]

	if u, ok := version.ParseUniqueSnapshot(latest); ok {
		ts, err := u.Time()
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: snapshot %q: %w", ErrRepositoryMetadata, latest, err)
		}
		return Resolution{
			Latest:   latest,
			Snapshot: &Snapshot{Timestamp: u.Timestamp, BuildNumber: u.BuildNumber},
			Time:     ts,
		}, nil
	}

	if version.IsGenericSnapshot(latest) {
		return Resolution{Latest: latest, Snapshot: &Snapshot{}}, nil
	}

	return Resolution{}, fmt.Errorf("%w: unrecognised snapshot version %q", ErrRepositoryMetadata, latest)
}
