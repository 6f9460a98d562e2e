package metadata

import "errors"

var (
	// ErrRepositoryMetadata is returned for metadata that cannot be merged,
	// decoded or resolved, including snapshot versions of unknown shape.
	ErrRepositoryMetadata = errors.New("repository metadata error")

	// ErrContentNotFound is returned when a snapshot has no candidate
	// versions on disk or in any proxy variant.
	ErrContentNotFound = errors.New("content not found")
)
