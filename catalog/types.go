// Package catalog persists a record of every metadata document the
// repository tools have written, keyed by repository and path.
package catalog

import (
	"errors"
	"time"

	mavenrepo "github.com/wolfeidau/maven-repo"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Record describes a metadata document as last written.
type Record struct {
	Repository  string                `json:"repository"`
	Path        string                `json:"path"`
	Kind        string                `json:"kind,omitempty"`
	GroupID     string                `json:"group_id,omitempty"`
	ArtifactID  string                `json:"artifact_id,omitempty"`
	Version     string                `json:"version,omitempty"`
	Latest      string                `json:"latest,omitempty"`
	Release     string                `json:"release,omitempty"`
	LastUpdated string                `json:"last_updated,omitempty"`
	Versions    []string              `json:"versions,omitempty"`
	Snapshot    string                `json:"snapshot,omitempty"` // resolved build of a unique snapshot
	Fingerprint mavenrepo.Fingerprint `json:"fingerprint"`
	Checksums   map[string]string     `json:"checksums,omitempty"` // side-file extension -> hex digest
	UpdatedAt   time.Time             `json:"updated_at"`
}
