// Package metadata reads, merges and rewrites maven-metadata.xml documents.
//
// Three kinds of document live in a repository:
//
//   - project metadata at <group>/<artifact>/maven-metadata.xml listing
//     every available version together with latest and release.
//   - version metadata at <group>/<artifact>/<version>/maven-metadata.xml
//     describing the newest build of a snapshot.
//   - group metadata at <group>/maven-metadata.xml listing plugin prefixes.
//
// Proxied repositories may contribute their own copy of each document as a
// sibling named maven-metadata-<proxyId>.xml. Tools merges those variants
// into the canonical document and refreshes its checksum side-files.
package metadata

import (
	"encoding/xml"
	"slices"
	"time"
)

// LastUpdatedLayout is the layout of the lastUpdated element, always UTC.
const LastUpdatedLayout = "20060102150405"

// Metadata is a maven-metadata.xml document.
type Metadata struct {
	XMLName      xml.Name    `xml:"metadata"`
	ModelVersion string      `xml:"modelVersion,attr,omitempty"`
	GroupID      string      `xml:"groupId,omitempty"`
	ArtifactID   string      `xml:"artifactId,omitempty"`
	Version      string      `xml:"version,omitempty"`
	Versioning   *Versioning `xml:"versioning,omitempty"`
	Plugins      []Plugin    `xml:"plugins>plugin,omitempty"`
}

// Versioning holds the version related elements of a document.
type Versioning struct {
	Latest           string            `xml:"latest,omitempty"`
	Release          string            `xml:"release,omitempty"`
	Snapshot         *Snapshot         `xml:"snapshot,omitempty"`
	Versions         []string          `xml:"versions>version,omitempty"`
	LastUpdated      string            `xml:"lastUpdated,omitempty"`
	SnapshotVersions []SnapshotVersion `xml:"snapshotVersions>snapshotVersion,omitempty"`
}

// Snapshot describes the newest build of a snapshot. A snapshot with no
// timestamp is the marker recorded for non-unique snapshots.
type Snapshot struct {
	Timestamp   string `xml:"timestamp,omitempty"`
	BuildNumber int    `xml:"buildNumber,omitempty"`
}

// IsUnique reports whether the snapshot identifies a timestamped build.
func (s *Snapshot) IsUnique() bool {
	return s != nil && s.Timestamp != "" && s.BuildNumber > 0
}

// SnapshotVersion records the file published for one classifier and
// extension of a unique snapshot build.
type SnapshotVersion struct {
	Classifier string `xml:"classifier,omitempty"`
	Extension  string `xml:"extension"`
	Value      string `xml:"value"`
	Updated    string `xml:"updated,omitempty"`
}

func (sv SnapshotVersion) key() string {
	return sv.Classifier + ":" + sv.Extension
}

// Plugin maps a plugin prefix to its artifactId in group metadata.
type Plugin struct {
	Name       string `xml:"name,omitempty"`
	Prefix     string `xml:"prefix"`
	ArtifactID string `xml:"artifactId"`
}

func (p Plugin) key() string {
	return p.Prefix + ":" + p.ArtifactID
}

// versioning returns the versioning block, creating it when absent.
func (m *Metadata) versioning() *Versioning {
	if m.Versioning == nil {
		m.Versioning = &Versioning{}
	}
	return m.Versioning
}

// AvailableVersions returns the listed versions.
func (m *Metadata) AvailableVersions() []string {
	if m.Versioning == nil {
		return nil
	}
	return m.Versioning.Versions
}

// HasVersion reports whether v is listed.
func (m *Metadata) HasVersion(v string) bool {
	return slices.Contains(m.AvailableVersions(), v)
}

// AddVersion appends v when it is not listed yet.
func (m *Metadata) AddVersion(v string) bool {
	if m.HasVersion(v) {
		return false
	}
	vs := m.versioning()
	vs.Versions = append(vs.Versions, v)
	return true
}

// Snapshot returns the snapshot descriptor, or nil.
func (m *Metadata) Snapshot() *Snapshot {
	if m.Versioning == nil {
		return nil
	}
	return m.Versioning.Snapshot
}

// LastUpdatedTime parses lastUpdated. The boolean is false when the value is
// missing or malformed.
func (m *Metadata) LastUpdatedTime() (time.Time, bool) {
	if m.Versioning == nil {
		return time.Time{}, false
	}
	return parseLastUpdated(m.Versioning.LastUpdated)
}

// SetLastUpdated stores t in UTC. A zero time clears the element.
func (m *Metadata) SetLastUpdated(t time.Time) {
	if t.IsZero() {
		if m.Versioning != nil {
			m.Versioning.LastUpdated = ""
		}
		return
	}
	m.versioning().LastUpdated = t.UTC().Format(LastUpdatedLayout)
}

// TouchLastUpdated moves lastUpdated forward to t, never backwards.
func (m *Metadata) TouchLastUpdated(t time.Time) {
	if t.IsZero() {
		return
	}
	if cur, ok := m.LastUpdatedTime(); ok && !t.After(cur) {
		return
	}
	m.SetLastUpdated(t)
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := *m
	out.Plugins = slices.Clone(m.Plugins)
	if m.Versioning != nil {
		v := *m.Versioning
		v.Versions = slices.Clone(m.Versioning.Versions)
		v.SnapshotVersions = slices.Clone(m.Versioning.SnapshotVersions)
		if m.Versioning.Snapshot != nil {
			s := *m.Versioning.Snapshot
			v.Snapshot = &s
		}
		out.Versioning = &v
	}
	return &out
}

func parseLastUpdated(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(LastUpdatedLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
