// Package layout translates between Maven coordinates and repository paths
// in the default (Maven 2+) repository layout.
package layout

import (
	"fmt"
	"strings"
)

// ProjectReference identifies a project: all versions of one artifact.
type ProjectReference struct {
	GroupID    string
	ArtifactID string
}

func (p ProjectReference) String() string {
	return p.GroupID + ":" + p.ArtifactID
}

// VersionedReference identifies one version of a project.
type VersionedReference struct {
	GroupID    string
	ArtifactID string
	Version    string
}

// Project drops the version.
func (v VersionedReference) Project() ProjectReference {
	return ProjectReference{GroupID: v.GroupID, ArtifactID: v.ArtifactID}
}

func (v VersionedReference) String() string {
	return v.GroupID + ":" + v.ArtifactID + ":" + v.Version
}

// ArtifactReference identifies a single file of a version.
type ArtifactReference struct {
	GroupID    string
	ArtifactID string
	Version    string
	Classifier string
	Extension  string
}

// Versioned drops the classifier and extension.
func (a ArtifactReference) Versioned() VersionedReference {
	return VersionedReference{GroupID: a.GroupID, ArtifactID: a.ArtifactID, Version: a.Version}
}

// Filename returns the standard Maven filename for this artifact.
func (a ArtifactReference) Filename() string {
	name := a.ArtifactID + "-" + a.Version
	if a.Classifier != "" {
		name += "-" + a.Classifier
	}
	return name + "." + a.Extension
}

func (a ArtifactReference) String() string {
	s := a.GroupID + ":" + a.ArtifactID + ":" + a.Version
	if a.Classifier != "" {
		s += ":" + a.Classifier
	}
	return s + ":" + a.Extension
}

// ParseProjectReference parses "groupId:artifactId".
func ParseProjectReference(s string) (ProjectReference, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ProjectReference{}, fmt.Errorf("%w: expected groupId:artifactId, got %q", ErrLayout, s)
	}
	return ProjectReference{GroupID: parts[0], ArtifactID: parts[1]}, nil
}

// ParseVersionedReference parses "groupId:artifactId:version".
func ParseVersionedReference(s string) (VersionedReference, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return VersionedReference{}, fmt.Errorf("%w: expected groupId:artifactId:version, got %q", ErrLayout, s)
	}
	return VersionedReference{GroupID: parts[0], ArtifactID: parts[1], Version: parts[2]}, nil
}
