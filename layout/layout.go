package layout

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/wolfeidau/maven-repo/checksum"
	"github.com/wolfeidau/maven-repo/version"
)

// MetadataFilename is the canonical metadata document name.
const MetadataFilename = "maven-metadata.xml"

// ErrLayout is returned for paths that do not fit the repository layout.
var ErrLayout = errors.New("invalid repository layout")

var (
	proxyMetadataPattern = regexp.MustCompile(`^maven-metadata-([^/\s]+)\.xml$`)
	uniqueTimestampTail  = regexp.MustCompile(`^[0-9]{8}\.[0-9]{6}-[0-9]+`)
)

// Layout maps references to repository paths and back.
type Layout interface {
	ProjectPath(ref ProjectReference) string
	VersionedPath(ref VersionedReference) string
	ArtifactPath(ref ArtifactReference) string
	ToProjectReference(p string) (ProjectReference, error)
	ToVersionedReference(p string) (VersionedReference, error)
	ToArtifactReference(p string) (ArtifactReference, error)
}

// Default is the Maven 2+ layout: group segments, artifactId, base version.
type Default struct{}

var _ Layout = Default{}

// GroupPath converts a groupId to its path form.
func GroupPath(groupID string) string {
	return strings.ReplaceAll(groupID, ".", "/")
}

// GroupID converts a group path back to a groupId.
func GroupID(groupPath string) string {
	return strings.ReplaceAll(strings.Trim(groupPath, "/"), "/", ".")
}

// ProjectDir returns the directory holding all versions of a project.
func ProjectDir(ref ProjectReference) string {
	return GroupPath(ref.GroupID) + "/" + ref.ArtifactID
}

// VersionDir returns the directory of one version. Unique snapshots live in
// the directory of their generic snapshot.
func VersionDir(ref VersionedReference) string {
	return ProjectDir(ref.Project()) + "/" + version.BaseVersion(ref.Version)
}

// ProjectPath returns the project-level metadata path. A reference without
// an artifactId addresses group-level metadata.
func (Default) ProjectPath(ref ProjectReference) string {
	if ref.ArtifactID == "" {
		return GroupPath(ref.GroupID) + "/" + MetadataFilename
	}
	return ProjectDir(ref) + "/" + MetadataFilename
}

// VersionedPath returns the version-level metadata path.
func (Default) VersionedPath(ref VersionedReference) string {
	return VersionDir(ref) + "/" + MetadataFilename
}

// ArtifactPath returns the path of an artifact file.
func (Default) ArtifactPath(ref ArtifactReference) string {
	return VersionDir(ref.Versioned()) + "/" + ref.Filename()
}

// ToProjectReference parses a project-level metadata path such as
// "org/example/foo/maven-metadata.xml".
func (Default) ToProjectReference(p string) (ProjectReference, error) {
	parts, err := metadataSegments(p, 2)
	if err != nil {
		return ProjectReference{}, err
	}
	n := len(parts)
	return ProjectReference{
		GroupID:    strings.Join(parts[:n-1], "."),
		ArtifactID: parts[n-1],
	}, nil
}

// ToVersionedReference parses a version-level metadata path such as
// "org/example/foo/1.0-SNAPSHOT/maven-metadata.xml". The version segment
// must contain a digit.
func (Default) ToVersionedReference(p string) (VersionedReference, error) {
	parts, err := metadataSegments(p, 3)
	if err != nil {
		return VersionedReference{}, err
	}
	n := len(parts)
	v := parts[n-1]
	if !version.HasNumber(v) {
		return VersionedReference{}, fmt.Errorf("%w: version segment %q of %q has no number", ErrLayout, v, p)
	}
	return VersionedReference{
		GroupID:    strings.Join(parts[:n-2], "."),
		ArtifactID: parts[n-2],
		Version:    v,
	}, nil
}

// ToArtifactReference parses the path of an artifact file.
func (Default) ToArtifactReference(p string) (ArtifactReference, error) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 4 {
		return ArtifactReference{}, fmt.Errorf("%w: %q is too short for an artifact path", ErrLayout, p)
	}
	n := len(parts)
	ref, err := ParseArtifactFilename(parts[n-3], parts[n-2], parts[n-1])
	if err != nil {
		return ArtifactReference{}, err
	}
	ref.GroupID = strings.Join(parts[:n-3], ".")
	return ref, nil
}

// metadataSegments returns the directory segments of a canonical metadata
// path, requiring at least min of them.
func metadataSegments(p string, min int) ([]string, error) {
	p = strings.Trim(p, "/")
	if path.Base(p) != MetadataFilename {
		return nil, fmt.Errorf("%w: %q is not a %s path", ErrLayout, p, MetadataFilename)
	}
	dir := path.Dir(p)
	if dir == "." {
		return nil, fmt.Errorf("%w: %q has no directory", ErrLayout, p)
	}
	parts := strings.Split(dir, "/")
	if len(parts) < min {
		return nil, fmt.Errorf("%w: %q is too short", ErrLayout, p)
	}
	return parts, nil
}

// ProxyMetadataFilename returns the name of the metadata variant
// contributed by a proxy.
func ProxyMetadataFilename(proxyID string) string {
	return "maven-metadata-" + proxyID + ".xml"
}

// ProxyMetadataPath returns the sibling path of the proxy variant of the
// metadata document at p.
func ProxyMetadataPath(p, proxyID string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ProxyMetadataFilename(proxyID)
	}
	return dir + "/" + ProxyMetadataFilename(proxyID)
}

// IsMetadataFile reports whether name is a canonical or proxy metadata
// document.
func IsMetadataFile(name string) bool {
	name = path.Base(name)
	return name == MetadataFilename || proxyMetadataPattern.MatchString(name)
}

// ProxyID returns the proxy id of a proxy metadata document name.
func ProxyID(name string) (string, bool) {
	m := proxyMetadataPattern.FindStringSubmatch(path.Base(name))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseArtifactFilename parses a file name found in the directory of
// dirVersion. For snapshot directories the returned Version is the unique
// snapshot version when the file carries a timestamp.
//
// Example filenames:
//   - commons-lang3-3.12.0.jar
//   - commons-lang3-3.12.0-sources.jar
//   - mylib-1.0-SNAPSHOT.pom
//   - mylib-1.0-20240118.123456-1.jar
func ParseArtifactFilename(artifactID, dirVersion, filename string) (ArtifactReference, error) {
	ref := ArtifactReference{ArtifactID: artifactID, Version: dirVersion}

	if checksum.IsChecksumFile(filename) || IsMetadataFile(filename) {
		return ref, fmt.Errorf("%w: %s is not an artifact", ErrLayout, filename)
	}

	prefix := artifactID + "-" + dirVersion
	var remainder string
	switch {
	case strings.HasPrefix(filename, prefix):
		remainder = strings.TrimPrefix(filename, prefix)
	case version.IsGenericSnapshot(dirVersion):
		base := strings.TrimSuffix(strings.TrimSuffix(dirVersion, version.SnapshotSuffix), "-")
		snapshotPrefix := artifactID + "-" + base + "-"
		if !strings.HasPrefix(filename, snapshotPrefix) {
			return ref, fmt.Errorf("%w: filename does not match expected pattern: %s", ErrLayout, filename)
		}
		rest := strings.TrimPrefix(filename, snapshotPrefix)
		tail := uniqueTimestampTail.FindString(rest)
		if tail == "" {
			return ref, fmt.Errorf("%w: filename does not match expected pattern: %s", ErrLayout, filename)
		}
		ref.Version = base + "-" + tail
		remainder = strings.TrimPrefix(rest, tail)
	default:
		return ref, fmt.Errorf("%w: filename does not match expected pattern: %s", ErrLayout, filename)
	}

	switch {
	case strings.HasPrefix(remainder, "-"):
		remainder = strings.TrimPrefix(remainder, "-")
		lastDot := strings.LastIndex(remainder, ".")
		if lastDot <= 0 {
			return ref, fmt.Errorf("%w: invalid classifier/extension format: %s", ErrLayout, filename)
		}
		ref.Classifier = remainder[:lastDot]
		ref.Extension = remainder[lastDot+1:]
	case strings.HasPrefix(remainder, "."):
		ref.Extension = strings.TrimPrefix(remainder, ".")
	default:
		return ref, fmt.Errorf("%w: invalid filename format: %s", ErrLayout, filename)
	}

	if ref.Extension == "" {
		return ref, fmt.Errorf("%w: missing extension: %s", ErrLayout, filename)
	}
	return ref, nil
}
