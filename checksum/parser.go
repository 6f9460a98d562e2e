package checksum

import (
	"path"
	"regexp"
	"strings"
)

// Format is the recognised shape of a checksum side-file.
type Format int

const (
	UnknownFormat Format = iota
	GNUFormat
	BSDFormat
)

func (f Format) String() string {
	switch f {
	case GNUFormat:
		return "gnu"
	case BSDFormat:
		return "bsd"
	default:
		return "unknown"
	}
}

// DefaultMetadataReferencePattern matches the file names a metadata checksum
// may legitimately reference: the canonical document and its proxy variants.
const DefaultMetadataReferencePattern = `^maven-metadata(-[^/\s]+)?\.xml$`

var gnuPattern = regexp.MustCompile(`^([a-fA-F0-9]+)\s+\*?(.+)$`)

// FileContent is the parsed content of a checksum side-file.
//
// When Format is UnknownFormat, Checksum holds the raw trimmed text and
// FileReference is empty.
type FileContent struct {
	Checksum      string
	FileReference string
	Format        Format
}

// FormatMatch reports whether the content matched a known format.
func (c FileContent) FormatMatch() bool {
	return c.Format != UnknownFormat
}

// ParseContent parses side-file text for the given algorithm. BSD style
// "SHA1 (name) = hex" is tried before GNU style "hex  name".
func ParseContent(alg Algorithm, text string) FileContent {
	normalized := strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text))

	if m := alg.info().bsd.FindStringSubmatch(normalized); m != nil {
		return FileContent{Checksum: m[2], FileReference: m[1], Format: BSDFormat}
	}
	if m := gnuPattern.FindStringSubmatch(normalized); m != nil {
		return FileContent{Checksum: m[1], FileReference: strings.TrimSpace(m[2]), Format: GNUFormat}
	}
	return FileContent{Checksum: normalized}
}

// FormatGNU renders side-file content in the GNU coreutils shape. This is the
// only shape written by this package.
func FormatGNU(hexDigest, name string) string {
	return hexDigest + "  " + name
}

// FormatBSD renders side-file content in the BSD shape.
func FormatBSD(alg Algorithm, hexDigest, name string) string {
	return alg.String() + " (" + name + ") = " + hexDigest
}

// isHexDigest reports whether s is a well-formed hex digest for alg.
func isHexDigest(alg Algorithm, s string) bool {
	if len(s) != alg.HexLen() {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// ReferencePolicy decides whether the file name recorded inside a checksum
// side-file refers to the file being checked.
type ReferencePolicy interface {
	Matches(key, reference string) bool
}

// StrictReferences accepts "-", the exact base name, or any path ending in
// "/" followed by the base name.
type StrictReferences struct{}

func (StrictReferences) Matches(key, reference string) bool {
	name := path.Base(key)
	reference = strings.ReplaceAll(reference, `\`, "/")
	return reference == "-" || reference == name || strings.HasSuffix(reference, "/"+name)
}

// MetadataReferences behaves like StrictReferences, but for metadata
// documents also accepts any reference naming a metadata document, so a
// checksum copied from a proxy variant validates against the canonical file.
type MetadataReferences struct {
	pattern *regexp.Regexp
}

// NewMetadataReferences compiles pattern, which is matched against the base
// names of both the checked key and the reference.
func NewMetadataReferences(pattern string) (*MetadataReferences, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &MetadataReferences{pattern: re}, nil
}

// DefaultReferencePolicy returns the metadata-relaxed policy using
// DefaultMetadataReferencePattern.
func DefaultReferencePolicy() ReferencePolicy {
	return &MetadataReferences{pattern: regexp.MustCompile(DefaultMetadataReferencePattern)}
}

func (m *MetadataReferences) Matches(key, reference string) bool {
	if (StrictReferences{}).Matches(key, reference) {
		return true
	}
	if !m.pattern.MatchString(path.Base(key)) {
		return false
	}
	reference = strings.ReplaceAll(reference, `\`, "/")
	return m.pattern.MatchString(path.Base(reference))
}
