package metadata

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/wolfeidau/maven-repo/backend"
)

// maxDocumentSize bounds how much of a metadata document is read.
const maxDocumentSize = 16 << 20

// Decode parses a metadata document.
func Decode(r io.Reader) (*Metadata, error) {
	var m Metadata
	dec := xml.NewDecoder(io.LimitReader(r, maxDocumentSize))
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %w", ErrRepositoryMetadata, err)
	}
	return &m, nil
}

// Encode renders m as an indented document with an XML declaration.
func Encode(m *Metadata) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: cannot encode nil metadata", ErrRepositoryMetadata)
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// The list sections are encoded through pointer wrappers because
// encoding/xml writes the parent of an "a>b,omitempty" field even when the
// slice is empty.
type metadataXML struct {
	ModelVersion string      `xml:"modelVersion,attr,omitempty"`
	GroupID      string      `xml:"groupId,omitempty"`
	ArtifactID   string      `xml:"artifactId,omitempty"`
	Version      string      `xml:"version,omitempty"`
	Versioning   *Versioning `xml:"versioning,omitempty"`
	Plugins      *pluginList `xml:"plugins,omitempty"`
}

type pluginList struct {
	Plugin []Plugin `xml:"plugin"`
}

type versioningXML struct {
	Latest           string               `xml:"latest,omitempty"`
	Release          string               `xml:"release,omitempty"`
	Snapshot         *Snapshot            `xml:"snapshot,omitempty"`
	Versions         *versionList         `xml:"versions,omitempty"`
	LastUpdated      string               `xml:"lastUpdated,omitempty"`
	SnapshotVersions *snapshotVersionList `xml:"snapshotVersions,omitempty"`
}

type versionList struct {
	Version []string `xml:"version"`
}

type snapshotVersionList struct {
	SnapshotVersion []SnapshotVersion `xml:"snapshotVersion"`
}

// MarshalXML encodes m, leaving out empty sections.
func (m Metadata) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "metadata"}
	doc := metadataXML{
		ModelVersion: m.ModelVersion,
		GroupID:      m.GroupID,
		ArtifactID:   m.ArtifactID,
		Version:      m.Version,
		Versioning:   m.Versioning,
	}
	if len(m.Plugins) > 0 {
		doc.Plugins = &pluginList{Plugin: m.Plugins}
	}
	return e.EncodeElement(doc, start)
}

// MarshalXML encodes v, leaving out empty sections.
func (v Versioning) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	doc := versioningXML{
		Latest:      v.Latest,
		Release:     v.Release,
		Snapshot:    v.Snapshot,
		LastUpdated: v.LastUpdated,
	}
	if len(v.Versions) > 0 {
		doc.Versions = &versionList{Version: v.Versions}
	}
	if len(v.SnapshotVersions) > 0 {
		doc.SnapshotVersions = &snapshotVersionList{SnapshotVersion: v.SnapshotVersions}
	}
	return e.EncodeElement(doc, start)
}

// Read loads and decodes the document at key. It returns the raw bytes
// alongside the document. A missing key yields backend.ErrNotFound.
func Read(ctx context.Context, storage backend.Backend, key string) (*Metadata, []byte, error) {
	rc, err := storage.Read(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rc.Close() }()

	raw, err := io.ReadAll(io.LimitReader(rc, maxDocumentSize))
	if err != nil {
		return nil, nil, fmt.Errorf("reading metadata %s: %w", key, err)
	}
	m, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, raw, fmt.Errorf("%s: %w", key, err)
	}
	return m, raw, nil
}
