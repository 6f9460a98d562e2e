package metadata

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/maven-repo/backend"
)

const projectDocument = `<?xml version="1.0" encoding="UTF-8"?>
<metadata xmlns="http://maven.apache.org/METADATA/1.1.0" modelVersion="1.1.0">
  <groupId>org.apache.commons</groupId>
  <artifactId>commons-lang3</artifactId>
  <versioning>
    <latest>3.12.0</latest>
    <release>3.12.0</release>
    <versions>
      <version>3.11</version>
      <version>3.12.0</version>
    </versions>
    <lastUpdated>20210301004956</lastUpdated>
  </versioning>
</metadata>
`

const snapshotDocument = `<?xml version="1.0" encoding="UTF-8"?>
<metadata>
  <groupId>org.example</groupId>
  <artifactId>mylib</artifactId>
  <version>1.0-SNAPSHOT</version>
  <versioning>
    <snapshot>
      <timestamp>20240118.123456</timestamp>
      <buildNumber>3</buildNumber>
    </snapshot>
    <lastUpdated>20240118123456</lastUpdated>
    <snapshotVersions>
      <snapshotVersion>
        <classifier>sources</classifier>
        <extension>jar</extension>
        <value>1.0-20240118.123456-3</value>
        <updated>20240118123456</updated>
      </snapshotVersion>
    </snapshotVersions>
  </versioning>
</metadata>
`

const pluginDocument = `<metadata>
  <plugins>
    <plugin>
      <name>Apache Maven Clean Plugin</name>
      <prefix>clean</prefix>
      <artifactId>maven-clean-plugin</artifactId>
    </plugin>
  </plugins>
</metadata>`

func TestDecodeProject(t *testing.T) {
	m, err := Decode(strings.NewReader(projectDocument))
	require.NoError(t, err)

	require.Equal(t, "1.1.0", m.ModelVersion)
	require.Equal(t, "org.apache.commons", m.GroupID)
	require.Equal(t, "commons-lang3", m.ArtifactID)
	require.Equal(t, []string{"3.11", "3.12.0"}, m.AvailableVersions())
	require.Equal(t, "3.12.0", m.Versioning.Latest)
	require.Equal(t, "3.12.0", m.Versioning.Release)
	require.Nil(t, m.Snapshot())

	ts, ok := m.LastUpdatedTime()
	require.True(t, ok)
	require.Equal(t, time.Date(2021, 3, 1, 0, 49, 56, 0, time.UTC), ts)
}

func TestDecodeSnapshot(t *testing.T) {
	m, err := Decode(strings.NewReader(snapshotDocument))
	require.NoError(t, err)

	require.Equal(t, "1.0-SNAPSHOT", m.Version)
	require.Equal(t, &Snapshot{Timestamp: "20240118.123456", BuildNumber: 3}, m.Snapshot())
	require.True(t, m.Snapshot().IsUnique())
	require.Equal(t, []SnapshotVersion{{
		Classifier: "sources", Extension: "jar", Value: "1.0-20240118.123456-3", Updated: "20240118123456",
	}}, m.Versioning.SnapshotVersions)
}

func TestDecodePlugins(t *testing.T) {
	m, err := Decode(strings.NewReader(pluginDocument))
	require.NoError(t, err)
	require.Equal(t, []Plugin{{Name: "Apache Maven Clean Plugin", Prefix: "clean", ArtifactID: "maven-clean-plugin"}}, m.Plugins)
	require.Nil(t, m.Versioning)
}

func TestDecodeInvalid(t *testing.T) {
	for _, doc := range []string{"", "not xml", "<metadata><groupId>x</metadata>"} {
		_, err := Decode(strings.NewReader(doc))
		require.ErrorIs(t, err, ErrRepositoryMetadata, doc)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, doc := range []string{projectDocument, snapshotDocument, pluginDocument} {
		m, err := Decode(strings.NewReader(doc))
		require.NoError(t, err)

		data, err := Encode(m)
		require.NoError(t, err)
		require.True(t, bytes.HasPrefix(data, []byte(`<?xml version="1.0" encoding="UTF-8"?>`)))

		again, err := Decode(bytes.NewReader(data))
		require.NoError(t, err)
		require.Equal(t, m.GroupID, again.GroupID)
		require.Equal(t, m.ArtifactID, again.ArtifactID)
		require.Equal(t, m.Version, again.Version)
		require.Equal(t, m.Versioning, again.Versioning)
		require.Equal(t, m.Plugins, again.Plugins)

		second, err := Encode(again)
		require.NoError(t, err)
		require.Equal(t, string(data), string(second))
	}
}

func TestEncodeLayout(t *testing.T) {
	m := &Metadata{
		GroupID:    "org.example",
		ArtifactID: "foo",
		Versioning: &Versioning{
			Latest:   "1.1",
			Versions: []string{"1.0", "1.1"},
		},
	}
	data, err := Encode(m)
	require.NoError(t, err)

	s := string(data)
	require.Contains(t, s, "\n  <groupId>org.example</groupId>\n")
	require.Contains(t, s, "\n    <versions>\n      <version>1.0</version>\n      <version>1.1</version>\n    </versions>\n")
	require.NotContains(t, s, "<release>")
	require.NotContains(t, s, "<plugins>")
	require.NotContains(t, s, "<snapshot>")
	require.True(t, strings.HasSuffix(s, "</metadata>\n"))
}

func TestEncodeOmitsEmptySections(t *testing.T) {
	data, err := Encode(&Metadata{
		GroupID:    "org.example",
		ArtifactID: "foo",
		Version:    "1.0-SNAPSHOT",
		Versioning: &Versioning{
			Snapshot:         &Snapshot{},
			Versions:         []string{},
			SnapshotVersions: []SnapshotVersion{},
		},
		Plugins: []Plugin{},
	})
	require.NoError(t, err)

	s := string(data)
	require.NotContains(t, s, "<versions>")
	require.NotContains(t, s, "<snapshotVersions>")
	require.NotContains(t, s, "<plugins>")
	require.Contains(t, s, "<snapshot></snapshot>")

	data, err = Encode(&Metadata{
		GroupID: "org.apache.maven.plugins",
		Plugins: []Plugin{{Name: "Clean", Prefix: "clean", ArtifactID: "maven-clean-plugin"}},
	})
	require.NoError(t, err)
	s = string(data)
	require.Contains(t, s, "<plugins>\n    <plugin>\n      <name>Clean</name>")
	require.NotContains(t, s, "<versioning>")

	again, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "org.apache.maven.plugins", again.GroupID)
	require.Len(t, again.Plugins, 1)
	require.Equal(t, "maven-clean-plugin", again.Plugins[0].ArtifactID)
}

func TestEncodeGenericSnapshotMarker(t *testing.T) {
	m := &Metadata{
		GroupID:    "org.example",
		ArtifactID: "foo",
		Version:    "1.0-SNAPSHOT",
		Versioning: &Versioning{Snapshot: &Snapshot{}},
	}
	data, err := Encode(m)
	require.NoError(t, err)
	require.Contains(t, string(data), "<snapshot></snapshot>")

	again, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.NotNil(t, again.Snapshot())
	require.False(t, again.Snapshot().IsUnique())

	_, err = Encode(nil)
	require.ErrorIs(t, err, ErrRepositoryMetadata)
}

func TestRead(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	_, _, err := Read(ctx, storage, "org/example/foo/maven-metadata.xml")
	require.ErrorIs(t, err, backend.ErrNotFound)

	putFile(t, storage, "org/example/foo/maven-metadata.xml", projectDocument)
	m, raw, err := Read(ctx, storage, "org/example/foo/maven-metadata.xml")
	require.NoError(t, err)
	require.Equal(t, projectDocument, string(raw))
	require.Equal(t, "commons-lang3", m.ArtifactID)

	putFile(t, storage, "org/example/bar/maven-metadata.xml", "<broken")
	_, raw, err = Read(ctx, storage, "org/example/bar/maven-metadata.xml")
	require.ErrorIs(t, err, ErrRepositoryMetadata)
	require.Equal(t, "<broken", string(raw))
}

func TestLastUpdatedHelpers(t *testing.T) {
	m := &Metadata{}
	_, ok := m.LastUpdatedTime()
	require.False(t, ok)

	ts := time.Date(2024, 1, 18, 12, 34, 56, 0, time.FixedZone("AEST", 10*3600))
	m.SetLastUpdated(ts)
	require.Equal(t, "20240118023456", m.Versioning.LastUpdated)

	m.TouchLastUpdated(ts.Add(-time.Hour))
	require.Equal(t, "20240118023456", m.Versioning.LastUpdated)
	m.TouchLastUpdated(ts.Add(time.Hour))
	require.Equal(t, "20240118033456", m.Versioning.LastUpdated)
	m.TouchLastUpdated(time.Time{})
	require.Equal(t, "20240118033456", m.Versioning.LastUpdated)

	m.SetLastUpdated(time.Time{})
	require.Empty(t, m.Versioning.LastUpdated)

	m.Versioning.LastUpdated = "yesterday"
	_, ok = m.LastUpdatedTime()
	require.False(t, ok)
}

func TestClone(t *testing.T) {
	m, err := Decode(strings.NewReader(snapshotDocument))
	require.NoError(t, err)

	c := m.Clone()
	c.Versioning.Snapshot.BuildNumber = 99
	c.Versioning.SnapshotVersions[0].Value = "changed"
	c.AddVersion("2.0")

	require.Equal(t, 3, m.Versioning.Snapshot.BuildNumber)
	require.Equal(t, "1.0-20240118.123456-3", m.Versioning.SnapshotVersions[0].Value)
	require.Empty(t, m.AvailableVersions())
	require.Nil(t, (*Metadata)(nil).Clone())
}
