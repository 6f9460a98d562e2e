package metadata

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/wolfeidau/maven-repo/version"
)

// Merge combines two documents into a new one. Scalars come from main unless
// blank there. Versions, plugins and snapshotVersions are unioned with the
// entries of main first. The later snapshot and the later lastUpdated win.
// Neither input is modified.
func Merge(main, source *Metadata) (*Metadata, error) {
	if main == nil || source == nil {
		return nil, fmt.Errorf("%w: cannot merge nil metadata", ErrRepositoryMetadata)
	}

	out := &Metadata{
		ModelVersion: pick(main.ModelVersion, source.ModelVersion),
		GroupID:      pick(main.GroupID, source.GroupID),
		ArtifactID:   pick(main.ArtifactID, source.ArtifactID),
		Version:      pick(main.Version, source.Version),
		Plugins:      mergePlugins(main.Plugins, source.Plugins),
	}

	mv, sv := main.Versioning, source.Versioning
	if mv == nil && sv == nil {
		return out, nil
	}
	if mv == nil {
		mv = &Versioning{}
	}
	if sv == nil {
		sv = &Versioning{}
	}

	out.Versioning = &Versioning{
		Latest:           pick(mv.Latest, sv.Latest),
		Release:          pick(mv.Release, sv.Release),
		Snapshot:         mergeSnapshot(mv.Snapshot, sv.Snapshot),
		Versions:         mergeVersions(mv.Versions, sv.Versions),
		LastUpdated:      mergeLastUpdated(mv.LastUpdated, sv.LastUpdated),
		SnapshotVersions: mergeSnapshotVersions(mv.SnapshotVersions, sv.SnapshotVersions),
	}
	return out, nil
}

// MergeAll folds docs left to right with Merge. Nil documents are skipped;
// when every document is nil the result is nil.
func MergeAll(docs ...*Metadata) (*Metadata, error) {
	var out *Metadata
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if out == nil {
			out = doc.Clone()
			continue
		}
		merged, err := Merge(out, doc)
		if err != nil {
			return nil, err
		}
		out = merged
	}
	return out, nil
}

// RefreshLatestRelease sorts the versions in Maven order and recomputes
// latest and release from them. Release is cleared when every version is a
// snapshot.
func (m *Metadata) RefreshLatestRelease() {
	versions := m.AvailableVersions()
	if len(versions) == 0 {
		return
	}
	vs := m.versioning()
	version.Sort(vs.Versions)
	vs.Latest = vs.Versions[len(vs.Versions)-1]
	vs.Release = ""
	for i := len(vs.Versions) - 1; i >= 0; i-- {
		if !version.IsSnapshot(vs.Versions[i]) {
			vs.Release = vs.Versions[i]
			break
		}
	}
}

func pick(main, source string) string {
	if strings.TrimSpace(main) != "" {
		return main
	}
	return source
}

func mergeVersions(main, source []string) []string {
	if len(main) == 0 && len(source) == 0 {
		return nil
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(main)+len(source))
	for _, list := range [][]string{main, source} {
		for _, v := range list {
			if seen.Add(v) {
				out = append(out, v)
			}
		}
	}
	return out
}

func mergePlugins(main, source []Plugin) []Plugin {
	if len(main) == 0 && len(source) == 0 {
		return nil
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]Plugin, 0, len(main)+len(source))
	for _, list := range [][]Plugin{main, source} {
		for _, p := range list {
			if seen.Add(p.key()) {
				out = append(out, p)
			}
		}
	}
	return out
}

// mergeSnapshot keeps the snapshot with the later timestamp, then the higher
// build number. Ties keep main.
func mergeSnapshot(main, source *Snapshot) *Snapshot {
	switch {
	case main == nil && source == nil:
		return nil
	case source == nil:
		s := *main
		return &s
	case main == nil:
		s := *source
		return &s
	}
	winner := main
	if source.Timestamp > main.Timestamp ||
		(source.Timestamp == main.Timestamp && source.BuildNumber > main.BuildNumber) {
		winner = source
	}
	s := *winner
	return &s
}

// mergeLastUpdated returns the later of two lastUpdated values. Values that
// do not parse are ignored; when neither parses the result is empty.
func mergeLastUpdated(main, source string) string {
	mt, mok := parseLastUpdated(main)
	st, sok := parseLastUpdated(source)
	switch {
	case mok && sok:
		if st.After(mt) {
			return source
		}
		return main
	case mok:
		return main
	case sok:
		return source
	}
	return ""
}

// mergeSnapshotVersions unions entries by classifier and extension, keeping
// the entry with the later updated value.
func mergeSnapshotVersions(main, source []SnapshotVersion) []SnapshotVersion {
	if len(main) == 0 && len(source) == 0 {
		return nil
	}
	index := make(map[string]int, len(main)+len(source))
	out := make([]SnapshotVersion, 0, len(main)+len(source))
	for _, list := range [][]SnapshotVersion{main, source} {
		for _, sv := range list {
			i, ok := index[sv.key()]
			if !ok {
				index[sv.key()] = len(out)
				out = append(out, sv)
				continue
			}
			if sv.Updated > out[i].Updated {
				out[i] = sv
			}
		}
	}
	return out
}
