package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	mavenrepo "github.com/wolfeidau/maven-repo"
	"github.com/wolfeidau/maven-repo/backend"
	"github.com/wolfeidau/maven-repo/checksum"
	"github.com/wolfeidau/maven-repo/layout"
	"github.com/wolfeidau/maven-repo/telemetry"
	"github.com/wolfeidau/maven-repo/version"
)

// ProxyProvider lists the proxies whose metadata variants are merged into a
// repository's documents. It is queried on every update.
type ProxyProvider interface {
	ProxyIDs(repositoryID string) []string
}

// StaticProxies maps repository ids to proxy ids.
type StaticProxies map[string][]string

// ProxyIDs implements ProxyProvider.
func (s StaticProxies) ProxyIDs(repositoryID string) []string {
	return slices.Clone(s[repositoryID])
}

// Repository is a managed repository and the storage holding its files.
type Repository struct {
	ID      string
	Storage backend.Backend
}

// Tools updates metadata documents and their checksum side-files.
//
// Tools does not serialise writers: callers must ensure at most one update
// runs per metadata path at a time.
type Tools struct {
	logger       *slog.Logger
	proxies      ProxyProvider
	algorithms   []checksum.Algorithm
	layout       layout.Layout
	checksumOpts []checksum.Option
}

// Option configures Tools.
type Option func(*Tools)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tools) {
		t.logger = logger
	}
}

// WithProxies sets the proxy provider.
func WithProxies(p ProxyProvider) Option {
	return func(t *Tools) {
		if p != nil {
			t.proxies = p
		}
	}
}

// WithAlgorithms sets the checksum algorithms refreshed after each write.
func WithAlgorithms(algs ...checksum.Algorithm) Option {
	return func(t *Tools) {
		t.algorithms = slices.Clone(algs)
	}
}

// WithLayout sets the repository layout.
func WithLayout(l layout.Layout) Option {
	return func(t *Tools) {
		if l != nil {
			t.layout = l
		}
	}
}

// WithReferencePolicy sets the policy used when checking file references
// inside existing metadata side-files.
func WithReferencePolicy(policy checksum.ReferencePolicy) Option {
	return func(t *Tools) {
		t.checksumOpts = append(t.checksumOpts, checksum.WithReferencePolicy(policy))
	}
}

// WithChecksumOptions appends options for the side-file refresh.
func WithChecksumOptions(opts ...checksum.Option) Option {
	return func(t *Tools) {
		t.checksumOpts = append(t.checksumOpts, opts...)
	}
}

// NewTools returns Tools writing SHA1 and MD5 side-files in the default
// layout with no proxies.
func NewTools(opts ...Option) *Tools {
	t := &Tools{
		logger:     slog.Default(),
		proxies:    StaticProxies(nil),
		algorithms: slices.Clone(checksum.DefaultAlgorithms),
		layout:     layout.Default{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Algorithms returns the algorithms refreshed after a write.
func (t *Tools) Algorithms() []checksum.Algorithm {
	return slices.Clone(t.algorithms)
}

// ChecksumOptions returns the options side-files are refreshed with.
func (t *Tools) ChecksumOptions() []checksum.Option {
	return slices.Clone(t.checksumOpts)
}

// Layout returns the repository layout.
func (t *Tools) Layout() layout.Layout {
	return t.layout
}

// ProxyMetadataPath returns the path of proxyID's variant of the document
// at p.
func (t *Tools) ProxyMetadataPath(proxyID, p string) string {
	return layout.ProxyMetadataPath(p, proxyID)
}

// ReadProxyMetadata reads proxyID's variant of the document at p. A missing
// variant yields nil. An unreadable one is logged and also yields nil.
func (t *Tools) ReadProxyMetadata(ctx context.Context, repo Repository, p, proxyID string) *Metadata {
	key := t.ProxyMetadataPath(proxyID, p)
	m, _, err := Read(ctx, repo.Storage, key)
	switch {
	case err == nil:
		telemetry.RecordProxyVariant(ctx, "found")
		return m
	case errors.Is(err, backend.ErrNotFound):
		telemetry.RecordProxyVariant(ctx, "missing")
		return nil
	default:
		telemetry.RecordProxyVariant(ctx, "invalid")
		t.logger.Warn("skipping unreadable proxy metadata",
			"repository", repo.ID, "proxy", proxyID, "path", key, "error", err)
		return nil
	}
}

// UpdateMetadata regenerates the document at p from the existing document,
// every proxy variant and the version directories next to it, then writes it
// and refreshes its side-files. When there is nothing to build a document
// from, nothing is written and nil is returned.
func (t *Tools) UpdateMetadata(ctx context.Context, repo Repository, p string) (_ *Metadata, err error) {
	start := time.Now()
	defer func() {
		telemetry.RecordMetadataUpdate(ctx, "general", telemetry.OutcomeFromError(err), time.Since(start))
	}()

	key, err := backend.CleanKey(p)
	if err != nil {
		return nil, fmt.Errorf("metadata path %q: %w", p, err)
	}
	logger := t.logger.With("repository", repo.ID, "path", key)

	existing, raw, err := t.readExisting(ctx, repo, key, logger)
	if err != nil {
		return nil, err
	}
	proxies := t.readProxyVariants(ctx, repo, key)

	merged, err := MergeAll(append([]*Metadata{existing}, proxies...)...)
	if err != nil {
		return nil, err
	}
	found := merged != nil
	if merged == nil {
		merged = &Metadata{}
	}

	healed, err := t.selfHeal(ctx, repo, key, merged)
	if err != nil {
		return nil, err
	}
	if !found && len(healed) == 0 {
		logger.Debug("no metadata to update")
		return nil, nil
	}
	if len(healed) > 0 {
		logger.Info("added versions found on disk", "versions", healed)
	}

	t.fillIdentity(key, merged)
	merged.RefreshLatestRelease()

	if err := t.commit(ctx, repo, key, merged, raw, logger); err != nil {
		return nil, err
	}
	return merged, nil
}

// UpdateVersionMetadata regenerates the version-level document of ref.
//
// For snapshots the newest build is chosen from the artifacts in the version
// directory and the snapshot descriptors of every proxy variant. A unique
// build is recorded with its timestamp and build number, a generic snapshot
// with an empty marker. Any other shape fails with ErrRepositoryMetadata and
// an empty candidate set with ErrContentNotFound. Release versions are
// recorded as they are.
func (t *Tools) UpdateVersionMetadata(ctx context.Context, repo Repository, ref layout.VersionedReference) (_ *Metadata, err error) {
	start := time.Now()
	kind := "release"
	if version.IsSnapshot(ref.Version) {
		kind = "snapshot"
	}
	defer func() {
		telemetry.RecordMetadataUpdate(ctx, kind, telemetry.OutcomeFromError(err), time.Since(start))
	}()

	key := t.layout.VersionedPath(ref)
	logger := t.logger.With("repository", repo.ID, "path", key, "version", ref.Version)

	existing, raw, err := t.readExisting(ctx, repo, key, logger)
	if err != nil {
		return nil, err
	}
	proxies := t.readProxyVariants(ctx, repo, key)

	merged, err := MergeAll(append([]*Metadata{existing}, proxies...)...)
	if err != nil {
		return nil, err
	}
	if merged == nil {
		merged = &Metadata{}
	}
	merged.GroupID = ref.GroupID
	merged.ArtifactID = ref.ArtifactID

	if kind == "release" {
		merged.Version = ref.Version
		if merged.Versioning != nil {
			merged.Versioning.Snapshot = nil
			merged.Versioning.SnapshotVersions = nil
		}
	} else {
		artifacts, err := t.versionArtifacts(ctx, repo, ref)
		if err != nil {
			return nil, err
		}
		res, err := ResolveSnapshot(snapshotCandidates(ref, artifacts, proxies))
		if err != nil {
			return nil, fmt.Errorf("resolving snapshot %s: %w", ref, err)
		}

		merged.Version = version.BaseVersion(ref.Version)
		vs := merged.versioning()
		vs.Snapshot = res.Snapshot
		merged.TouchLastUpdated(res.Time)
		if res.Snapshot.IsUnique() {
			vs.SnapshotVersions = mergeSnapshotVersions(vs.SnapshotVersions, buildFiles(artifacts, res))
		} else {
			vs.SnapshotVersions = nil
		}
		logger.Debug("resolved snapshot", "latest", res.Latest)
	}

	if err := t.commit(ctx, repo, key, merged, raw, logger); err != nil {
		return nil, err
	}
	return merged, nil
}

// UpdateProjectMetadata regenerates the project-level document of ref from
// its version directories and the proxy variants. Versions missing from both
// are dropped. A project with no versions becomes group metadata carrying
// only plugins, with the artifactId folded into the groupId.
func (t *Tools) UpdateProjectMetadata(ctx context.Context, repo Repository, ref layout.ProjectReference) (_ *Metadata, err error) {
	start := time.Now()
	defer func() {
		telemetry.RecordMetadataUpdate(ctx, "project", telemetry.OutcomeFromError(err), time.Since(start))
	}()

	if ref.ArtifactID == "" {
		return nil, fmt.Errorf("%w: project reference %s has no artifactId", layout.ErrLayout, ref)
	}

	key := t.layout.ProjectPath(ref)
	logger := t.logger.With("repository", repo.ID, "path", key)

	existing, raw, err := t.readExisting(ctx, repo, key, logger)
	if err != nil {
		return nil, err
	}
	proxies := t.readProxyVariants(ctx, repo, key)

	versions, err := t.projectVersions(ctx, repo, key)
	if err != nil {
		return nil, err
	}
	if existing == nil && len(proxies) == 0 && len(versions) == 0 {
		logger.Debug("no metadata to update")
		return nil, nil
	}

	m := &Metadata{}
	if existing != nil {
		m.ModelVersion = existing.ModelVersion
		m.Plugins = slices.Clone(existing.Plugins)
		if existing.Versioning != nil {
			m.versioning().LastUpdated = existing.Versioning.LastUpdated
		}
	}
	for _, v := range versions {
		m.AddVersion(v)
	}
	for _, p := range proxies {
		m.Plugins = mergePlugins(m.Plugins, p.Plugins)
		for _, v := range p.AvailableVersions() {
			m.AddVersion(v)
		}
		if p.Versioning != nil {
			vs := m.versioning()
			vs.LastUpdated = mergeLastUpdated(vs.LastUpdated, p.Versioning.LastUpdated)
		}
	}
	slices.SortStableFunc(m.Plugins, func(a, b Plugin) int {
		return strings.Compare(a.Prefix, b.Prefix)
	})

	if len(m.AvailableVersions()) > 0 {
		m.GroupID = ref.GroupID
		m.ArtifactID = ref.ArtifactID
		m.RefreshLatestRelease()
	} else {
		m.GroupID = ref.GroupID + "." + ref.ArtifactID
	}

	if err := t.commit(ctx, repo, key, m, raw, logger); err != nil {
		return nil, err
	}
	return m, nil
}

// GatherSnapshotVersions returns every build of the snapshot ref found in its
// version directory or named by a proxy variant, in Maven version order.
func (t *Tools) GatherSnapshotVersions(ctx context.Context, repo Repository, ref layout.VersionedReference) ([]string, error) {
	artifacts, err := t.versionArtifacts(ctx, repo, ref)
	if err != nil {
		return nil, err
	}
	proxies := t.readProxyVariants(ctx, repo, t.layout.VersionedPath(ref))
	return snapshotCandidates(ref, artifacts, proxies), nil
}

// readExisting loads the canonical document. A missing document yields nil.
// An undecodable one is logged and also yields nil, together with its raw
// bytes.
func (t *Tools) readExisting(ctx context.Context, repo Repository, key string, logger *slog.Logger) (*Metadata, []byte, error) {
	m, raw, err := Read(ctx, repo.Storage, key)
	switch {
	case err == nil:
		return m, raw, nil
	case errors.Is(err, backend.ErrNotFound):
		return nil, nil, nil
	case errors.Is(err, ErrRepositoryMetadata):
		logger.Warn("existing metadata is unreadable, regenerating", "error", err)
		return nil, raw, nil
	default:
		return nil, nil, fmt.Errorf("reading existing metadata: %w", err)
	}
}

func (t *Tools) readProxyVariants(ctx context.Context, repo Repository, key string) []*Metadata {
	var out []*Metadata
	for _, id := range t.proxies.ProxyIDs(repo.ID) {
		if m := t.ReadProxyMetadata(ctx, repo, key, id); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// selfHeal adds the sibling directories of key that hold a .pom file and are
// not listed yet. It returns the added versions.
func (t *Tools) selfHeal(ctx context.Context, repo Repository, key string, m *Metadata) ([]string, error) {
	dir := parentDir(key)
	entries, err := backend.Children(ctx, repo.Storage, dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var added []string
	for _, e := range entries {
		if !e.IsDir || m.HasVersion(e.Name) {
			continue
		}
		files, err := backend.Children(ctx, repo.Storage, joinKey(dir, e.Name))
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", joinKey(dir, e.Name), err)
		}
		if slices.ContainsFunc(files, func(f backend.Entry) bool {
			return !f.IsDir && strings.HasSuffix(f.Name, ".pom")
		}) {
			m.AddVersion(e.Name)
			added = append(added, e.Name)
		}
	}
	return added, nil
}

// versionArtifacts parses the artifact files in the version directory of
// ref. Other files are ignored.
func (t *Tools) versionArtifacts(ctx context.Context, repo Repository, ref layout.VersionedReference) ([]layout.ArtifactReference, error) {
	dir := parentDir(t.layout.VersionedPath(ref))
	entries, err := backend.Children(ctx, repo.Storage, dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var out []layout.ArtifactReference
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		a, err := t.layout.ToArtifactReference(joinKey(dir, e.Name))
		if err != nil || a.ArtifactID != ref.ArtifactID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// projectVersions returns the subdirectories of the project directory that
// hold at least one artifact.
func (t *Tools) projectVersions(ctx context.Context, repo Repository, key string) ([]string, error) {
	dir := parentDir(key)
	entries, err := backend.Children(ctx, repo.Storage, dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		vdir := joinKey(dir, e.Name)
		files, err := backend.Children(ctx, repo.Storage, vdir)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", vdir, err)
		}
		if slices.ContainsFunc(files, func(f backend.Entry) bool {
			if f.IsDir {
				return false
			}
			_, err := t.layout.ToArtifactReference(joinKey(vdir, f.Name))
			return err == nil
		}) {
			versions = append(versions, e.Name)
		}
	}
	return versions, nil
}

// fillIdentity sets groupId and artifactId of an anonymous document from its
// path. Group documents carrying plugins have no artifactId and are left
// alone, as is anything whose path does not name a project.
func (t *Tools) fillIdentity(key string, m *Metadata) {
	if m.GroupID != "" || m.ArtifactID != "" || len(m.Plugins) > 0 {
		return
	}
	if len(m.AvailableVersions()) > 0 {
		if ref, err := t.layout.ToProjectReference(key); err == nil {
			m.GroupID = ref.GroupID
			m.ArtifactID = ref.ArtifactID
		}
		return
	}
	if ref, err := t.layout.ToVersionedReference(key); err == nil {
		m.GroupID = ref.GroupID
		m.ArtifactID = ref.ArtifactID
	}
}

// commit writes m to key unless the stored bytes are identical, then
// refreshes the side-files. The refresh only runs after a successful write
// or an identical stored document.
func (t *Tools) commit(ctx context.Context, repo Repository, key string, m *Metadata, raw []byte, logger *slog.Logger) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	if raw != nil && mavenrepo.FingerprintBytes(raw) == mavenrepo.FingerprintBytes(data) {
		logger.Debug("metadata unchanged, skipping write")
	} else {
		if err := repo.Storage.Write(ctx, key, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("writing metadata %s: %w", key, err)
		}
		logger.Debug("wrote metadata", "versions", len(m.AvailableVersions()))
	}

	opts := append([]checksum.Option{checksum.WithLogger(t.logger.With("repository", repo.ID))}, t.checksumOpts...)
	file := checksum.NewFile(repo.Storage, key, opts...)
	if _, err := file.FixChecksums(ctx, t.algorithms); err != nil {
		return fmt.Errorf("refreshing checksums of %s: %w", key, err)
	}
	return nil
}

// snapshotCandidates collects the builds named by artifacts and by the
// snapshot descriptors of proxy variants.
func snapshotCandidates(ref layout.VersionedReference, artifacts []layout.ArtifactReference, proxies []*Metadata) []string {
	found := mapset.NewThreadUnsafeSet[string]()
	for _, a := range artifacts {
		found.Add(a.Version)
	}

	base := strings.TrimSuffix(version.BaseVersion(ref.Version), "-"+version.SnapshotSuffix)
	for _, p := range proxies {
		s := p.Snapshot()
		if !s.IsUnique() {
			continue
		}
		u := version.UniqueSnapshot{Base: base, Timestamp: s.Timestamp, BuildNumber: s.BuildNumber}
		found.Add(u.Version())
	}

	out := found.ToSlice()
	version.Sort(out)
	return out
}

// buildFiles describes the files published for the resolved build.
func buildFiles(artifacts []layout.ArtifactReference, res Resolution) []SnapshotVersion {
	updated := res.Time.UTC().Format(LastUpdatedLayout)
	var out []SnapshotVersion
	for _, a := range artifacts {
		if a.Version != res.Latest {
			continue
		}
		out = append(out, SnapshotVersion{
			Classifier: a.Classifier,
			Extension:  a.Extension,
			Value:      a.Version,
			Updated:    updated,
		})
	}
	return out
}

func parentDir(key string) string {
	dir := path.Dir(key)
	if dir == "." {
		return ""
	}
	return dir
}

func joinKey(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
