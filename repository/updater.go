// Package repository drives checksum and metadata maintenance over a whole
// configured repository.
//
// The metadata engine does not serialise writers. Updater guarantees a single
// writer per metadata path: concurrent callers in one process are coalesced
// and processes sharing a filesystem take an advisory lock on the document's
// directory.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	mavenrepo "github.com/wolfeidau/maven-repo"
	"github.com/wolfeidau/maven-repo/backend"
	"github.com/wolfeidau/maven-repo/catalog"
	"github.com/wolfeidau/maven-repo/checksum"
	"github.com/wolfeidau/maven-repo/config"
	"github.com/wolfeidau/maven-repo/layout"
	"github.com/wolfeidau/maven-repo/metadata"
	"github.com/wolfeidau/maven-repo/telemetry"
	"github.com/wolfeidau/maven-repo/version"
	"golang.org/x/sync/errgroup"
)

// Catalog records the documents an Updater produces.
type Catalog interface {
	Put(ctx context.Context, rec *catalog.Record) error
	Prune(ctx context.Context, repository string, before time.Time) (int, error)
}

// Summary describes the outcome of a repository walk.
type Summary struct {
	Files     int
	Created   int
	Updated   int
	Unchanged int
	Failed    int
	Bytes     int64
	Pruned    int
	Duration  time.Duration
}

func (s Summary) String() string {
	return fmt.Sprintf("%d files (%s): %d created, %d updated, %d unchanged, %d failed in %s",
		s.Files, humanize.Bytes(uint64(max(s.Bytes, 0))), s.Created, s.Updated, s.Unchanged, s.Failed,
		s.Duration.Round(time.Millisecond))
}

// tally accumulates a Summary from parallel workers.
type tally struct {
	mu sync.Mutex
	s  Summary
}

func (t *tally) add(status checksum.UpdateStatus, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Files++
	t.s.Bytes += bytes
	switch status {
	case checksum.StatusCreated:
		t.s.Created++
	case checksum.StatusUpdated:
		t.s.Updated++
	case checksum.StatusError:
		t.s.Failed++
	default:
		t.s.Unchanged++
	}
}

func (t *tally) summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

// Updater maintains one configured repository.
type Updater struct {
	cfg         config.RepositoryConfig
	repo        metadata.Repository
	tools       *metadata.Tools
	catalog     Catalog
	prune       bool
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
	inflight    coalescer
}

// Option configures an Updater.
type Option func(*Updater)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Updater) {
		u.logger = logger
	}
}

// WithCatalog records every updated document in c.
func WithCatalog(c Catalog) Option {
	return func(u *Updater) {
		u.catalog = c
	}
}

// WithPrune removes catalog records of documents not seen by a full
// metadata walk.
func WithPrune(prune bool) Option {
	return func(u *Updater) {
		u.prune = prune
	}
}

// WithConcurrency bounds the number of files processed in parallel.
func WithConcurrency(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(u *Updater) {
		u.now = now
	}
}

// New returns an Updater for the repository described by cfg and stored in
// storage.
func New(cfg config.RepositoryConfig, storage backend.Backend, tools *metadata.Tools, opts ...Option) *Updater {
	u := &Updater{
		cfg:         cfg,
		repo:        metadata.Repository{ID: cfg.ID, Storage: storage},
		tools:       tools,
		concurrency: config.DefaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("repository", cfg.ID)
	return u
}

// Repository returns the repository the Updater maintains.
func (u *Updater) Repository() metadata.Repository {
	return u.repo
}

// FixChecksums repairs the side-files of every selected file in the
// repository. Checksum side-files, metadata documents and lock files are
// never selected; metadata side-files are refreshed by UpdateMetadata.
// Failures of single files are counted in the Summary; the error is only
// set when the walk itself fails.
func (u *Updater) FixChecksums(ctx context.Context) (Summary, error) {
	start := u.now()
	keys, err := u.repo.Storage.List(ctx, "")
	if err != nil {
		return Summary{}, fmt.Errorf("listing repository: %w", err)
	}

	var t tally
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(u.concurrency)
	for _, key := range keys {
		if !u.selected(key) {
			continue
		}
		eg.Go(func() error {
			status, size := u.fixFile(egCtx, key)
			t.add(status, size)
			return egCtx.Err()
		})
	}
	err = eg.Wait()

	s := t.summary()
	s.Duration = u.now().Sub(start)
	telemetry.RecordRepairRun(ctx, u.cfg.ID, "checksums", s.Duration)
	u.logger.Info("repaired checksums", "summary", s.String())
	return s, err
}

func (u *Updater) selected(key string) bool {
	name := path.Base(key)
	if name == LockFilename || checksum.IsChecksumFile(name) || layout.IsMetadataFile(name) {
		return false
	}
	return u.cfg.Matches(key)
}

func (u *Updater) fixFile(ctx context.Context, key string) (checksum.UpdateStatus, int64) {
	opts := append([]checksum.Option{checksum.WithLogger(u.logger)}, u.tools.ChecksumOptions()...)

	list, err := checksum.NewFile(u.repo.Storage, key, opts...).FixChecksums(ctx, u.tools.Algorithms())
	status := list.Total()
	if err != nil {
		u.logger.Warn("unable to repair checksums", "path", key, "error", err)
		status = checksum.StatusError
	}
	telemetry.RecordRepairFile(ctx, u.cfg.ID, "checksums", status.String())
	return status, u.size(ctx, key)
}

func (u *Updater) size(ctx context.Context, key string) int64 {
	sb, ok := u.repo.Storage.(backend.SizeAwareBackend)
	if !ok {
		return 0
	}
	n, err := sb.Size(ctx, key)
	if err != nil {
		return 0
	}
	return n
}

// UpdateMetadata regenerates every canonical metadata document in the
// repository. Version directories of snapshots get snapshot resolution, all
// other documents the general update. With a catalog, each document is
// recorded, and with pruning enabled records of documents that no longer
// exist are removed once the walk completed without failures.
func (u *Updater) UpdateMetadata(ctx context.Context) (Summary, error) {
	start := u.now()
	keys, err := u.repo.Storage.List(ctx, "")
	if err != nil {
		return Summary{}, fmt.Errorf("listing repository: %w", err)
	}

	var t tally
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(u.concurrency)
	for _, key := range keys {
		if path.Base(key) != layout.MetadataFilename {
			continue
		}
		eg.Go(func() error {
			status, err := u.updatePath(egCtx, key)
			if err != nil {
				u.logger.Warn("unable to update metadata", "path", key, "error", err)
				status = checksum.StatusError
			}
			telemetry.RecordRepairFile(egCtx, u.cfg.ID, "metadata", status.String())
			t.add(status, 0)
			return egCtx.Err()
		})
	}
	err = eg.Wait()

	s := t.summary()
	if err == nil && s.Failed == 0 && u.prune && u.catalog != nil {
		n, perr := u.catalog.Prune(ctx, u.cfg.ID, start)
		if perr != nil {
			err = fmt.Errorf("pruning catalog: %w", perr)
		}
		s.Pruned = n
	}
	s.Duration = u.now().Sub(start)
	telemetry.RecordRepairRun(ctx, u.cfg.ID, "metadata", s.Duration)
	u.logger.Info("updated metadata", "summary", s.String(), "pruned", s.Pruned)
	return s, err
}

// UpdatePath regenerates the document at p, choosing snapshot resolution for
// snapshot version directories and the general update otherwise.
func (u *Updater) UpdatePath(ctx context.Context, p string) (*metadata.Metadata, error) {
	key, err := backend.CleanKey(p)
	if err != nil {
		return nil, fmt.Errorf("metadata path %q: %w", p, err)
	}
	if path.Base(key) != layout.MetadataFilename {
		key = path.Join(key, layout.MetadataFilename)
	}
	return u.run(ctx, key, u.classify(key))
}

// UpdateVersion regenerates the version-level document of ref.
func (u *Updater) UpdateVersion(ctx context.Context, ref layout.VersionedReference) (*metadata.Metadata, error) {
	return u.run(ctx, u.tools.Layout().VersionedPath(ref), func(ctx context.Context) (*metadata.Metadata, error) {
		return u.tools.UpdateVersionMetadata(ctx, u.repo, ref)
	})
}

// UpdateProject regenerates the project-level document of ref.
func (u *Updater) UpdateProject(ctx context.Context, ref layout.ProjectReference) (*metadata.Metadata, error) {
	return u.run(ctx, u.tools.Layout().ProjectPath(ref), func(ctx context.Context) (*metadata.Metadata, error) {
		return u.tools.UpdateProjectMetadata(ctx, u.repo, ref)
	})
}

func (u *Updater) classify(key string) updateFunc {
	if ref, err := u.tools.Layout().ToVersionedReference(key); err == nil && version.IsSnapshot(ref.Version) {
		return func(ctx context.Context) (*metadata.Metadata, error) {
			return u.tools.UpdateVersionMetadata(ctx, u.repo, ref)
		}
	}
	return func(ctx context.Context) (*metadata.Metadata, error) {
		return u.tools.UpdateMetadata(ctx, u.repo, key)
	}
}

// updatePath updates the document at key and reports how it changed.
func (u *Updater) updatePath(ctx context.Context, key string) (checksum.UpdateStatus, error) {
	before, existed, err := u.fingerprint(ctx, key)
	if err != nil {
		return checksum.StatusError, err
	}
	doc, err := u.run(ctx, key, u.classify(key))
	if err != nil {
		return checksum.StatusError, err
	}
	if doc == nil {
		return checksum.StatusNone, nil
	}
	after, _, err := u.fingerprint(ctx, key)
	if err != nil {
		return checksum.StatusError, err
	}
	switch {
	case !existed:
		return checksum.StatusCreated, nil
	case before != after:
		return checksum.StatusUpdated, nil
	default:
		return checksum.StatusNone, nil
	}
}

// run updates the document at key holding the in-process and cross-process
// locks of its directory, then records the result.
func (u *Updater) run(ctx context.Context, key string, fn updateFunc) (*metadata.Metadata, error) {
	doc, shared, err := u.inflight.Do(ctx, key, func(ctx context.Context) (*metadata.Metadata, error) {
		unlock, err := lockDir(ctx, u.repo.Storage, path.Dir(key))
		if err != nil {
			return nil, err
		}
		defer unlock()

		doc, err := fn(ctx)
		if err != nil || doc == nil {
			return doc, err
		}
		if err := u.record(ctx, key, doc); err != nil {
			u.logger.Warn("unable to record metadata in catalog", "path", key, "error", err)
		}
		return doc, nil
	})
	if shared {
		u.logger.Debug("joined in-flight metadata update", "path", key)
	}
	return doc, err
}

func (u *Updater) record(ctx context.Context, key string, doc *metadata.Metadata) error {
	if u.catalog == nil {
		return nil
	}
	fp, _, err := u.fingerprint(ctx, key)
	if err != nil {
		return err
	}

	rec := &catalog.Record{
		Repository:  u.cfg.ID,
		Path:        key,
		Kind:        recordKind(doc),
		GroupID:     doc.GroupID,
		ArtifactID:  doc.ArtifactID,
		Version:     doc.Version,
		Versions:    doc.AvailableVersions(),
		Fingerprint: fp,
		Checksums:   make(map[string]string),
	}
	if vs := doc.Versioning; vs != nil {
		rec.Latest = vs.Latest
		rec.Release = vs.Release
		rec.LastUpdated = vs.LastUpdated
		if vs.Snapshot.IsUnique() {
			rec.Snapshot = fmt.Sprintf("%s-%d", vs.Snapshot.Timestamp, vs.Snapshot.BuildNumber)
		}
	}

	file := checksum.NewFile(u.repo.Storage, key, u.tools.ChecksumOptions()...)
	for _, alg := range u.tools.Algorithms() {
		digest, err := file.ParseChecksum(ctx, alg)
		if err != nil {
			continue
		}
		rec.Checksums[alg.Ext()] = digest
	}
	return u.catalog.Put(ctx, rec)
}

func recordKind(doc *metadata.Metadata) string {
	switch {
	case doc.Version != "" && version.IsSnapshot(doc.Version):
		return "snapshot"
	case doc.Version != "":
		return "release"
	case doc.ArtifactID == "" && len(doc.Plugins) > 0:
		return "group"
	default:
		return "project"
	}
}

// fingerprint returns the fingerprint of the stored document at key and
// whether it exists.
func (u *Updater) fingerprint(ctx context.Context, key string) (mavenrepo.Fingerprint, bool, error) {
	rc, err := u.repo.Storage.Read(ctx, key)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return mavenrepo.Fingerprint{}, false, nil
		}
		return mavenrepo.Fingerprint{}, false, fmt.Errorf("reading %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	fp, _, err := mavenrepo.FingerprintReader(rc)
	if err != nil {
		return mavenrepo.Fingerprint{}, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return fp, true, nil
}
