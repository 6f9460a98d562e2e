package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/maven-repo/layout"
	"github.com/wolfeidau/maven-repo/metadata"
	"github.com/wolfeidau/maven-repo/repository"
)

// MetadataCmd groups the metadata commands.
type MetadataCmd struct {
	Update   MetadataUpdateCmd   `cmd:"" help:"Merge proxy variants and versions found on disk into documents."`
	Snapshot MetadataSnapshotCmd `cmd:"" help:"Resolve the latest build of a snapshot version."`
	Project  MetadataProjectCmd  `cmd:"" help:"Rebuild the project document from its version directories."`
	Builds   MetadataBuildsCmd   `cmd:"" help:"List the builds of a snapshot version."`
}

// MetadataUpdateCmd runs the general update on metadata paths.
type MetadataUpdateCmd struct {
	Repository string   `required:"" short:"r" help:"Configured repository id."`
	Paths      []string `arg:"" help:"Metadata documents or their directories."`
}

func (c *MetadataUpdateCmd) Run(rt *runtime) error {
	u, closeFn, err := rt.updater(c.Repository)
	if err != nil {
		return err
	}
	defer closeFn()

	var errs []error
	for _, p := range c.Paths {
		doc, err := u.UpdatePath(rt.ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		printDocument(rt, p, doc)
	}
	return errors.Join(errs...)
}

// MetadataSnapshotCmd resolves a snapshot version.
type MetadataSnapshotCmd struct {
	Repository string `required:"" short:"r" help:"Configured repository id."`
	Reference  string `arg:"" help:"Snapshot as groupId:artifactId:version."`
}

func (c *MetadataSnapshotCmd) Run(rt *runtime) error {
	ref, err := layout.ParseVersionedReference(c.Reference)
	if err != nil {
		return err
	}
	u, closeFn, err := rt.updater(c.Repository)
	if err != nil {
		return err
	}
	defer closeFn()

	doc, err := u.UpdateVersion(rt.ctx, ref)
	if err != nil {
		return err
	}
	printDocument(rt, ref.String(), doc)
	return nil
}

// MetadataProjectCmd rebuilds a project document.
type MetadataProjectCmd struct {
	Repository string `required:"" short:"r" help:"Configured repository id."`
	Reference  string `arg:"" help:"Project as groupId:artifactId."`
}

func (c *MetadataProjectCmd) Run(rt *runtime) error {
	ref, err := layout.ParseProjectReference(c.Reference)
	if err != nil {
		return err
	}
	u, closeFn, err := rt.updater(c.Repository)
	if err != nil {
		return err
	}
	defer closeFn()

	doc, err := u.UpdateProject(rt.ctx, ref)
	if err != nil {
		return err
	}
	printDocument(rt, ref.String(), doc)
	return nil
}

// MetadataBuildsCmd lists the builds of a snapshot version.
type MetadataBuildsCmd struct {
	Repository string `required:"" short:"r" help:"Configured repository id."`
	Reference  string `arg:"" help:"Snapshot as groupId:artifactId:version."`
}

func (c *MetadataBuildsCmd) Run(rt *runtime) error {
	ref, err := layout.ParseVersionedReference(c.Reference)
	if err != nil {
		return err
	}
	u, closeFn, err := rt.updater(c.Repository)
	if err != nil {
		return err
	}
	defer closeFn()

	tools, err := rt.tools()
	if err != nil {
		return err
	}
	builds, err := tools.GatherSnapshotVersions(rt.ctx, u.Repository(), ref)
	if err != nil {
		return err
	}
	for _, b := range builds {
		fmt.Fprintln(rt.out, b)
	}
	return nil
}

func printDocument(rt *runtime, name string, doc *metadata.Metadata) {
	if doc == nil {
		fmt.Fprintf(rt.out, "%s: nothing to update\n", name)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:", name)
	if doc.Version != "" {
		fmt.Fprintf(&b, " version=%s", doc.Version)
	}
	if s := doc.Snapshot(); s.IsUnique() {
		fmt.Fprintf(&b, " snapshot=%s-%d", s.Timestamp, s.BuildNumber)
	}
	if vs := doc.Versioning; vs != nil {
		if vs.Latest != "" {
			fmt.Fprintf(&b, " latest=%s", vs.Latest)
		}
		if vs.Release != "" {
			fmt.Fprintf(&b, " release=%s", vs.Release)
		}
		if n := len(vs.Versions); n > 0 {
			fmt.Fprintf(&b, " versions=%d", n)
		}
	}
	if n := len(doc.Plugins); n > 0 {
		fmt.Fprintf(&b, " plugins=%d", n)
	}
	fmt.Fprintln(rt.out, b.String())
}

// RepairCmd repairs a whole repository.
type RepairCmd struct {
	Repository    string `required:"" short:"r" help:"Configured repository id."`
	ChecksumsOnly bool   `xor:"scope" help:"Only repair checksum side-files."`
	MetadataOnly  bool   `xor:"scope" help:"Only regenerate metadata documents."`
	Concurrency   int    `help:"Files processed in parallel. Defaults to the configured value."`
	Prune         bool   `help:"Remove catalog records of documents that no longer exist."`
}

func (c *RepairCmd) Run(rt *runtime) error {
	u, closeFn, err := rt.updater(c.Repository,
		repository.WithConcurrency(c.Concurrency),
		repository.WithPrune(c.Prune),
	)
	if err != nil {
		return err
	}
	defer closeFn()

	if !c.MetadataOnly {
		s, err := u.FixChecksums(rt.ctx)
		fmt.Fprintf(rt.out, "checksums: %s\n", s)
		if err != nil {
			return err
		}
	}
	if !c.ChecksumsOnly {
		s, err := u.UpdateMetadata(rt.ctx)
		fmt.Fprintf(rt.out, "metadata: %s\n", s)
		if s.Pruned > 0 {
			fmt.Fprintf(rt.out, "catalog: pruned %d records\n", s.Pruned)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// CatalogCmd groups the catalog commands.
type CatalogCmd struct {
	List CatalogListCmd `cmd:"" help:"List the recorded documents of a repository."`
}

// CatalogListCmd lists catalog records.
type CatalogListCmd struct {
	Repository string `required:"" short:"r" help:"Configured repository id."`
}

func (c *CatalogListCmd) Run(rt *runtime) error {
	cfg, err := rt.config()
	if err != nil {
		return err
	}
	if cfg.Catalog == "" {
		return errors.New("no catalog configured")
	}
	db, err := openCatalog(rt, cfg.Catalog)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	records, err := db.List(rt.ctx, c.Repository)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tKIND\tLATEST\tRELEASE\tFINGERPRINT\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Path, r.Kind, r.Latest, r.Release, r.Fingerprint.ShortString(), r.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
