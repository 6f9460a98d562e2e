package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/wolfeidau/maven-repo/backend"
	"github.com/wolfeidau/maven-repo/checksum"
)

// ChecksumCmd groups the checksum commands.
type ChecksumCmd struct {
	Verify ChecksumVerifyCmd `cmd:"" help:"Verify files against their side-files."`
	Fix    ChecksumFixCmd    `cmd:"" help:"Create missing and repair wrong side-files."`
	Create ChecksumCreateCmd `cmd:"" help:"Recompute and replace side-files."`
}

// FileArgs select the files of a checksum command.
type FileArgs struct {
	Root       string   `required:"" type:"existingdir" help:"Repository root directory."`
	Algorithms []string `name:"algorithm" short:"a" help:"Algorithms to use (sha1, md5, sha256, sha512). Defaults to the configured ones."`
	Files      []string `arg:"" help:"Repository paths of the files."`
}

func (a FileArgs) files(rt *runtime) ([]*checksum.File, []checksum.Algorithm, error) {
	algs, opts, err := rt.checksumSettings(a.Algorithms)
	if err != nil {
		return nil, nil, err
	}
	storage, err := openStorage(a.Root)
	if err != nil {
		return nil, nil, err
	}
	files := make([]*checksum.File, 0, len(a.Files))
	for _, p := range a.Files {
		key, err := backend.CleanKey(p)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p, err)
		}
		fileOpts := append(slices.Clone(opts), checksum.WithLogger(rt.logger))
		files = append(files, checksum.NewFile(storage, key, fileOpts...))
	}
	return files, algs, nil
}

// ChecksumVerifyCmd verifies files against their side-files.
type ChecksumVerifyCmd struct {
	FileArgs `embed:""`
}

func (c *ChecksumVerifyCmd) Run(rt *runtime) error {
	files, algs, err := c.files(rt)
	if err != nil {
		return err
	}

	failed := 0
	for _, f := range files {
		out, err := f.Validate(rt.ctx, algs)
		if err != nil {
			return err
		}
		if out.Valid {
			fmt.Fprintf(rt.out, "OK      %s\n", f.Key())
			continue
		}
		failed++
		fmt.Fprintf(rt.out, "FAILED  %s: %v\n", f.Key(), out.Reason)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed verification", failed, len(files))
	}
	return nil
}

// ChecksumFixCmd creates missing and repairs wrong side-files.
type ChecksumFixCmd struct {
	FileArgs `embed:""`
}

func (c *ChecksumFixCmd) Run(rt *runtime) error {
	files, algs, err := c.files(rt)
	if err != nil {
		return err
	}

	var errs []error
	for _, f := range files {
		list, err := f.FixChecksums(rt.ctx, algs)
		for _, alg := range list.Algorithms() {
			fmt.Fprintf(rt.out, "%-9s %s.%s\n", list.Status(alg), f.Key(), alg.Ext())
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// ChecksumCreateCmd recomputes and replaces side-files.
type ChecksumCreateCmd struct {
	FileArgs `embed:""`
}

func (c *ChecksumCreateCmd) Run(rt *runtime) error {
	files, algs, err := c.files(rt)
	if err != nil {
		return err
	}

	for _, f := range files {
		for _, alg := range algs {
			digest, err := f.CreateChecksum(rt.ctx, alg)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Key(), err)
			}
			fmt.Fprintln(rt.out, checksum.FormatGNU(digest, f.Key()))
		}
	}
	return nil
}
