package checksum

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/wolfeidau/maven-repo/backend"
	"github.com/wolfeidau/maven-repo/telemetry"
)

// maxSideFileSize bounds how much of a checksum side-file is read.
const maxSideFileSize = 64 * 1024

// File is a stored file together with its checksum side-files.
type File struct {
	storage     backend.Backend
	key         string
	logger      *slog.Logger
	policy      ReferencePolicy
	bareDigests bool
}

// Option configures a File.
type Option func(*File)

// WithLogger sets the logger. The File adds the path attribute itself.
func WithLogger(logger *slog.Logger) Option {
	return func(f *File) {
		f.logger = logger
	}
}

// WithReferencePolicy sets how file references inside side-files are matched.
func WithReferencePolicy(policy ReferencePolicy) Option {
	return func(f *File) {
		if policy != nil {
			f.policy = policy
		}
	}
}

// WithBareDigests accepts side-files holding only a digest of the right
// length, as published by some upstream repositories.
func WithBareDigests(accept bool) Option {
	return func(f *File) {
		f.bareDigests = accept
	}
}

// NewFile returns a File for key in storage.
func NewFile(storage backend.Backend, key string, opts ...Option) *File {
	f := &File{
		storage: storage,
		key:     key,
		logger:  slog.Default(),
		policy:  DefaultReferencePolicy(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("path", key)
	return f
}

// Key returns the storage key of the reference file.
func (f *File) Key() string {
	return f.key
}

// Name returns the base name of the reference file.
func (f *File) Name() string {
	return path.Base(f.key)
}

// ChecksumKey returns the storage key of the side-file for alg.
func (f *File) ChecksumKey(alg Algorithm) string {
	return f.key + "." + alg.Ext()
}

// Calculate digests the reference file once for every algorithm and returns
// lowercase hex digests.
func (f *File) Calculate(ctx context.Context, algs ...Algorithm) (map[Algorithm]string, error) {
	sums := NewAll(algs)
	if _, err := f.digest(ctx, sums); err != nil {
		return nil, err
	}
	out := make(map[Algorithm]string, len(sums))
	for _, s := range sums {
		out[s.Algorithm()] = s.Hex()
	}
	return out, nil
}

// digest reads the reference file once, feeding every accumulator.
func (f *File) digest(ctx context.Context, sums []*Checksum) (int64, error) {
	rc, err := f.storage.Read(ctx, f.key)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return 0, newValidationError(ErrFileNotFound, f.key, nil)
		}
		return 0, newValidationError(ErrReadError, f.key, err)
	}
	defer func() { _ = rc.Close() }()

	n, err := updateAll(sums, rc, fileBufferSize)
	if err != nil {
		return n, newValidationError(ErrReadError, f.key, err)
	}
	f.logger.Debug("digested file", "size", humanize.Bytes(uint64(n)), "algorithms", len(sums))
	return n, nil
}

// ReadChecksumFile reads and parses the side-file for alg without checking
// its file reference.
func (f *File) ReadChecksumFile(ctx context.Context, alg Algorithm) (FileContent, error) {
	key := f.ChecksumKey(alg)
	rc, err := f.storage.Read(ctx, key)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return FileContent{}, newValidationError(ErrFileNotFound, key, nil)
		}
		return FileContent{}, newValidationError(ErrReadError, key, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, maxSideFileSize))
	if err != nil {
		return FileContent{}, newValidationError(ErrReadError, key, err)
	}
	return ParseContent(alg, string(data)), nil
}

// ParseChecksum returns the digest recorded in the side-file for alg. It
// fails with ErrBadChecksumFileRef when the side-file names another file and
// with ErrBadChecksumFile when the content has no recognised shape.
func (f *File) ParseChecksum(ctx context.Context, alg Algorithm) (string, error) {
	content, err := f.ReadChecksumFile(ctx, alg)
	if err != nil {
		return "", err
	}
	return f.checkContent(alg, content)
}

func (f *File) checkContent(alg Algorithm, content FileContent) (string, error) {
	key := f.ChecksumKey(alg)
	if content.FormatMatch() {
		if !f.policy.Matches(f.key, content.FileReference) {
			return "", newValidationError(ErrBadChecksumFileRef, key, fmt.Errorf("references %q", content.FileReference))
		}
		return content.Checksum, nil
	}
	if f.bareDigests && isHexDigest(alg, content.Checksum) {
		return content.Checksum, nil
	}
	return "", newValidationError(ErrBadChecksumFile, key, nil)
}

// Result is the verification result for one algorithm.
type Result struct {
	Algorithm Algorithm
	Expected  string
	Actual    string
	Valid     bool
	Err       error
}

// Outcome is the result of Validate. Reason is nil when Valid is true.
type Outcome struct {
	Valid   bool
	Reason  error
	Results []Result
}

// Validate checks the reference file against every side-file that exists
// for algs. Algorithms without a side-file are skipped; when none exist the
// outcome is invalid with ErrNoChecksums. The reference file is read once.
//
// Problems with the files themselves are reported in the Outcome. The error
// return is reserved for storage faults while locating side-files.
func (f *File) Validate(ctx context.Context, algs []Algorithm) (Outcome, error) {
	var present []Algorithm
	for _, alg := range algs {
		exists, err := f.storage.Exists(ctx, f.ChecksumKey(alg))
		if err != nil {
			return Outcome{}, fmt.Errorf("checking %s: %w", f.ChecksumKey(alg), err)
		}
		if exists {
			present = append(present, alg)
		}
	}
	if len(present) == 0 {
		f.logger.Debug("no checksum files to validate")
		telemetry.RecordChecksumOp(ctx, "verify", "missing", 0)
		return Outcome{Reason: ErrNoChecksums}, nil
	}

	sums := NewAll(present)
	n, err := f.digest(ctx, sums)
	if err != nil {
		telemetry.RecordChecksumOp(ctx, "verify", "error", n)
		return Outcome{Reason: err}, nil
	}

	out := Outcome{Valid: true}
	for _, s := range sums {
		res := Result{Algorithm: s.Algorithm(), Actual: s.Hex()}
		expected, err := f.ParseChecksum(ctx, s.Algorithm())
		switch {
		case err != nil:
			res.Err = err
		case s.Compare(expected):
			res.Expected = strings.ToLower(expected)
			res.Valid = true
		default:
			res.Expected = strings.ToLower(expected)
			res.Err = fmt.Errorf("%s: %w", s.Algorithm(), ErrChecksumMismatch)
		}
		if !res.Valid {
			out.Valid = false
			if out.Reason == nil {
				out.Reason = res.Err
			}
			f.logger.Debug("checksum invalid", "algorithm", s.Algorithm(), "error", res.Err)
		}
		out.Results = append(out.Results, res)
	}

	outcome := "valid"
	if !out.Valid {
		outcome = "invalid"
	}
	telemetry.RecordChecksumOp(ctx, "verify", outcome, n)
	return out, nil
}

// IsValidChecksums reports whether every existing side-file for algs matches
// the reference file. With throwOnError, read and parse failures are
// returned as the error instead of collapsing into false. A plain mismatch
// is never an error.
func (f *File) IsValidChecksums(ctx context.Context, algs []Algorithm, throwOnError bool) (bool, error) {
	out, err := f.Validate(ctx, algs)
	if err != nil {
		if throwOnError {
			return false, err
		}
		f.logger.Warn("unable to validate checksums", "error", err)
		return false, nil
	}
	if out.Valid {
		return true, nil
	}
	var verr *ValidationError
	if throwOnError && errors.As(out.Reason, &verr) {
		return false, out.Reason
	}
	return false, nil
}

// IsValidChecksum is IsValidChecksums for a single algorithm.
func (f *File) IsValidChecksum(ctx context.Context, alg Algorithm, throwOnError bool) (bool, error) {
	return f.IsValidChecksums(ctx, []Algorithm{alg}, throwOnError)
}

// FixChecksums makes every side-file for algs match the reference file.
// Missing side-files are created, unparsable or mismatched ones are
// rewritten and matching ones are left untouched. The reference file is
// read once. Per-algorithm failures are recorded in the list and joined into
// the returned error.
func (f *File) FixChecksums(ctx context.Context, algs []Algorithm) (*UpdateStatusList, error) {
	list := newUpdateStatusList(algs)
	if len(algs) == 0 {
		return list, nil
	}

	sums := NewAll(algs)
	n, err := f.digest(ctx, sums)
	if err != nil {
		for _, alg := range algs {
			list.setError(alg, err)
		}
		telemetry.RecordChecksumOp(ctx, "fix", "error", n)
		return list, err
	}

	for _, s := range sums {
		alg := s.Algorithm()
		status, err := f.fixOne(ctx, s)
		if err != nil {
			list.setError(alg, err)
			f.logger.Warn("unable to fix checksum", "algorithm", alg, "error", err)
		} else {
			list.set(alg, status)
		}
		telemetry.RecordChecksumStatus(ctx, alg.Ext(), list.Status(alg).String())
	}

	err = list.Err()
	telemetry.RecordChecksumOp(ctx, "fix", telemetry.OutcomeFromError(err), n)
	return list, err
}

func (f *File) fixOne(ctx context.Context, s *Checksum) (UpdateStatus, error) {
	alg := s.Algorithm()
	key := f.ChecksumKey(alg)

	exists, err := f.storage.Exists(ctx, key)
	if err != nil {
		return StatusError, fmt.Errorf("checking %s: %w", key, err)
	}
	if !exists {
		if err := f.writeChecksum(ctx, alg, s.Hex()); err != nil {
			return StatusError, err
		}
		f.logger.Info("created checksum file", "algorithm", alg)
		return StatusCreated, nil
	}

	// An unreadable or unparsable side-file compares as empty and is rewritten.
	expected := ""
	if content, err := f.ReadChecksumFile(ctx, alg); err != nil {
		f.logger.Debug("existing checksum file unreadable", "algorithm", alg, "error", err)
	} else if v, err := f.checkContent(alg, content); err != nil {
		f.logger.Debug("existing checksum file invalid", "algorithm", alg, "error", err)
	} else {
		expected = v
	}

	if s.Compare(expected) {
		return StatusNone, nil
	}
	if err := f.writeChecksum(ctx, alg, s.Hex()); err != nil {
		return StatusError, err
	}
	f.logger.Info("updated checksum file", "algorithm", alg)
	return StatusUpdated, nil
}

// CreateChecksum recomputes the digest for alg and replaces the side-file
// unconditionally. If the new side-file cannot be written after the old one
// was removed, the old content is restored and the write error returned.
func (f *File) CreateChecksum(ctx context.Context, alg Algorithm) (string, error) {
	s := New(alg)
	n, err := f.digest(ctx, []*Checksum{s})
	if err != nil {
		telemetry.RecordChecksumOp(ctx, "create", "error", n)
		return "", err
	}

	key := f.ChecksumKey(alg)
	previous, hadPrevious, err := f.readRaw(ctx, key)
	if err != nil {
		telemetry.RecordChecksumOp(ctx, "create", "error", n)
		return "", err
	}
	if hadPrevious {
		if err := f.storage.Delete(ctx, key); err != nil {
			telemetry.RecordChecksumOp(ctx, "create", "error", n)
			return "", fmt.Errorf("removing %s: %w", key, err)
		}
	}

	if err := f.writeChecksum(ctx, alg, s.Hex()); err != nil {
		if hadPrevious {
			if rerr := f.storage.Write(ctx, key, bytes.NewReader(previous)); rerr != nil {
				f.logger.Error("unable to restore checksum file", "algorithm", alg, "error", rerr)
			}
		}
		telemetry.RecordChecksumOp(ctx, "create", "error", n)
		return "", err
	}

	telemetry.RecordChecksumOp(ctx, "create", "success", n)
	return s.Hex(), nil
}

func (f *File) readRaw(ctx context.Context, key string) ([]byte, bool, error) {
	rc, err := f.storage.Read(ctx, key)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, maxSideFileSize))
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, true, nil
}

func (f *File) writeChecksum(ctx context.Context, alg Algorithm, hexDigest string) error {
	key := f.ChecksumKey(alg)
	if err := f.storage.Write(ctx, key, strings.NewReader(FormatGNU(hexDigest, f.Name()))); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
