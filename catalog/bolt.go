package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

// DB is a bbolt backed catalog.
type DB struct {
	db     *bbolt.DB
	codec  *Codec
	logger *slog.Logger
	now    func() time.Time
	noSync bool // disables fsync per transaction (for testing only)
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger for the database.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		d.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(d *DB) {
		d.now = now
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing, never in production.
func WithNoSync(noSync bool) Option {
	return func(d *DB) {
		d.noSync = noSync
	}
}

// New creates an unopened DB.
func New(opts ...Option) *DB {
	d := &DB{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open opens the database at the given path.
func (d *DB) Open(path string) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  d.noSync,
	})
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	d.db = db

	if err := d.createBuckets(); err != nil {
		_ = db.Close()
		return err
	}

	codec, err := NewCodec()
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("creating envelope codec: %w", err)
	}
	d.codec = codec

	d.logger.Debug("opened catalog", "path", path, "noSync", d.noSync)
	return nil
}

func (d *DB) createBuckets() error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketRecordsByUpdated, bucketUpdatedByPath} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the database and releases resources.
func (d *DB) Close() error {
	if d.codec != nil {
		d.codec.Close()
		d.codec = nil
	}
	if d.db == nil {
		return nil
	}
	d.logger.Debug("closing catalog")
	err := d.db.Close()
	d.db = nil
	return err
}

// Put stores rec, replacing any record at the same repository and path.
// UpdatedAt is set to the current time.
func (d *DB) Put(_ context.Context, rec *Record) error {
	if rec == nil || rec.Repository == "" || rec.Path == "" {
		return errors.New("catalog: record needs a repository and a path")
	}
	rec.UpdatedAt = d.now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	env, err := d.codec.Encode(data)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.Path, err)
	}
	stored, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	return d.db.Update(func(tx *bbolt.Tx) error {
		records, err := repositoryBucket(tx, bucketRecords, rec.Repository)
		if err != nil {
			return err
		}
		if err := records.Put([]byte(rec.Path), stored); err != nil {
			return fmt.Errorf("putting record: %w", err)
		}
		return updateIndex(tx, rec.Repository, rec.Path, &rec.UpdatedAt)
	})
}

// Get returns the record at repository and path.
func (d *DB) Get(_ context.Context, repository, path string) (*Record, error) {
	var raw []byte
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := nestedBucket(tx, bucketRecords, repository)
		if b == nil {
			return ErrNotFound
		}
		val := b.Get([]byte(path))
		if val == nil {
			return ErrNotFound
		}
		raw = bytes.Clone(val)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.decode(raw)
}

// Delete removes the record at repository and path. Deleting a missing
// record is not an error.
func (d *DB) Delete(_ context.Context, repository, path string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return deleteRecord(tx, repository, path)
	})
}

// List returns every record of repository ordered by path.
func (d *DB) List(ctx context.Context, repository string) ([]*Record, error) {
	var raws [][]byte
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := nestedBucket(tx, bucketRecords, repository)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raws = append(raws, bytes.Clone(v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := d.decode(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Stale returns the paths of repository whose records were last written
// before the given time, oldest first.
func (d *DB) Stale(_ context.Context, repository string, before time.Time) ([]string, error) {
	var paths []string
	limit := encodeTimestamp(before)
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := nestedBucket(tx, bucketRecordsByUpdated, repository)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, v = c.Next() {
			paths = append(paths, string(v))
		}
		return nil
	})
	return paths, err
}

// Prune deletes the records of repository last written before the given
// time and returns how many were removed.
func (d *DB) Prune(ctx context.Context, repository string, before time.Time) (int, error) {
	paths, err := d.Stale(ctx, repository, before)
	if err != nil || len(paths) == 0 {
		return 0, err
	}
	err = d.db.Update(func(tx *bbolt.Tx) error {
		for _, p := range paths {
			if err := deleteRecord(tx, repository, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.logger.Debug("pruned catalog records", "repository", repository, "count", len(paths))
	return len(paths), nil
}

func (d *DB) decode(raw []byte) (*Record, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	data, err := d.codec.Decode(env)
	if err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	return &rec, nil
}

func deleteRecord(tx *bbolt.Tx, repository, path string) error {
	if b := nestedBucket(tx, bucketRecords, repository); b != nil {
		if err := b.Delete([]byte(path)); err != nil {
			return fmt.Errorf("deleting record: %w", err)
		}
	}
	return updateIndex(tx, repository, path, nil)
}

// updateIndex replaces the updated-at index entries of path. A nil time only
// removes the existing entries.
func updateIndex(tx *bbolt.Tx, repository, path string, updated *time.Time) error {
	byUpdated, err := repositoryBucket(tx, bucketRecordsByUpdated, repository)
	if err != nil {
		return err
	}
	byPath, err := repositoryBucket(tx, bucketUpdatedByPath, repository)
	if err != nil {
		return err
	}

	if old := byPath.Get([]byte(path)); old != nil {
		if err := byUpdated.Delete(makeUpdatedKey(decodeTimestamp(old), path)); err != nil {
			return fmt.Errorf("deleting updated index: %w", err)
		}
	}

	if updated == nil {
		return byPath.Delete([]byte(path))
	}
	if err := byUpdated.Put(makeUpdatedKey(*updated, path), []byte(path)); err != nil {
		return fmt.Errorf("putting updated index: %w", err)
	}
	return byPath.Put([]byte(path), encodeTimestamp(*updated))
}

func repositoryBucket(tx *bbolt.Tx, top []byte, repository string) (*bbolt.Bucket, error) {
	parent := tx.Bucket(top)
	if parent == nil {
		return nil, fmt.Errorf("%s bucket not found", top)
	}
	b, err := parent.CreateBucketIfNotExists([]byte(repository))
	if err != nil {
		return nil, fmt.Errorf("creating %s bucket for %s: %w", top, repository, err)
	}
	return b, nil
}

func nestedBucket(tx *bbolt.Tx, top []byte, repository string) *bbolt.Bucket {
	parent := tx.Bucket(top)
	if parent == nil {
		return nil
	}
	return parent.Bucket([]byte(repository))
}
