package catalog

import (
	"encoding/binary"
	"time"
)

// Bucket names for bbolt storage. Each holds one nested bucket per
// repository.
var (
	bucketRecords          = []byte("records")                // repository -> path -> envelope JSON
	bucketRecordsByUpdated = []byte("records_by_updated")     // repository -> timestamp+path -> path
	bucketUpdatedByPath    = []byte("records_updated_by_key") // repository -> path -> 8-byte timestamp (reverse index)
)

// encodeTimestamp converts a time.Time to a fixed-width big-endian byte slice
// that sorts in time order, including pre-1970 values.
func encodeTimestamp(t time.Time) []byte {
	buf := make([]byte, 8)
	ns := t.UnixNano()
	binary.BigEndian.PutUint64(buf, uint64(ns-(-1<<63))) //nolint:gosec // intentional signed->unsigned shift
	return buf
}

// decodeTimestamp converts a big-endian byte slice back to time.Time.
func decodeTimestamp(b []byte) time.Time {
	if len(b) < 8 {
		return time.Time{}
	}
	u := binary.BigEndian.Uint64(b[:8])
	ns := int64(u) + (-1 << 63) //nolint:gosec // intentional unsigned->signed shift
	return time.Unix(0, ns).UTC()
}

// makeUpdatedKey creates a key for the records_by_updated index.
// Format: [8-byte timestamp][path]
func makeUpdatedKey(updated time.Time, path string) []byte {
	ts := encodeTimestamp(updated)
	key := make([]byte, 0, len(ts)+len(path))
	key = append(key, ts...)
	return append(key, path...)
}
