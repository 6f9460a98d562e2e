// Package mavenrepo holds primitives shared by the repository packages.
package mavenrepo

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// FingerprintSize is the size of a BLAKE3 digest in bytes (256 bits).
const FingerprintSize = 32

// Fingerprint identifies the exact bytes of a stored document.
//
// It is used to detect no-op rewrites of metadata documents and is recorded in
// the catalog next to the published checksums. It is never written to a
// checksum side-file.
type Fingerprint [FingerprintSize]byte

// String returns the hex-encoded representation of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ShortString returns a shortened hex representation for display.
func (f Fingerprint) ShortString() string {
	return hex.EncodeToString(f[:8])
}

// IsZero returns true if the fingerprint is all zeros (uninitialized).
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	if len(text) != FingerprintSize*2 {
		return fmt.Errorf("invalid fingerprint length: expected %d hex chars, got %d", FingerprintSize*2, len(text))
	}
	_, err := hex.Decode(f[:], text)
	return err
}

// ParseFingerprint parses a hex-encoded fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	if err := f.UnmarshalText([]byte(s)); err != nil {
		return Fingerprint{}, err
	}
	return f, nil
}

// FingerprintBytes computes the fingerprint of the given bytes.
func FingerprintBytes(data []byte) Fingerprint {
	return Fingerprint(blake3.Sum256(data))
}

// FingerprintReader computes the fingerprint of content from the reader.
// It returns the fingerprint and the number of bytes read.
func FingerprintReader(r io.Reader) (Fingerprint, int64, error) {
	h := blake3.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Fingerprint{}, n, fmt.Errorf("fingerprinting content: %w", err)
	}
	var f Fingerprint
	h.Sum(f[:0])
	return f, n, nil
}
