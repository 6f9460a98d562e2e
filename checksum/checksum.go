package checksum

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"strings"
)

const (
	// streamBufferSize is used when digesting arbitrary readers.
	streamBufferSize = 4 * 1024
	// fileBufferSize is used when digesting whole files.
	fileBufferSize = 32 * 1024
)

// Checksum accumulates a single digest over streamed input.
//
// Once the digest has been finalised by Finish, Sum, Hex or a comparison, the
// next Write starts a new computation.
type Checksum struct {
	alg Algorithm
	h   hash.Hash
	sum []byte
}

// New returns an empty accumulator for the algorithm.
func New(alg Algorithm) *Checksum {
	return &Checksum{alg: alg, h: alg.New()}
}

// NewAll returns one accumulator per algorithm, in order.
func NewAll(algs []Algorithm) []*Checksum {
	sums := make([]*Checksum, len(algs))
	for i, alg := range algs {
		sums[i] = New(alg)
	}
	return sums
}

// Algorithm returns the digest algorithm.
func (c *Checksum) Algorithm() Algorithm {
	return c.alg
}

// Write implements io.Writer.
func (c *Checksum) Write(p []byte) (int, error) {
	if c.sum != nil {
		c.Reset()
	}
	return c.h.Write(p)
}

// UpdateReader feeds r into the digest until EOF.
func (c *Checksum) UpdateReader(r io.Reader) (int64, error) {
	if c.sum != nil {
		c.Reset()
	}
	n, err := io.CopyBuffer(c, onlyReader{r}, make([]byte, streamBufferSize))
	if err != nil {
		return n, newValidationError(ErrReadError, "", err)
	}
	return n, nil
}

// UpdateFile feeds the file at path into the digest.
func (c *Checksum) UpdateFile(path string) (int64, error) {
	return UpdateAllFile([]*Checksum{c}, path)
}

// Finish finalises the digest and returns it. Repeated calls return the same
// value until the accumulator is written to again.
func (c *Checksum) Finish() []byte {
	if c.sum == nil {
		c.sum = c.h.Sum(nil)
	}
	return c.sum
}

// Sum returns a copy of the finalised digest.
func (c *Checksum) Sum() []byte {
	return append([]byte(nil), c.Finish()...)
}

// Hex returns the finalised digest as lowercase hex.
func (c *Checksum) Hex() string {
	return hex.EncodeToString(c.Finish())
}

// Compare reports whether the digest equals the hex encoded value. Case is
// ignored and invalid hex never matches.
func (c *Checksum) Compare(hexDigest string) bool {
	b, err := hex.DecodeString(strings.TrimSpace(hexDigest))
	if err != nil {
		return false
	}
	return c.CompareBytes(b)
}

// CompareBytes compares the digest against raw bytes in constant time.
func (c *Checksum) CompareBytes(b []byte) bool {
	return subtle.ConstantTimeCompare(c.Finish(), b) == 1
}

// Reset discards all input and any finalised digest.
func (c *Checksum) Reset() {
	c.h.Reset()
	c.sum = nil
}

// UpdateAll feeds r once into every accumulator and finalises them.
func UpdateAll(sums []*Checksum, r io.Reader) (int64, error) {
	n, err := updateAll(sums, r, streamBufferSize)
	if err != nil {
		return n, newValidationError(ErrReadError, "", err)
	}
	return n, nil
}

// UpdateAllFile reads the file at path once, feeding every accumulator.
func UpdateAllFile(sums []*Checksum, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, newValidationError(ErrFileNotFound, path, err)
		}
		return 0, newValidationError(ErrReadError, path, err)
	}
	defer func() { _ = f.Close() }()

	n, err := updateAll(sums, f, fileBufferSize)
	if err != nil {
		return n, newValidationError(ErrReadError, path, err)
	}
	return n, nil
}

func updateAll(sums []*Checksum, r io.Reader, bufSize int) (int64, error) {
	writers := make([]io.Writer, len(sums))
	for i, s := range sums {
		if s.sum != nil {
			s.Reset()
		}
		writers[i] = s
	}
	n, err := io.CopyBuffer(io.MultiWriter(writers...), onlyReader{r}, make([]byte, bufSize))
	if err != nil {
		return n, fmt.Errorf("digesting content: %w", err)
	}
	for _, s := range sums {
		s.Finish()
	}
	return n, nil
}

// onlyReader hides WriterTo so reads go through the sized buffer.
type onlyReader struct {
	io.Reader
}
