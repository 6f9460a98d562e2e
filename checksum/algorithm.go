// Package checksum computes, parses, validates and repairs the checksum
// side-files (foo.jar.sha1, foo.jar.md5, ...) stored next to repository files.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"path"
	"regexp"
	"strings"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm int

const (
	SHA1 Algorithm = iota + 1
	MD5
	SHA256
	SHA512
)

// DefaultAlgorithms is the set maintained for every repository file.
var DefaultAlgorithms = []Algorithm{SHA1, MD5}

type algorithmInfo struct {
	tag     string
	ext     string
	size    int
	newHash func() hash.Hash
	bsd     *regexp.Regexp
}

var algorithmTable = map[Algorithm]algorithmInfo{
	SHA1:   newInfo("SHA1", "sha1", sha1.Size, sha1.New),
	MD5:    newInfo("MD5", "md5", md5.Size, md5.New),
	SHA256: newInfo("SHA256", "sha256", sha256.Size, sha256.New),
	SHA512: newInfo("SHA512", "sha512", sha512.Size, sha512.New),
}

func newInfo(tag, ext string, size int, fn func() hash.Hash) algorithmInfo {
	return algorithmInfo{
		tag:     tag,
		ext:     ext,
		size:    size,
		newHash: fn,
		bsd:     regexp.MustCompile(`^` + regexp.QuoteMeta(tag) + `\s*\(([^)]*)\)\s*=\s*([a-fA-F0-9]+)$`),
	}
}

// Algorithms returns every supported algorithm in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{SHA1, MD5, SHA256, SHA512}
}

func (a Algorithm) info() algorithmInfo {
	s, ok := algorithmTable[a]
	if !ok {
		panic(fmt.Sprintf("checksum: unknown algorithm %d", int(a)))
	}
	return s
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	_, ok := algorithmTable[a]
	return ok
}

// String returns the algorithm tag as used in BSD style checksum files.
func (a Algorithm) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
	return a.info().tag
}

// Ext returns the side-file extension without the leading dot.
func (a Algorithm) Ext() string {
	return a.info().ext
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	return a.info().newHash()
}

// HexLen is the length of the lowercase hex encoding of a digest.
func (a Algorithm) HexLen() int {
	return a.info().size * 2
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("unknown checksum algorithm %d", int(a))
	}
	return []byte(a.Ext()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAlgorithm resolves an algorithm from its extension or tag,
// case-insensitively. "SHA-1" style spellings are accepted.
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	if alg, ok := AlgorithmForExtension(norm); ok {
		return alg, nil
	}
	return 0, fmt.Errorf("unknown checksum algorithm %q", s)
}

// AlgorithmForExtension maps a side-file extension to its algorithm.
func AlgorithmForExtension(ext string) (Algorithm, bool) {
	ext = strings.TrimPrefix(ext, ".")
	for alg, s := range algorithmTable {
		if s.ext == ext {
			return alg, true
		}
	}
	return 0, false
}

// AlgorithmForFile reports the algorithm of a checksum side-file name such as
// "foo-1.0.jar.sha1".
func AlgorithmForFile(name string) (Algorithm, bool) {
	ext := path.Ext(name)
	if ext == "" {
		return 0, false
	}
	return AlgorithmForExtension(ext)
}

// IsChecksumFile reports whether name is a checksum side-file of any
// supported algorithm.
func IsChecksumFile(name string) bool {
	_, ok := AlgorithmForFile(name)
	return ok
}
