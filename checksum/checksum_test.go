package checksum

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const helloWorld = "hello world"

var helloWorldDigests = map[Algorithm]string{
	SHA1:   "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed",
	MD5:    "5eb63bbbe01eeed093cb22bb8f5acdc3",
	SHA256: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
}

func TestChecksumKnownDigests(t *testing.T) {
	for alg, want := range helloWorldDigests {
		t.Run(alg.String(), func(t *testing.T) {
			c := New(alg)
			_, err := c.Write([]byte(helloWorld))
			require.NoError(t, err)
			require.Equal(t, want, c.Hex())
			require.Len(t, c.Hex(), alg.HexLen())
		})
	}
}

func TestChecksumEmptyInput(t *testing.T) {
	require.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", New(SHA1).Hex())
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", New(MD5).Hex())
}

func TestChecksumWriteAfterFinishStartsOver(t *testing.T) {
	c := New(SHA1)
	_, err := c.Write([]byte("stale content"))
	require.NoError(t, err)
	_ = c.Finish()

	_, err = c.Write([]byte(helloWorld))
	require.NoError(t, err)
	require.Equal(t, helloWorldDigests[SHA1], c.Hex())
}

func TestChecksumFinishIsStable(t *testing.T) {
	c := New(MD5)
	_, err := c.Write([]byte(helloWorld))
	require.NoError(t, err)

	first := c.Sum()
	first[0] ^= 0xff
	require.Equal(t, helloWorldDigests[MD5], c.Hex())
	require.Equal(t, c.Hex(), c.Hex())
}

func TestChecksumCompare(t *testing.T) {
	c := New(SHA1)
	_, err := c.Write([]byte(helloWorld))
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"lowercase", helloWorldDigests[SHA1], true},
		{"uppercase", strings.ToUpper(helloWorldDigests[SHA1]), true},
		{"surrounding whitespace", "  " + helloWorldDigests[SHA1] + "\n", true},
		{"other digest", helloWorldDigests[MD5], false},
		{"empty", "", false},
		{"not hex", "not-a-digest", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, c.Compare(tt.input))
		})
	}
}

func TestChecksumUpdateReader(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 1024)

	c := New(SHA256)
	n, err := c.UpdateReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)

	want := New(SHA256)
	_, _ = want.Write(data)
	require.Equal(t, want.Hex(), c.Hex())
}

func TestUpdateAllMatchesIndependentDigests(t *testing.T) {
	data := bytes.Repeat([]byte("maven"), 20000)

	sums := NewAll(Algorithms())
	n, err := UpdateAll(sums, bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)

	for _, s := range sums {
		independent := New(s.Algorithm())
		_, _ = independent.Write(data)
		require.Equal(t, independent.Hex(), s.Hex(), s.Algorithm().String())
	}
}

func TestUpdateAllFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.jar")
	require.NoError(t, os.WriteFile(path, []byte(helloWorld), 0o644))

	sums := NewAll(DefaultAlgorithms)
	_, err := UpdateAllFile(sums, path)
	require.NoError(t, err)
	require.Equal(t, helloWorldDigests[SHA1], sums[0].Hex())
	require.Equal(t, helloWorldDigests[MD5], sums[1].Hex())

	c := New(SHA1)
	_, err = c.UpdateFile(path)
	require.NoError(t, err)
	require.Equal(t, helloWorldDigests[SHA1], c.Hex())
}

func TestUpdateFileNotFound(t *testing.T) {
	c := New(SHA1)
	_, err := c.UpdateFile(filepath.Join(t.TempDir(), "missing.jar"))
	require.ErrorIs(t, err, ErrFileNotFound)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Path, "missing.jar")
}

func TestAlgorithmLookup(t *testing.T) {
	tests := []struct {
		input string
		want  Algorithm
	}{
		{"sha1", SHA1},
		{"SHA1", SHA1},
		{"SHA-1", SHA1},
		{"md5", MD5},
		{"sha-256", SHA256},
		{"sha512", SHA512},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := ParseAlgorithm("crc32")
	require.Error(t, err)

	alg, ok := AlgorithmForFile("commons-io-2.4.jar.sha1")
	require.True(t, ok)
	require.Equal(t, SHA1, alg)

	_, ok = AlgorithmForFile("commons-io-2.4.jar")
	require.False(t, ok)
	require.True(t, IsChecksumFile("maven-metadata.xml.md5"))
}

func TestAlgorithmText(t *testing.T) {
	text, err := MD5.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "md5", string(text))

	var alg Algorithm
	require.NoError(t, alg.UnmarshalText([]byte("SHA1")))
	require.Equal(t, SHA1, alg)
	require.Error(t, alg.UnmarshalText([]byte("bogus")))
}
