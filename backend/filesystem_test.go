package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFilesystem(t *testing.T) {
	root := filepath.Join(t.TempDir(), "repository")

	fs, err := NewFilesystem(root)
	require.NoError(t, err)
	require.Equal(t, root, fs.Root())

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestFilesystemWriteRead(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	key := "org/example/foo/1.0/foo-1.0.pom"
	data := []byte("<project/>")

	require.NoError(t, fs.Write(ctx, key, bytes.NewReader(data)))

	rc, err := fs.Read(ctx, key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFilesystemReadNotFound(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	_, err := fs.Read(ctx, "org/example/missing.jar")
	require.ErrorIs(t, err, ErrNotFound)

	// directories are not readable keys
	require.NoError(t, fs.Write(ctx, "org/example/foo/1.0/foo-1.0.jar", strings.NewReader("jar")))
	_, err = fs.Read(ctx, "org/example/foo/1.0")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemExists(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	key := "org/example/foo/maven-metadata.xml"

	exists, err := fs.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, fs.Write(ctx, key, strings.NewReader("<metadata/>")))

	exists, err = fs.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = fs.Exists(ctx, "org/example/foo")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFilesystemDelete(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	key := "org/example/foo/1.0/foo-1.0.jar.sha1"

	require.NoError(t, fs.Write(ctx, key, strings.NewReader("digest")))
	require.NoError(t, fs.Delete(ctx, key))

	exists, _ := fs.Exists(ctx, key)
	require.False(t, exists)

	// idempotent
	require.NoError(t, fs.Delete(ctx, key))
}

func TestFilesystemSize(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	data := []byte("artifact bytes")

	require.NoError(t, fs.Write(ctx, "a/b.jar", bytes.NewReader(data)))

	size, err := fs.Size(ctx, "a/b.jar")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), size)

	_, err = fs.Size(ctx, "a/missing.jar")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemList(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	keys := []string{
		"org/example/foo/maven-metadata.xml",
		"org/example/foo/1.0/foo-1.0.jar",
		"org/example/foo/1.0/foo-1.0.pom",
		"org/example/bar/2.0/bar-2.0.pom",
	}
	for _, key := range keys {
		require.NoError(t, fs.Write(ctx, key, strings.NewReader("data")))
	}

	all, err := fs.List(ctx, "")
	require.NoError(t, err)
	sort.Strings(all)
	sort.Strings(keys)
	require.Equal(t, keys, all)

	foo, err := fs.List(ctx, "org/example/foo/")
	require.NoError(t, err)
	sort.Strings(foo)
	require.Equal(t, []string{
		"org/example/foo/1.0/foo-1.0.jar",
		"org/example/foo/1.0/foo-1.0.pom",
		"org/example/foo/maven-metadata.xml",
	}, foo)

	single, err := fs.List(ctx, "org/example/bar/2.0/bar-2.0.pom")
	require.NoError(t, err)
	require.Equal(t, []string{"org/example/bar/2.0/bar-2.0.pom"}, single)

	missing, err := fs.List(ctx, "com/missing")
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestFilesystemListSkipsInFlightWrites(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "g/a/1.0/a-1.0.jar", strings.NewReader("jar")))
	w, err := fs.Writer(ctx, "g/a/1.0/a-1.0.pom")
	require.NoError(t, err)
	_, err = w.Write([]byte("<project/>"))
	require.NoError(t, err)

	keys, err := fs.List(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, []string{"g/a/1.0/a-1.0.jar"}, keys)

	entries, err := fs.Children(ctx, "g/a/1.0")
	require.NoError(t, err)
	require.Equal(t, []Entry{{Name: "a-1.0.jar"}}, entries)

	require.NoError(t, w.Close())
}

func TestFilesystemChildren(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	for _, key := range []string{
		"org/example/foo/maven-metadata.xml",
		"org/example/foo/1.0/foo-1.0.pom",
		"org/example/foo/2.0/foo-2.0.pom",
	} {
		require.NoError(t, fs.Write(ctx, key, strings.NewReader("x")))
	}

	want := []Entry{
		{Name: "1.0", IsDir: true},
		{Name: "2.0", IsDir: true},
		{Name: "maven-metadata.xml"},
	}

	entries, err := fs.Children(ctx, "org/example/foo")
	require.NoError(t, err)
	require.Equal(t, want, entries)

	// derived listing for backends without their own
	derived, err := Children(ctx, listOnly{fs}, "org/example/foo")
	require.NoError(t, err)
	require.Equal(t, want, derived)

	none, err := fs.Children(ctx, "org/missing")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestFilesystemWriter(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	key := "org/example/foo/maven-metadata.xml"
	data := []byte("<metadata/>")

	w, err := fs.Writer(ctx, key)
	require.NoError(t, err)

	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, w.Close())

	rc, err := fs.Read(ctx, key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	got, _ := io.ReadAll(rc)
	require.Equal(t, data, got)
}

func TestFilesystemAbortedWriteKeepsOriginal(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	key := "org/example/foo/maven-metadata.xml"
	original := []byte("<metadata>original</metadata>")

	require.NoError(t, fs.Write(ctx, key, bytes.NewReader(original)))

	w, err := fs.Writer(ctx, key)
	require.NoError(t, err)
	_, _ = w.Write([]byte("<meta"))
	require.NoError(t, w.(*atomicWriter).Abort())

	rc, err := fs.Read(ctx, key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	got, _ := io.ReadAll(rc)
	require.Equal(t, original, got)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestFilesystemFailedWriteKeepsOriginal(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	key := "org/example/foo/foo-1.0.jar.md5"

	require.NoError(t, fs.Write(ctx, key, strings.NewReader("original")))
	err := fs.Write(ctx, key, brokenReader{})
	require.ErrorContains(t, err, "connection reset")

	rc, err := fs.Read(ctx, key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	got, _ := io.ReadAll(rc)
	require.Equal(t, "original", string(got))

	keys, err := fs.List(ctx, "org/example/foo")
	require.NoError(t, err)
	require.Equal(t, []string{key}, keys)
}

func TestFilesystemRejectsEscapingKeys(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	err := fs.Write(ctx, "../outside.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = fs.Read(ctx, "org/../../etc/passwd")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"org/example/foo", "org/example/foo"},
		{"/org/example/foo/", "org/example/foo"},
		{`org\example\foo`, "org/example/foo"},
		{"org//example/./foo", "org/example/foo"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := CleanKey(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := CleanKey("org/../..")
	require.ErrorIs(t, err, ErrInvalidKey)
}

// listOnly hides the DirectoryBackend implementation of the wrapped backend.
type listOnly struct {
	Backend
}

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return fs
}
