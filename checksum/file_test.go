package checksum

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/maven-repo/backend"
)

const artifactKey = "org/example/foo/1.0/foo-1.0.jar"

func newTestStorage(t *testing.T) *backend.Filesystem {
	t.Helper()
	fs, err := backend.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return fs
}

func putFile(t *testing.T, storage backend.Backend, key, content string) {
	t.Helper()
	require.NoError(t, storage.Write(context.Background(), key, strings.NewReader(content)))
}

func readFile(t *testing.T, storage backend.Backend, key string) string {
	t.Helper()
	rc, err := storage.Read(context.Background(), key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestFileCalculate(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)

	f := NewFile(storage, artifactKey)
	got, err := f.Calculate(context.Background(), SHA1, MD5)
	require.NoError(t, err)
	require.Equal(t, map[Algorithm]string{
		SHA1: helloWorldDigests[SHA1],
		MD5:  helloWorldDigests[MD5],
	}, got)

	require.Equal(t, artifactKey+".sha1", f.ChecksumKey(SHA1))
	require.Equal(t, "foo-1.0.jar", f.Name())
}

func TestFileWithoutChecksumsIsInvalid(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)
	ctx := context.Background()

	f := NewFile(storage, artifactKey)
	out, err := f.Validate(ctx, DefaultAlgorithms)
	require.NoError(t, err)
	require.False(t, out.Valid)
	require.ErrorIs(t, out.Reason, ErrNoChecksums)

	valid, err := f.IsValidChecksums(ctx, DefaultAlgorithms, true)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestFixChecksumsCreatesThenLeavesUntouched(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)
	ctx := context.Background()
	f := NewFile(storage, artifactKey)

	list, err := f.FixChecksums(ctx, DefaultAlgorithms)
	require.NoError(t, err)
	require.Equal(t, StatusCreated, list.Status(SHA1))
	require.Equal(t, StatusCreated, list.Status(MD5))
	require.Equal(t, StatusCreated, list.Total())
	require.True(t, list.Changed())

	require.Equal(t, helloWorldDigests[SHA1]+"  foo-1.0.jar", readFile(t, storage, artifactKey+".sha1"))
	require.Equal(t, helloWorldDigests[MD5]+"  foo-1.0.jar", readFile(t, storage, artifactKey+".md5"))

	valid, err := f.IsValidChecksums(ctx, DefaultAlgorithms, true)
	require.NoError(t, err)
	require.True(t, valid)

	list, err = f.FixChecksums(ctx, DefaultAlgorithms)
	require.NoError(t, err)
	require.Equal(t, StatusNone, list.Total())
	require.False(t, list.Changed())
	require.Equal(t, []Algorithm{SHA1, MD5}, list.Algorithms())
}

func TestFixChecksumsRewritesBadContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "this is not a checksum"},
		{"wrong digest", strings.Repeat("0", 40) + "  foo-1.0.jar"},
		{"references other file", helloWorldDigests[SHA1] + "  bar-1.0.jar"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newTestStorage(t)
			putFile(t, storage, artifactKey, helloWorld)
			putFile(t, storage, artifactKey+".sha1", tt.content)
			ctx := context.Background()
			f := NewFile(storage, artifactKey)

			list, err := f.FixChecksums(ctx, []Algorithm{SHA1})
			require.NoError(t, err)
			require.Equal(t, StatusUpdated, list.Status(SHA1))
			require.Equal(t, helloWorldDigests[SHA1]+"  foo-1.0.jar", readFile(t, storage, artifactKey+".sha1"))

			valid, err := f.IsValidChecksum(ctx, SHA1, true)
			require.NoError(t, err)
			require.True(t, valid)
		})
	}
}

func TestFixChecksumsKeepsValidBSDFile(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)
	bsd := FormatBSD(SHA1, strings.ToUpper(helloWorldDigests[SHA1]), "foo-1.0.jar")
	putFile(t, storage, artifactKey+".sha1", bsd)

	list, err := NewFile(storage, artifactKey).FixChecksums(context.Background(), []Algorithm{SHA1})
	require.NoError(t, err)
	require.Equal(t, StatusNone, list.Status(SHA1))
	require.Equal(t, bsd, readFile(t, storage, artifactKey+".sha1"))
}

func TestFixChecksumsMissingReference(t *testing.T) {
	storage := newTestStorage(t)
	f := NewFile(storage, artifactKey)

	list, err := f.FixChecksums(context.Background(), DefaultAlgorithms)
	require.ErrorIs(t, err, ErrFileNotFound)
	require.Equal(t, StatusError, list.Total())

	exists, err := storage.Exists(context.Background(), artifactKey+".sha1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestValidateMismatch(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)
	putFile(t, storage, artifactKey+".sha1", FormatGNU(helloWorldDigests[SHA1], "foo-1.0.jar"))
	putFile(t, storage, artifactKey+".md5", FormatGNU(strings.Repeat("a", 32), "foo-1.0.jar"))
	ctx := context.Background()
	f := NewFile(storage, artifactKey)

	out, err := f.Validate(ctx, DefaultAlgorithms)
	require.NoError(t, err)
	require.False(t, out.Valid)
	require.ErrorIs(t, out.Reason, ErrChecksumMismatch)
	require.Len(t, out.Results, 2)
	require.True(t, out.Results[0].Valid)
	require.False(t, out.Results[1].Valid)

	// A mismatch is an answer, not an error, even when errors are requested.
	valid, err := f.IsValidChecksums(ctx, DefaultAlgorithms, true)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestValidateSkipsMissingSideFiles(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)
	putFile(t, storage, artifactKey+".md5", FormatGNU(helloWorldDigests[MD5], "foo-1.0.jar"))

	valid, err := NewFile(storage, artifactKey).IsValidChecksums(context.Background(), DefaultAlgorithms, false)
	require.NoError(t, err)
	require.True(t, valid)
}

func TestParseChecksumErrors(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)
	ctx := context.Background()
	f := NewFile(storage, artifactKey)

	_, err := f.ParseChecksum(ctx, SHA1)
	require.ErrorIs(t, err, ErrFileNotFound)

	putFile(t, storage, artifactKey+".sha1", helloWorldDigests[SHA1]+"  other-1.0.jar")
	_, err = f.ParseChecksum(ctx, SHA1)
	require.ErrorIs(t, err, ErrBadChecksumFileRef)

	putFile(t, storage, artifactKey+".sha1", "garbage")
	_, err = f.ParseChecksum(ctx, SHA1)
	require.ErrorIs(t, err, ErrBadChecksumFile)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, artifactKey+".sha1", verr.Path)
}

func TestIsValidChecksumsThrowOnError(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)
	putFile(t, storage, artifactKey+".sha1", helloWorldDigests[SHA1]+"  other-1.0.jar")
	ctx := context.Background()
	f := NewFile(storage, artifactKey)

	valid, err := f.IsValidChecksums(ctx, DefaultAlgorithms, false)
	require.NoError(t, err)
	require.False(t, valid)

	valid, err = f.IsValidChecksums(ctx, DefaultAlgorithms, true)
	require.ErrorIs(t, err, ErrBadChecksumFileRef)
	require.False(t, valid)
}

func TestMetadataChecksumReferencingProxyVariant(t *testing.T) {
	const key = "org/example/foo/maven-metadata.xml"
	storage := newTestStorage(t)
	putFile(t, storage, key, helloWorld)
	putFile(t, storage, key+".sha1", FormatGNU(helloWorldDigests[SHA1], "maven-metadata-central.xml"))
	ctx := context.Background()

	valid, err := NewFile(storage, key).IsValidChecksum(ctx, SHA1, true)
	require.NoError(t, err)
	require.True(t, valid)

	valid, err = NewFile(storage, key, WithReferencePolicy(StrictReferences{})).IsValidChecksum(ctx, SHA1, true)
	require.ErrorIs(t, err, ErrBadChecksumFileRef)
	require.False(t, valid)
}

func TestBareDigests(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)
	putFile(t, storage, artifactKey+".sha1", helloWorldDigests[SHA1]+"\n")
	ctx := context.Background()

	valid, err := NewFile(storage, artifactKey).IsValidChecksum(ctx, SHA1, true)
	require.ErrorIs(t, err, ErrBadChecksumFile)
	require.False(t, valid)

	f := NewFile(storage, artifactKey, WithBareDigests(true))
	valid, err = f.IsValidChecksum(ctx, SHA1, true)
	require.NoError(t, err)
	require.True(t, valid)

	list, err := f.FixChecksums(ctx, []Algorithm{SHA1})
	require.NoError(t, err)
	require.Equal(t, StatusNone, list.Status(SHA1))
}

func TestCreateChecksum(t *testing.T) {
	storage := newTestStorage(t)
	putFile(t, storage, artifactKey, helloWorld)
	putFile(t, storage, artifactKey+".md5", FormatBSD(MD5, helloWorldDigests[MD5], "foo-1.0.jar"))
	ctx := context.Background()

	got, err := NewFile(storage, artifactKey).CreateChecksum(ctx, MD5)
	require.NoError(t, err)
	require.Equal(t, helloWorldDigests[MD5], got)
	require.Equal(t, helloWorldDigests[MD5]+"  foo-1.0.jar", readFile(t, storage, artifactKey+".md5"))
}

// failingWrites fails writes to keys with the configured suffix until the
// failure budget is used up.
type failingWrites struct {
	backend.Backend
	suffix   string
	failures int
}

func (f *failingWrites) Write(ctx context.Context, key string, r io.Reader) error {
	if strings.HasSuffix(key, f.suffix) && f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	return f.Backend.Write(ctx, key, r)
}

func TestCreateChecksumRestoresPreviousOnFailure(t *testing.T) {
	fs := newTestStorage(t)
	putFile(t, fs, artifactKey, helloWorld)
	previous := "previous content"
	putFile(t, fs, artifactKey+".sha1", previous)

	storage := &failingWrites{Backend: fs, suffix: ".sha1", failures: 1}
	_, err := NewFile(storage, artifactKey).CreateChecksum(context.Background(), SHA1)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, previous, readFile(t, fs, artifactKey+".sha1"))
}

func TestFixChecksumsRecordsPerAlgorithmErrors(t *testing.T) {
	fs := newTestStorage(t)
	putFile(t, fs, artifactKey, helloWorld)

	storage := &failingWrites{Backend: fs, suffix: ".md5", failures: 1}
	list, err := NewFile(storage, artifactKey).FixChecksums(context.Background(), DefaultAlgorithms)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, StatusCreated, list.Status(SHA1))
	require.Equal(t, StatusError, list.Status(MD5))
	require.Error(t, list.Error(MD5))
	require.Equal(t, StatusError, list.Total())
}
