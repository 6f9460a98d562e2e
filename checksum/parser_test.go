package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseContent(t *testing.T) {
	const sha1Hex = "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"

	tests := []struct {
		name string
		alg  Algorithm
		text string
		want FileContent
	}{
		{
			name: "gnu",
			alg:  SHA1,
			text: sha1Hex + "  foo-1.0.jar",
			want: FileContent{Checksum: sha1Hex, FileReference: "foo-1.0.jar", Format: GNUFormat},
		},
		{
			name: "gnu binary marker",
			alg:  SHA1,
			text: sha1Hex + " *foo-1.0.jar\n",
			want: FileContent{Checksum: sha1Hex, FileReference: "foo-1.0.jar", Format: GNUFormat},
		},
		{
			name: "gnu with path",
			alg:  SHA1,
			text: sha1Hex + "  /home/build/target/foo-1.0.jar",
			want: FileContent{Checksum: sha1Hex, FileReference: "/home/build/target/foo-1.0.jar", Format: GNUFormat},
		},
		{
			name: "bsd",
			alg:  SHA1,
			text: "SHA1 (foo-1.0.jar) = " + sha1Hex,
			want: FileContent{Checksum: sha1Hex, FileReference: "foo-1.0.jar", Format: BSDFormat},
		},
		{
			name: "bsd compact",
			alg:  MD5,
			text: "MD5(foo-1.0.jar)=5eb63bbbe01eeed093cb22bb8f5acdc3",
			want: FileContent{Checksum: "5eb63bbbe01eeed093cb22bb8f5acdc3", FileReference: "foo-1.0.jar", Format: BSDFormat},
		},
		{
			name: "bsd split over lines",
			alg:  SHA1,
			text: "SHA1 (foo-1.0.jar)\n= " + sha1Hex + "\r\n",
			want: FileContent{Checksum: sha1Hex, FileReference: "foo-1.0.jar", Format: BSDFormat},
		},
		{
			name: "bsd tag of another algorithm falls back to raw",
			alg:  SHA1,
			text: "MD5 (foo-1.0.jar) = 5eb63bbbe01eeed093cb22bb8f5acdc3",
			want: FileContent{Checksum: "MD5 (foo-1.0.jar) = 5eb63bbbe01eeed093cb22bb8f5acdc3"},
		},
		{
			name: "bare digest",
			alg:  SHA1,
			text: sha1Hex + "\n",
			want: FileContent{Checksum: sha1Hex},
		},
		{
			name: "garbage",
			alg:  MD5,
			text: "  not a checksum  ",
			want: FileContent{Checksum: "not a checksum"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseContent(tt.alg, tt.text)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.want.Format != UnknownFormat, got.FormatMatch())
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	const md5Hex = "5eb63bbbe01eeed093cb22bb8f5acdc3"

	gnu := ParseContent(MD5, FormatGNU(md5Hex, "bar-2.0.pom"))
	require.Equal(t, FileContent{Checksum: md5Hex, FileReference: "bar-2.0.pom", Format: GNUFormat}, gnu)

	bsd := ParseContent(MD5, FormatBSD(MD5, md5Hex, "bar-2.0.pom"))
	require.Equal(t, FileContent{Checksum: md5Hex, FileReference: "bar-2.0.pom", Format: BSDFormat}, bsd)

	require.Equal(t, "gnu", gnu.Format.String())
	require.Equal(t, "bsd", bsd.Format.String())
	require.Equal(t, "unknown", ParseContent(MD5, "garbage").Format.String())
}

func TestStrictReferences(t *testing.T) {
	tests := []struct {
		key       string
		reference string
		want      bool
	}{
		{"org/example/foo/1.0/foo-1.0.jar", "foo-1.0.jar", true},
		{"org/example/foo/1.0/foo-1.0.jar", "-", true},
		{"org/example/foo/1.0/foo-1.0.jar", "/tmp/build/foo-1.0.jar", true},
		{"org/example/foo/1.0/foo-1.0.jar", `C:\build\foo-1.0.jar`, true},
		{"org/example/foo/1.0/foo-1.0.jar", "xfoo-1.0.jar", false},
		{"org/example/foo/1.0/foo-1.0.jar", "foo-1.0.pom", false},
		{"org/example/foo/maven-metadata.xml", "maven-metadata-central.xml", false},
	}
	for _, tt := range tests {
		t.Run(tt.reference, func(t *testing.T) {
			require.Equal(t, tt.want, StrictReferences{}.Matches(tt.key, tt.reference))
		})
	}
}

func TestMetadataReferences(t *testing.T) {
	policy := DefaultReferencePolicy()

	tests := []struct {
		name      string
		key       string
		reference string
		want      bool
	}{
		{"canonical", "org/example/foo/maven-metadata.xml", "maven-metadata.xml", true},
		{"proxy variant reference", "org/example/foo/maven-metadata.xml", "maven-metadata-central.xml", true},
		{"variant checked against canonical", "org/example/foo/maven-metadata-central.xml", "maven-metadata.xml", true},
		{"path to variant", "org/example/foo/maven-metadata.xml", "/srv/repo/org/example/foo/maven-metadata-jboss.xml", true},
		{"unrelated name", "org/example/foo/maven-metadata.xml", "foo-1.0.pom", false},
		{"artifacts stay strict", "org/example/foo/1.0/foo-1.0.jar", "maven-metadata.xml", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, policy.Matches(tt.key, tt.reference))
		})
	}
}

func TestNewMetadataReferencesInvalidPattern(t *testing.T) {
	_, err := NewMetadataReferences("maven-metadata(")
	require.Error(t, err)
}
