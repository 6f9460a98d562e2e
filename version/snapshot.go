package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SnapshotSuffix marks a generic snapshot version such as "1.0-SNAPSHOT".
const SnapshotSuffix = "SNAPSHOT"

// TimestampLayout is the layout of the timestamp embedded in unique
// snapshot versions.
const TimestampLayout = "20060102.150405"

var (
	uniqueSnapshotPattern = regexp.MustCompile(`^(.*)-([0-9]{8}\.[0-9]{6})-([0-9]+)$`)
	timestampPattern      = regexp.MustCompile(`^([0-9]{8})\.([0-9]{6})$`)
)

// IsSnapshot reports whether v is a generic or unique snapshot.
func IsSnapshot(v string) bool {
	return IsUniqueSnapshot(v) || IsGenericSnapshot(v)
}

// IsGenericSnapshot reports whether v ends with SNAPSHOT.
func IsGenericSnapshot(v string) bool {
	return strings.HasSuffix(v, SnapshotSuffix)
}

// IsUniqueSnapshot reports whether v has the <base>-yyyyMMdd.HHmmss-N shape.
func IsUniqueSnapshot(v string) bool {
	return uniqueSnapshotPattern.MatchString(v)
}

// IsTimestamp reports whether s has the yyyyMMdd.HHmmss shape.
func IsTimestamp(s string) bool {
	return timestampPattern.MatchString(s)
}

// HasNumber reports whether v contains at least one digit.
func HasNumber(v string) bool {
	return strings.ContainsAny(v, "0123456789")
}

// UniqueSnapshot is a decomposed unique snapshot version.
type UniqueSnapshot struct {
	Base        string
	Timestamp   string
	BuildNumber int
}

// ParseUniqueSnapshot decomposes a unique snapshot version.
func ParseUniqueSnapshot(v string) (UniqueSnapshot, bool) {
	m := uniqueSnapshotPattern.FindStringSubmatch(v)
	if m == nil {
		return UniqueSnapshot{}, false
	}
	build, err := strconv.Atoi(m[3])
	if err != nil {
		return UniqueSnapshot{}, false
	}
	return UniqueSnapshot{Base: m[1], Timestamp: m[2], BuildNumber: build}, true
}

// Version reassembles the unique snapshot version string.
func (u UniqueSnapshot) Version() string {
	return fmt.Sprintf("%s-%s-%d", u.Base, u.Timestamp, u.BuildNumber)
}

// BaseVersion returns the generic snapshot version of the same build line.
func (u UniqueSnapshot) BaseVersion() string {
	return u.Base + "-" + SnapshotSuffix
}

// Time decodes the timestamp as UTC.
func (u UniqueSnapshot) Time() (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, u.Timestamp, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing snapshot timestamp %q: %w", u.Timestamp, err)
	}
	return t, nil
}

// BaseVersion maps a unique snapshot to its generic form and returns any
// other version unchanged.
func BaseVersion(v string) string {
	if u, ok := ParseUniqueSnapshot(v); ok {
		return u.BaseVersion()
	}
	return v
}
