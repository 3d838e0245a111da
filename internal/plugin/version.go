package plugin

import (
	"fmt"
	"regexp"
	"strconv"
)

// Version is a parsed semantic version (major.minor.patch).
// Prerelease and build suffixes are accepted on input but ignored
// when comparing; the framework compatibility check only needs the
// numeric fields.
type Version struct {
	Major int
	Minor int
	Patch int
}

// versionPattern validates version strings (simplified semver).
var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// ParseVersion parses a semantic version string.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater
// than other, comparing field by field.
func (v Version) Compare(other Version) int {
	if c := cmpInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmpInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	return cmpInt(v.Patch, other.Patch)
}

// AtLeast returns true if v >= other.
func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

// String returns the version in major.minor.patch form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
