package release

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrParse is returned when text cannot be read as a version.
var ErrParse = errors.New("parse version")

// versionGroups is the number of integer components in a Version.
const versionGroups = 3

// Version is an immutable major.minor.patch triple.
// Values are obtained by parsing; the zero value is the "never installed" sentinel.
type Version struct {
	major int
	minor int
	patch int
}

// Parse reads a "major.minor.patch" string as stored in the version marker.
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != versionGroups {
		return Version{}, fmt.Errorf("%w: %q: want %d dot-separated integers", ErrParse, s, versionGroups)
	}

	return ParseGroups(parts)
}

// ParseGroups builds a Version from the first three integer groups,
// typically the capture groups of a channel tag pattern.
func ParseGroups(groups []string) (Version, error) {
	if len(groups) < versionGroups {
		return Version{}, fmt.Errorf("%w: got %d integer groups, want %d", ErrParse, len(groups), versionGroups)
	}

	var numbers [versionGroups]int

	for i := range versionGroups {
		n, err := parseComponent(groups[i])
		if err != nil {
			return Version{}, err
		}

		numbers[i] = n
	}

	return Version{major: numbers[0], minor: numbers[1], patch: numbers[2]}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return v
}

// FromSemver keeps the numeric core of a semver version and drops pre-release and build metadata.
func FromSemver(sv *semver.Version) (Version, error) {
	if sv == nil {
		return Version{}, fmt.Errorf("%w: nil semver", ErrParse)
	}

	return ParseGroups([]string{
		strconv.FormatUint(sv.Major(), 10),
		strconv.FormatUint(sv.Minor(), 10),
		strconv.FormatUint(sv.Patch(), 10),
	})
}

// parseComponent accepts only ASCII digits so signs and spaces are rejected.
func parseComponent(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty component", ErrParse)
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q is not a non-negative integer", ErrParse, s)
		}
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrParse, s, err)
	}

	return n, nil
}

// Major returns the major component.
func (v Version) Major() int { return v.major }

// Minor returns the minor component.
func (v Version) Minor() int { return v.minor }

// Patch returns the patch component.
func (v Version) Patch() int { return v.patch }

// IsZero reports whether v is the "never installed" sentinel 0.0.0.
func (v Version) IsZero() bool {
	return v.major == 0 && v.minor == 0 && v.patch == 0
}

// Compare returns -1, 0 or +1 comparing major, then minor, then patch.
func (v Version) Compare(other Version) int {
	if c := cmp.Compare(v.major, other.major); c != 0 {
		return c
	}

	if c := cmp.Compare(v.minor, other.minor); c != 0 {
		return c
	}

	return cmp.Compare(v.patch, other.patch)
}

// GreaterThan reports whether v orders after other.
func (v Version) GreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// String renders the marker form "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

// semver converts v for constraint checks.
func (v Version) semver() *semver.Version {
	return semver.New(uint64(v.major), uint64(v.minor), uint64(v.patch), "", "") //nolint:gosec // Components are non-negative.
}
