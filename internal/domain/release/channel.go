package release

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrInvalidChannel is returned when a channel definition cannot be used.
	ErrInvalidChannel = errors.New("invalid channel")
	// errTooFewGroups is returned for tag patterns without three capture groups.
	errTooFewGroups = errors.New("tag pattern must capture major, minor and patch")
)

// Channel is a named update track. Tag-based sources match release tags
// against its pattern; metadata-based sources encode the channel in the
// repository path and leave the pattern empty.
type Channel struct {
	name       string
	pattern    *regexp.Regexp
	constraint *semver.Constraints
}

// NewChannel compiles a channel definition. Both tagPattern and constraint may be empty.
func NewChannel(name, tagPattern, constraint string) (*Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidChannel)
	}

	ch := &Channel{name: name}

	if tagPattern != "" {
		re, err := regexp.Compile(tagPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidChannel, name, err)
		}

		if re.NumSubexp() < versionGroups {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidChannel, name, errTooFewGroups)
		}

		ch.pattern = re
	}

	if strings.TrimSpace(constraint) != "" {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: constraint: %w", ErrInvalidChannel, name, err)
		}

		ch.constraint = c
	}

	return ch, nil
}

// Name returns the channel name, e.g. "release" or "rc".
func (c *Channel) Name() string {
	return c.name
}

// HasPattern reports whether the channel filters release tags.
func (c *Channel) HasPattern() bool {
	return c.pattern != nil
}

// MatchTag extracts a version from a release tag.
// A tag that does not match the pattern yields ok == false and no error:
// foreign tags are expected and simply skipped. A match whose groups are
// not integers is an ErrParse error.
func (c *Channel) MatchTag(tag string) (Version, bool, error) {
	if c.pattern == nil {
		return Version{}, false, fmt.Errorf("%w: channel %s has no tag pattern", ErrInvalidChannel, c.name)
	}

	groups := c.pattern.FindStringSubmatch(tag)
	if groups == nil {
		return Version{}, false, nil
	}

	v, err := ParseGroups(groups[1:])
	if err != nil {
		return Version{}, false, fmt.Errorf("tag %q: %w", tag, err)
	}

	return v, true, nil
}

// Allows reports whether v satisfies the optional channel constraint.
func (c *Channel) Allows(v Version) bool {
	if c == nil || c.constraint == nil {
		return true
	}

	return c.constraint.Check(v.semver())
}
