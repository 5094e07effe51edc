package release

import (
	"slices"
)

// Policy decides which candidates are installable on top of the installed version.
type Policy struct {
	// Installed is the version recorded in the marker; zero means nothing is installed.
	Installed Version
	// AllowMajorUpdates lets candidates cross a major version boundary.
	AllowMajorUpdates bool
	// Channel optionally narrows candidates with its semver constraint.
	Channel *Channel
}

// Accepts applies the major-version gate and the channel constraint.
// With nothing installed every version passes the gate.
func (p Policy) Accepts(v Version) bool {
	if !p.Installed.IsZero() && !p.AllowMajorUpdates && v.Major() != p.Installed.Major() {
		return false
	}

	return p.Channel.Allows(v)
}

// Filter keeps accepted candidates and orders them newest first.
// Candidates with equal versions keep their input order, and only the
// first of them survives.
func (p Policy) Filter(candidates []Candidate) []Candidate {
	accepted := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		if p.Accepts(c.Version) {
			accepted = append(accepted, c)
		}
	}

	slices.SortStableFunc(accepted, func(a, b Candidate) int {
		return b.Version.Compare(a.Version)
	})

	return slices.CompactFunc(accepted, func(a, b Candidate) bool {
		return a.Version.Compare(b.Version) == 0
	})
}

// Select returns the greatest accepted candidate when it is newer than the
// installed version. Equal or older candidates are not an update.
func (p Policy) Select(candidates []Candidate) (Candidate, bool) {
	accepted := p.Filter(candidates)
	if len(accepted) == 0 {
		return Candidate{}, false
	}

	best := accepted[0]
	if !best.Version.GreaterThan(p.Installed) {
		return Candidate{}, false
	}

	return best, true
}
