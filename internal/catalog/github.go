package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/oshokin/auto-updater/internal/domain/release"
	"github.com/oshokin/auto-updater/internal/logger"
	"github.com/oshokin/auto-updater/internal/transport"
)

const (
	// DefaultGitHubAPIURL is the public GitHub REST endpoint.
	DefaultGitHubAPIURL = "https://api.github.com"

	// githubJSON is the media type of GitHub REST responses.
	githubJSON = "application/vnd.github+json"
	// octetStream makes the asset endpoint return bytes instead of JSON.
	octetStream = "application/octet-stream"
	// perPage is the page size requested from list endpoints.
	perPage = 100
	// maxPages stops pagination against hosts that ignore per_page.
	maxPages = 50
)

// githubRelease is the subset of the release payload the updater needs.
type githubRelease struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	Draft   bool   `json:"draft"`
}

// githubAsset is the subset of the asset payload the updater needs.
type githubAsset struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

// GitHubOptions configures a GitHubCatalog.
type GitHubOptions struct {
	// APIURL is the REST base, DefaultGitHubAPIURL when empty. A proxy may be used here.
	APIURL string
	// Repository is "owner/name".
	Repository string
	// Channel supplies the tag pattern.
	Channel *release.Channel
}

// GitHubCatalog lists candidates from tagged releases.
type GitHubCatalog struct {
	client     *transport.Client
	apiURL     string
	repository string
	channel    *release.Channel
}

// NewGitHub creates a tag-based catalog.
func NewGitHub(client *transport.Client, opts GitHubOptions) *GitHubCatalog {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultGitHubAPIURL
	}

	return &GitHubCatalog{
		client:     client,
		apiURL:     apiURL,
		repository: opts.Repository,
		channel:    opts.Channel,
	}
}

// ListCandidates tries the latest release first and falls back to the full listing.
func (c *GitHubCatalog) ListCandidates(ctx context.Context, policy release.Policy) ([]release.Candidate, error) {
	ctx = logger.WithFields(ctx, "repository", c.repository, "channel", c.channel.Name())

	logger.DebugKV(ctx, "Listing releases", "api_url", c.apiURL, "authenticated", c.client.Authenticated())

	if candidate, ok := c.latest(ctx, policy); ok {
		return []release.Candidate{candidate}, nil
	}

	return c.all(ctx, policy)
}

// latest returns the latest release when it matches the channel and passes the gate.
func (c *GitHubCatalog) latest(ctx context.Context, policy release.Policy) (release.Candidate, bool) {
	endpoint, err := c.endpoint(nil, "releases", "latest")
	if err != nil {
		logger.WarnKV(ctx, "Cannot build latest release URL, falling back to release list", "error", err)

		return release.Candidate{}, false
	}

	var rel githubRelease
	if err = c.client.GetJSON(ctx, endpoint, githubJSON, &rel); err != nil {
		logger.InfoKV(ctx, "Failed to get latest release, falling back to release list", "error", err)

		return release.Candidate{}, false
	}

	version, ok, err := c.channel.MatchTag(rel.TagName)

	switch {
	case err != nil:
		logger.InfoKV(ctx, "Latest release tag is malformed, falling back to release list", "tag", rel.TagName, "error", err)
	case !ok:
		logger.InfoKV(ctx, "Latest release does not match channel, falling back to release list", "tag", rel.TagName)
	case !policy.Accepts(version):
		logger.InfoKV(ctx, "Latest release rejected by update policy, falling back to release list",
			"tag", rel.TagName, "version", version.String(), "installed", policy.Installed.String())
	default:
		logger.InfoKV(ctx, "Found matching latest release", "tag", rel.TagName, "version", version.String())

		return release.Candidate{Version: version, Release: c.newRelease(rel)}, true
	}

	return release.Candidate{}, false
}

// all lists every release, keeps those matching the channel and the gate, newest first.
// A matching tag whose groups are not integers aborts the listing.
func (c *GitHubCatalog) all(ctx context.Context, policy release.Policy) ([]release.Candidate, error) {
	logger.InfoKV(ctx, "Loading release list")

	var candidates []release.Candidate

	for page := 1; page <= maxPages; page++ {
		endpoint, err := c.endpoint(pageQuery(page), "releases")
		if err != nil {
			return nil, err
		}

		var releases []githubRelease
		if err = c.client.GetJSON(ctx, endpoint, githubJSON, &releases); err != nil {
			return nil, fmt.Errorf("list releases of %s: %w", c.repository, err)
		}

		for _, rel := range releases {
			if rel.Draft {
				continue
			}

			version, ok, err := c.channel.MatchTag(rel.TagName)
			if err != nil {
				return nil, err
			}

			if !ok {
				logger.DebugKV(ctx, "Tag does not match channel", "tag", rel.TagName)

				continue
			}

			candidates = append(candidates, release.Candidate{Version: version, Release: c.newRelease(rel)})
		}

		if len(releases) < perPage {
			break
		}
	}

	accepted := policy.Filter(candidates)

	logger.InfoKV(ctx, "Release list loaded", "matching", len(candidates), "accepted", len(accepted))

	return accepted, nil
}

// endpoint builds "<api>/repos/<owner>/<name>/<elem...>" with an optional query.
func (c *GitHubCatalog) endpoint(query url.Values, elem ...string) (string, error) {
	joined, err := url.JoinPath(c.apiURL, append([]string{"repos", c.repository}, elem...)...)
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}

	if len(query) == 0 {
		return joined, nil
	}

	return joined + "?" + query.Encode(), nil
}

func pageQuery(page int) url.Values {
	return url.Values{
		"per_page": {strconv.Itoa(perPage)},
		"page":     {strconv.Itoa(page)},
	}
}

func (c *GitHubCatalog) newRelease(rel githubRelease) *githubReleaseHandle {
	return &githubReleaseHandle{catalog: c, id: rel.ID, tag: rel.TagName}
}

// githubReleaseHandle resolves assets of one release. Assets are listed once and shared by entries.
type githubReleaseHandle struct {
	catalog *GitHubCatalog
	id      int64
	tag     string

	mu     sync.Mutex
	assets []githubAsset
	loaded bool
}

// Tag returns the git tag of the release.
func (r *githubReleaseHandle) Tag() string {
	return r.tag
}

// Asset finds the asset named by entry.RemoteName and returns its download endpoint.
func (r *githubReleaseHandle) Asset(ctx context.Context, entry release.Entry) (*release.Asset, error) {
	assets, err := r.listAssets(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range assets {
		if a.Name != entry.RemoteName {
			continue
		}

		endpoint, err := r.catalog.endpoint(nil, "releases", "assets", strconv.FormatInt(a.ID, 10))
		if err != nil {
			return nil, err
		}

		return &release.Asset{
			Name:   a.Name,
			URL:    endpoint,
			Accept: octetStream,
			Digest: a.Digest,
		}, nil
	}

	return nil, fmt.Errorf("%w: %q in release %s", ErrAssetNotFound, entry.RemoteName, r.tag)
}

func (r *githubReleaseHandle) listAssets(ctx context.Context) ([]githubAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return r.assets, nil
	}

	var assets []githubAsset

	for page := 1; page <= maxPages; page++ {
		endpoint, err := r.catalog.endpoint(pageQuery(page), "releases", strconv.FormatInt(r.id, 10), "assets")
		if err != nil {
			return nil, err
		}

		var batch []githubAsset
		if err = r.catalog.client.GetJSON(ctx, endpoint, githubJSON, &batch); err != nil {
			return nil, fmt.Errorf("list assets of release %s: %w", r.tag, err)
		}

		assets = append(assets, batch...)

		if len(batch) < perPage {
			break
		}
	}

	r.assets = assets
	r.loaded = true

	return assets, nil
}
