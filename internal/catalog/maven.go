package catalog

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/oshokin/auto-updater/internal/domain/release"
	"github.com/oshokin/auto-updater/internal/logger"
	"github.com/oshokin/auto-updater/internal/transport"
)

const (
	// metadataFile is the well-known per-artifact metadata document.
	metadataFile = "maven-metadata.xml"
	// xmlAccept is sent when fetching metadata.
	xmlAccept = "application/xml"
)

// errNoArtifacts is returned when the catalog has nothing to look up.
var errNoArtifacts = errors.New("no artifacts configured")

// mavenMetadata is the part of maven-metadata.xml the updater reads.
type mavenMetadata struct {
	XMLName    xml.Name `xml:"metadata"`
	Versioning struct {
		Latest string `xml:"latest"`
	} `xml:"versioning"`
}

// MavenOptions configures a MavenCatalog.
type MavenOptions struct {
	// BaseURL is the repository host, e.g. "https://repo.example.com".
	BaseURL string
	// Channel is the repository name under BaseURL, e.g. "releases" or "snapshots".
	Channel string
	// GroupID is the dotted group, e.g. "app.simplecloud".
	GroupID string
	// Artifacts are tried in order until one has readable metadata.
	Artifacts []string
}

// MavenCatalog resolves the latest version from repository metadata.
type MavenCatalog struct {
	client    *transport.Client
	baseURL   string
	channel   string
	groupPath string
	artifacts []string
}

// NewMaven creates a metadata-based catalog.
func NewMaven(client *transport.Client, opts MavenOptions) *MavenCatalog {
	return &MavenCatalog{
		client:    client,
		baseURL:   opts.BaseURL,
		channel:   opts.Channel,
		groupPath: strings.ReplaceAll(opts.GroupID, ".", "/"),
		artifacts: opts.Artifacts,
	}
}

// ListCandidates returns the single latest version. Artifacts are tried in
// order and the first readable metadata document wins.
func (c *MavenCatalog) ListCandidates(ctx context.Context, _ release.Policy) ([]release.Candidate, error) {
	if len(c.artifacts) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrMetadata, errNoArtifacts)
	}

	var lastErr error

	for _, artifact := range c.artifacts {
		latest, err := c.LatestVersion(ctx, artifact)
		if err != nil {
			logger.ErrorKV(ctx, "Failed to fetch latest version", "artifact", artifact, "error", err)

			lastErr = err

			continue
		}

		parsed, err := semver.NewVersion(latest)
		if err != nil {
			lastErr = fmt.Errorf("%w: %s: latest %q: %w", ErrMetadata, artifact, latest, err)
			logger.ErrorKV(ctx, "Latest version is not a semantic version", "artifact", artifact, "latest", latest)

			continue
		}

		version, err := release.FromSemver(parsed)
		if err != nil {
			lastErr = err

			continue
		}

		logger.InfoKV(ctx, "Resolved latest version from metadata", "artifact", artifact, "latest", latest)

		return []release.Candidate{{
			Version: version,
			Release: &mavenRelease{catalog: c, version: latest},
		}}, nil
	}

	return nil, lastErr
}

// LatestVersion reads the <latest> field of an artifact's metadata document.
func (c *MavenCatalog) LatestVersion(ctx context.Context, artifactID string) (string, error) {
	endpoint, err := c.artifactURL(artifactID, metadataFile)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMetadata, err)
	}

	resp, err := c.client.Get(ctx, endpoint, xmlAccept)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMetadata, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	var metadata mavenMetadata
	if err = xml.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", ErrMetadata, endpoint, err)
	}

	latest := strings.TrimSpace(metadata.Versioning.Latest)
	if latest == "" {
		return "", fmt.Errorf("%w: %s has no <latest> version", ErrMetadata, endpoint)
	}

	return latest, nil
}

// artifactURL builds "<base>/<channel>/<groupPath>/<artifact>/<suffix...>".
func (c *MavenCatalog) artifactURL(artifactID string, suffix ...string) (string, error) {
	elem := append([]string{c.channel, c.groupPath, artifactID}, suffix...)

	joined, err := url.JoinPath(c.baseURL, elem...)
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}

	return joined, nil
}

// mavenRelease is a version published in the repository.
type mavenRelease struct {
	catalog *MavenCatalog
	version string
}

// Tag returns the version string exactly as the metadata lists it.
func (r *mavenRelease) Tag() string {
	return r.version
}

// Asset points at "<artifact>/<version>/<remote name>".
func (r *mavenRelease) Asset(_ context.Context, entry release.Entry) (*release.Asset, error) {
	if entry.Artifact == "" {
		return nil, fmt.Errorf("%w: entry %s has no artifact id", ErrAssetNotFound, entry.OutputPath)
	}

	endpoint, err := r.catalog.artifactURL(entry.Artifact, r.version, entry.RemoteName)
	if err != nil {
		return nil, err
	}

	return &release.Asset{
		Name: entry.RemoteName,
		URL:  endpoint,
	}, nil
}
