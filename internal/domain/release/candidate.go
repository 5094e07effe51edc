package release

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// Asset is one downloadable file of a release.
type Asset struct {
	// Name is the remote file name.
	Name string
	// URL is where the bytes are fetched from.
	URL string
	// Accept is sent as the Accept header when set.
	Accept string
	// Digest is the published "sha256:<hex>" digest, if the source has one.
	Digest string
}

// Release is the opaque handle a catalog attaches to a candidate.
type Release interface {
	// Tag is the raw remote name of the release: the git tag or the metadata version string.
	Tag() string
	// Asset resolves the downloadable file for an entry of this release.
	Asset(ctx context.Context, entry Entry) (*Asset, error)
}

// Candidate is a remotely discovered version with a handle to its artifacts.
type Candidate struct {
	Version Version
	Release Release
}

// Entry is one managed (remote file, local output path) pair.
type Entry struct {
	// RemoteName is the remote file name, possibly a text/template.
	RemoteName string
	// Artifact is the artifact id for metadata-based sources.
	Artifact string
	// OutputPath is the local destination.
	OutputPath string
}

// NameData is the data available to RemoteName templates.
type NameData struct {
	Version  string
	Tag      string
	Artifact string
	Channel  string
}

// Render returns a copy of e with RemoteName evaluated against data.
func (e Entry) Render(data NameData) (Entry, error) {
	tmpl, err := template.New("release_file").Option("missingkey=error").Parse(e.RemoteName)
	if err != nil {
		return Entry{}, fmt.Errorf("parse remote name %q: %w", e.RemoteName, err)
	}

	data.Artifact = e.Artifact

	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, data); err != nil {
		return Entry{}, fmt.Errorf("render remote name %q: %w", e.RemoteName, err)
	}

	rendered := e
	rendered.RemoteName = buf.String()

	return rendered, nil
}
