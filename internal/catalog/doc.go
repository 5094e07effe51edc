// Package catalog lists candidate versions from remote sources.
//
// GitHubCatalog reads tagged releases from a GitHub-compatible API: it tries
// the cheap "latest release" endpoint first and falls back to listing every
// release when that one does not fit the channel or the major-version gate.
// MavenCatalog reads the single <latest> pointer of a maven-metadata.xml
// document; there the channel is part of the repository path.
package catalog
