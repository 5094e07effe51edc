package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/auto-updater/internal/domain/release"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

// TestLoad_GitHubDefaults fills in every optional field.
func TestLoad_GitHubDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "application.yml", `
github:
  repository: acme/app
files:
  - release_file: app-{{ .Version }}.jar
    output_file: lib/app.jar
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, SourceGitHub, cfg.Source)
	require.Equal(t, DefaultGitHubAPIURL, cfg.GitHub.APIURL)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	require.Equal(t, DefaultBaseDelay, cfg.Retry.BaseDelay)
	require.Equal(t, 1, cfg.ParallelDownloads)
	require.Len(t, cfg.Files, 1)
}

// TestLoad_SingleFileShorthand accepts the flat release_file/output_file form.
func TestLoad_SingleFileShorthand(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "application.yml", `
github:
  repository: acme/app
  token: secret
release_file: app.jar
output_file: app.jar
timeout: 5s
retry:
  max_attempts: 5
  base_delay: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []FileConfig{{ReleaseFile: "app.jar", OutputFile: "app.jar"}}, cfg.Files)
	require.Equal(t, "secret", cfg.GitHub.Token)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
}

// TestLoad_MavenDefaults infers the source and the release file template.
func TestLoad_MavenDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "application.yml", `
maven:
  base_url: https://repo.simplecloud.app
  group_id: app.simplecloud
files:
  - artifact: controller
    output_file: controller.jar
  - artifact: controller
    output_file: backup/controller.jar
  - artifact: plugin
    release_file: plugin-{{ .Tag }}.zip
    output_file: plugin.zip
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, SourceMaven, cfg.Source)
	require.Equal(t, DefaultExtension, cfg.Maven.Extension)
	require.Equal(t, "{{ .Artifact }}-{{ .Tag }}-all.jar", cfg.Files[0].ReleaseFile)
	require.Equal(t, "plugin-{{ .Tag }}.zip", cfg.Files[2].ReleaseFile)
	require.Equal(t, []string{"controller", "plugin"}, cfg.Artifacts())
}

// TestValidate_Errors rejects incomplete configurations.
func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]*ApplicationConfig{
		"nil":                nil,
		"no files":           {GitHub: GitHubConfig{Repository: "acme/app"}},
		"bad repository":     {GitHub: GitHubConfig{Repository: "acme"}, Files: []FileConfig{{ReleaseFile: "a", OutputFile: "a"}}},
		"no release file":    {GitHub: GitHubConfig{Repository: "acme/app"}, Files: []FileConfig{{OutputFile: "a"}}},
		"no output file":     {GitHub: GitHubConfig{Repository: "acme/app"}, Files: []FileConfig{{ReleaseFile: "a"}}},
		"unknown source":     {Source: "ftp", Files: []FileConfig{{ReleaseFile: "a", OutputFile: "a"}}},
		"maven without base": {Source: SourceMaven, Maven: MavenConfig{GroupID: "g"}, Files: []FileConfig{{Artifact: "a", OutputFile: "a"}}},
		"maven without group": {
			Maven: MavenConfig{BaseURL: "https://repo"},
			Files: []FileConfig{{Artifact: "a", OutputFile: "a"}},
		},
		"maven without artifact": {
			Maven: MavenConfig{BaseURL: "https://repo", GroupID: "g"},
			Files: []FileConfig{{OutputFile: "a"}},
		},
		"negative delay": {
			GitHub: GitHubConfig{Repository: "acme/app"},
			Files:  []FileConfig{{ReleaseFile: "a", OutputFile: "a"}},
			Retry:  RetryConfig{BaseDelay: -time.Second},
		},
	}

	for name, cfg := range cases {
		require.ErrorIs(t, Validate(cfg), ErrConfiguration, name)
	}
}

// TestLoad_MissingFile reports a configuration error.
func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = Load(writeFile(t, "application.yml", "files: [unterminated"))
	require.ErrorIs(t, err, ErrConfiguration)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "application.yml")

	cfg := &ApplicationConfig{
		GitHub:            GitHubConfig{Repository: "acme/app", APIURL: "https://proxy.local"},
		Files:             []FileConfig{{ReleaseFile: "app.jar", OutputFile: "app.jar"}},
		ParallelDownloads: 2,
		StopProcesses:     []string{"app"},
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())
}

// TestFindChannel compiles the named channel and rejects unusable ones.
func TestFindChannel(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "versions.yml", `
- channel: release
  release_tag_regex: '^v(\d+)\.(\d+)\.(\d+)$'
- channel: rc
  release_tag_regex: '^v(\d+)\.(\d+)\.(\d+)-rc$'
  constraint: '< 3.0.0'
- channel: broken
  release_tag_regex: '^v(\d+)$'
- channel: empty
`)

	versions, err := LoadVersions(path)
	require.NoError(t, err)
	require.Len(t, versions, 4)

	channel, err := versions.FindChannel("rc")
	require.NoError(t, err)
	require.Equal(t, "rc", channel.Name())
	require.False(t, channel.Allows(release.MustParse("3.0.0")))

	v, ok, err := channel.MatchTag("v2.4.0-rc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2.4.0", v.String())

	for _, name := range []string{"broken", "empty", "nightly"} {
		_, err = versions.FindChannel(name)
		require.ErrorIs(t, err, ErrConfiguration, name)
	}

	_, err = LoadVersions(writeFile(t, "versions.yml", "[]"))
	require.ErrorIs(t, err, ErrConfiguration)
}
