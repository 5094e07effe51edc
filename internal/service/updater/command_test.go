package updater

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/auto-updater/internal/config"
	"github.com/oshokin/auto-updater/internal/domain/release"
)

// TestResolveToken prefers the config token, then the environment.
func TestResolveToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	require.Equal(t, "cfg", resolveToken(ctx, "cfg", "env"))
	require.Equal(t, "env", resolveToken(ctx, "", "env"))
	require.Empty(t, resolveToken(ctx, "", ""))
}

// TestEntries keeps configuration order and fields.
func TestEntries(t *testing.T) {
	t.Parallel()

	cfg := &config.ApplicationConfig{Files: []config.FileConfig{
		{ReleaseFile: "a.jar", OutputFile: "out/a.jar"},
		{ReleaseFile: "b.jar", Artifact: "b", OutputFile: "out/b.jar"},
	}}

	require.Equal(t, []release.Entry{
		{RemoteName: "a.jar", OutputPath: "out/a.jar"},
		{RemoteName: "b.jar", Artifact: "b", OutputPath: "out/b.jar"},
	}, entries(cfg))
}

// TestRun_ConfigurationErrors fail before any network call.
func TestRun_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appPath := filepath.Join(dir, "application.yml")
	versionsPath := filepath.Join(dir, "versions.yml")

	require.NoError(t, os.WriteFile(appPath, []byte(`
github:
  repository: acme/app
files:
  - release_file: app.jar
    output_file: app.jar
`), 0o600))
	require.NoError(t, os.WriteFile(versionsPath, []byte(`
- channel: release
  release_tag_regex: '^v(\d+)\.(\d+)\.(\d+)$'
`), 0o600))

	cases := map[string]*Options{
		"missing application config": {ApplicationConfigPath: filepath.Join(dir, "absent.yml"), VersionsConfigPath: versionsPath},
		"missing versions config":    {ApplicationConfigPath: appPath, VersionsConfigPath: filepath.Join(dir, "absent.yml")},
		"unknown channel":            {ApplicationConfigPath: appPath, VersionsConfigPath: versionsPath, Channel: "nightly"},
	}

	for name, opts := range cases {
		opts.MarkerPath = filepath.Join(dir, "current_version.txt")

		result, err := Run(context.Background(), opts)
		require.ErrorIs(t, err, config.ErrConfiguration, name)
		require.Equal(t, StateFailed, result.State, name)
	}

	require.NoFileExists(t, filepath.Join(dir, "current_version.txt"))
}
