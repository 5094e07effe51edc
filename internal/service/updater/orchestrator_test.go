package updater

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/auto-updater/internal/domain/release"
	"github.com/oshokin/auto-updater/internal/fetch"
	"github.com/oshokin/auto-updater/internal/repository/marker"
	"github.com/oshokin/auto-updater/internal/transport"
)

// fileServer serves the named files and answers 404 for everything else.
func fileServer(t *testing.T, files map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		body, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

// serverRelease resolves every entry to "<base>/<remote name>".
type serverRelease struct {
	tag  string
	base string
}

func (r serverRelease) Tag() string { return r.tag }

func (r serverRelease) Asset(_ context.Context, e release.Entry) (*release.Asset, error) {
	return &release.Asset{Name: e.RemoteName, URL: r.base + "/" + e.RemoteName}, nil
}

type fixture struct {
	dir     string
	catalog *MockCatalog
	marker  *marker.FileRepository
	fetcher *fetch.Fetcher
	base    string
	hits    *atomic.Int32
}

func newFixture(t *testing.T, files map[string]string, installed string) *fixture {
	t.Helper()

	dir := t.TempDir()
	srv, hits := fileServer(t, files)

	f := &fixture{
		dir:     dir,
		catalog: NewMockCatalog(gomock.NewController(t)),
		marker:  marker.NewFileRepository(filepath.Join(dir, "current_version.txt")),
		fetcher: fetch.New(transport.New(), fetch.WithRetry(1, time.Millisecond)),
		base:    srv.URL,
		hits:    hits,
	}

	if installed != "" {
		require.NoError(t, os.WriteFile(f.marker.Path(), []byte(installed), 0o600))
	}

	return f
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *fixture) candidates(tags ...string) []release.Candidate {
	out := make([]release.Candidate, 0, len(tags))
	for _, tag := range tags {
		out = append(out, release.Candidate{
			Version: release.MustParse(strings.TrimPrefix(tag, "v")),
			Release: serverRelease{tag: tag, base: f.base},
		})
	}

	return out
}

func (f *fixture) entries(names ...string) []release.Entry {
	out := make([]release.Entry, 0, len(names))
	for _, name := range names {
		out = append(out, release.Entry{RemoteName: name, OutputPath: f.path(name)})
	}

	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func noTempFiles(t *testing.T, dir string) {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

// TestUpdate_NoUpdateAvailable leaves files and marker alone.
func TestUpdate_NoUpdateAvailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"app.jar": "new"}, "2.4.0")
	f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).Return(f.candidates("v2.4.0", "v2.3.1"), nil)

	o := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("app.jar"))

	result, err := o.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateNoUpdate, result.State)
	require.Equal(t, StateNoUpdate, o.State())
	require.True(t, result.Selected.IsZero())
	require.Zero(t, f.hits.Load())
	require.NoFileExists(t, f.path("app.jar"))
	require.Equal(t, "2.4.0", readFile(t, f.marker.Path()))
}

// TestUpdate_InstallsWithinMajor picks 2.4.0 over 3.0.0 when major updates are off.
func TestUpdate_InstallsWithinMajor(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"app-2.4.0.jar": "app 2.4.0"}, "2.3.1")

	channel, err := release.NewChannel("release", `^v(\d+)\.(\d+)\.(\d+)$`, "")
	require.NoError(t, err)

	f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, policy release.Policy) ([]release.Candidate, error) {
			require.Equal(t, "2.3.1", policy.Installed.String())
			require.False(t, policy.AllowMajorUpdates)
			require.Same(t, channel, policy.Channel)

			return f.candidates("v3.0.0", "v2.4.0"), nil
		})

	entries := []release.Entry{{RemoteName: "app-{{ .Version }}.jar", OutputPath: f.path("lib/app.jar")}}
	o := NewOrchestrator(f.catalog, f.fetcher, f.marker, entries, WithChannel(channel))

	result, err := o.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDone, result.State)
	require.Equal(t, "2.3.1", result.Installed.String())
	require.Equal(t, "2.4.0", result.Selected.String())
	require.Equal(t, []string{f.path("lib/app.jar")}, result.Updated)
	require.Equal(t, "app 2.4.0", readFile(t, f.path("lib/app.jar")))
	require.Equal(t, "2.4.0", readFile(t, f.marker.Path()))
}

// TestUpdate_FirstInstall bootstraps the marker and accepts a new major.
func TestUpdate_FirstInstall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"app.jar": "app 3.0.0"}, "")
	f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).Return(f.candidates("v3.0.0"), nil)

	o := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("app.jar"))

	result, err := o.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDone, result.State)
	require.True(t, result.Installed.IsZero())
	require.Equal(t, "3.0.0", readFile(t, f.marker.Path()))
}

// TestUpdate_AbortKeepsGroupIntact fails the second file and touches nothing.
func TestUpdate_AbortKeepsGroupIntact(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"app.jar": "new app"}, "2.3.1")
	require.NoError(t, os.WriteFile(f.path("app.jar"), []byte("old app"), 0o600))
	f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).Return(f.candidates("v2.4.0"), nil)

	var hookCalls atomic.Int32

	o := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("app.jar", "plugin.jar"),
		WithBeforeCommit(func(context.Context) error {
			hookCalls.Add(1)

			return nil
		}))

	result, err := o.Update(context.Background())
	require.ErrorIs(t, err, transport.ErrNotFound)
	require.Equal(t, StateFailed, result.State)
	require.Equal(t, StateFailed, o.State())
	require.Equal(t, []string{f.path("plugin.jar")}, result.Failed)
	require.Empty(t, result.Updated)
	require.Equal(t, "old app", readFile(t, f.path("app.jar")))
	require.NoFileExists(t, f.path("plugin.jar"))
	require.Equal(t, "2.3.1", readFile(t, f.marker.Path()))
	require.Zero(t, hookCalls.Load())
	noTempFiles(t, f.dir)
}

// TestUpdate_CommitFailureKeepsEarlierFiles does not roll back files committed
// before a later commit failed, and does not advance the marker.
func TestUpdate_CommitFailureKeepsEarlierFiles(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"app.jar": "new app", "plugin.jar": "new plugin"}, "2.3.1")
	require.NoError(t, os.WriteFile(f.path("app.jar"), []byte("old app"), 0o600))
	// A non-empty directory cannot be replaced by a file.
	require.NoError(t, os.MkdirAll(filepath.Join(f.path("plugin.jar"), "busy"), 0o755))
	f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).Return(f.candidates("v2.4.0"), nil)

	o := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("app.jar", "plugin.jar"))

	result, err := o.Update(context.Background())
	require.ErrorIs(t, err, fetch.ErrAtomicity)
	require.Equal(t, StateFailed, result.State)
	require.Equal(t, "2.4.0", result.Selected.String())
	require.Equal(t, []string{f.path("app.jar")}, result.Updated)
	require.Equal(t, []string{f.path("plugin.jar")}, result.Failed)
	require.Equal(t, "new app", readFile(t, f.path("app.jar")))
	require.DirExists(t, f.path("plugin.jar"))
	require.Equal(t, "2.3.1", readFile(t, f.marker.Path()))
	noTempFiles(t, f.dir)

	leftovers, err := filepath.Glob(filepath.Join(f.dir, ".*.new"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

// TestUpdate_ContinueInstallsIndependentFiles installs what it can and keeps the marker.
func TestUpdate_ContinueInstallsIndependentFiles(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"app.jar": "new app", "extra.jar": "new extra"}, "2.3.1")
	f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).Return(f.candidates("v2.4.0"), nil)

	o := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("app.jar", "plugin.jar", "extra.jar"),
		WithFailureMode(ContinueOnFailure))

	result, err := o.Update(context.Background())
	require.ErrorIs(t, err, transport.ErrNotFound)
	require.Contains(t, err.Error(), "plugin.jar")
	require.Equal(t, StateFailed, result.State)
	require.Equal(t, []string{f.path("app.jar"), f.path("extra.jar")}, result.Updated)
	require.Equal(t, []string{f.path("plugin.jar")}, result.Failed)
	require.Equal(t, "new app", readFile(t, f.path("app.jar")))
	require.Equal(t, "new extra", readFile(t, f.path("extra.jar")))
	require.Equal(t, "2.3.1", readFile(t, f.marker.Path()))
	noTempFiles(t, f.dir)
}

// TestUpdate_ParallelDownloads installs every file in configuration order.
func TestUpdate_ParallelDownloads(t *testing.T) {
	t.Parallel()

	files := map[string]string{"a.jar": "a", "b.jar": "b", "c.jar": "c", "d.jar": "d"}
	f := newFixture(t, files, "1.0.0")
	f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).Return(f.candidates("v1.0.1"), nil)

	o := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("a.jar", "b.jar", "c.jar", "d.jar"),
		WithParallelDownloads(3))

	result, err := o.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{f.path("a.jar"), f.path("b.jar"), f.path("c.jar"), f.path("d.jar")}, result.Updated)

	for name, body := range files {
		require.Equal(t, body, readFile(t, f.path(name)))
	}

	require.Equal(t, int32(4), f.hits.Load())
	require.Equal(t, "1.0.1", readFile(t, f.marker.Path()))
}

// TestUpdate_BeforeCommitFailure discards downloads and keeps old files.
func TestUpdate_BeforeCommitFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"app.jar": "new app"}, "2.3.1")
	require.NoError(t, os.WriteFile(f.path("app.jar"), []byte("old app"), 0o600))
	f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).Return(f.candidates("v2.4.0"), nil)

	errLocked := errors.New("locked")

	o := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("app.jar"),
		WithBeforeCommit(func(context.Context) error { return errLocked }))

	result, err := o.Update(context.Background())
	require.ErrorIs(t, err, errLocked)
	require.Equal(t, StateFailed, result.State)
	require.Equal(t, "old app", readFile(t, f.path("app.jar")))
	require.Equal(t, "2.3.1", readFile(t, f.marker.Path()))
	noTempFiles(t, f.dir)
}

// TestUpdate_ResolutionErrors stop before any download.
func TestUpdate_ResolutionErrors(t *testing.T) {
	t.Parallel()

	t.Run("catalog", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil, "2.3.1")
		f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).Return(nil, transport.ErrAuth)

		result, err := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("app.jar")).Update(context.Background())
		require.ErrorIs(t, err, transport.ErrAuth)
		require.Equal(t, StateFailed, result.State)
		require.Zero(t, f.hits.Load())
	})

	t.Run("malformed marker", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil, "two.three")

		result, err := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("app.jar")).Update(context.Background())
		require.ErrorIs(t, err, release.ErrParse)
		require.Equal(t, StateFailed, result.State)
		require.Equal(t, "two.three", readFile(t, f.marker.Path()))
	})

	t.Run("bad template", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil, "2.3.1")
		f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).Return(f.candidates("v2.4.0"), nil)

		entries := []release.Entry{{RemoteName: "{{ .Missing }}", OutputPath: f.path("app.jar")}}

		result, err := NewOrchestrator(f.catalog, f.fetcher, f.marker, entries).Update(context.Background())
		require.Error(t, err)
		require.Equal(t, StateFailed, result.State)
		require.Equal(t, "2.3.1", readFile(t, f.marker.Path()))
	})
}

// TestUpdate_Cancelled removes staged files and leaves the marker.
func TestUpdate_Cancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"app.jar": "new app"}, "2.3.1")

	ctx, cancel := context.WithCancel(context.Background())

	f.catalog.EXPECT().ListCandidates(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, release.Policy) ([]release.Candidate, error) {
			cancel()

			return f.candidates("v2.4.0"), nil
		})

	result, err := NewOrchestrator(f.catalog, f.fetcher, f.marker, f.entries("app.jar")).Update(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateFailed, result.State)
	require.NoFileExists(t, f.path("app.jar"))
	require.Equal(t, "2.3.1", readFile(t, f.marker.Path()))
	noTempFiles(t, f.dir)
}

// TestStateString covers every named state.
func TestStateString(t *testing.T) {
	t.Parallel()

	names := map[State]string{
		StateIdle:      "idle",
		StateResolving: "resolving",
		StateNoUpdate:  "no_update",
		StateApplying:  "applying",
		StateDone:      "done",
		StateFailed:    "failed",
		State(42):      "state(42)",
	}

	for state, name := range names {
		require.Equal(t, name, state.String())
	}
}
