package updater

import (
	"context"
	"fmt"

	"github.com/oshokin/auto-updater/internal/catalog"
	"github.com/oshokin/auto-updater/internal/config"
	"github.com/oshokin/auto-updater/internal/domain/release"
	"github.com/oshokin/auto-updater/internal/fetch"
	"github.com/oshokin/auto-updater/internal/logger"
	"github.com/oshokin/auto-updater/internal/repository/marker"
	"github.com/oshokin/auto-updater/internal/transport"
	"github.com/oshokin/auto-updater/internal/version"
)

// DefaultChannel is used when no channel is given.
const DefaultChannel = "release"

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ApplicationConfigPath is the path to application.yml.
	ApplicationConfigPath string
	// VersionsConfigPath is the path to versions.yml. Only the github source reads it.
	VersionsConfigPath string
	// MarkerPath is the path to the installed version marker.
	MarkerPath string
	// Channel selects the update track.
	Channel string
	// AllowMajorUpdates lets the run cross a major version boundary.
	AllowMajorUpdates bool
	// EnvToken is the token taken from the environment, used when the config has none.
	EnvToken string
}

// runner holds what a single run resolved from its options.
type runner struct {
	cfg     *config.ApplicationConfig
	channel *release.Channel
	client  *transport.Client
	catalog catalog.Catalog
	mode    FailureMode
}

// Run loads the configuration, builds the catalog for the configured source and performs one update check.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "auto-updater")

	r, err := newRunner(ctx, opts)
	if err != nil {
		logger.ErrorKV(ctx, "Updater setup failed", "error", err)

		return &Result{State: StateFailed}, err
	}

	ctx = logger.WithFields(ctx, "source", string(r.cfg.Source), "channel", r.channel.Name())

	orchestrator := NewOrchestrator(
		r.catalog,
		fetch.New(r.client, fetch.WithRetry(r.cfg.Retry.MaxAttempts, r.cfg.Retry.BaseDelay)),
		marker.NewFileRepository(opts.MarkerPath),
		entries(r.cfg),
		WithChannel(r.channel),
		WithMajorUpdates(opts.AllowMajorUpdates),
		WithFailureMode(r.mode),
		WithParallelDownloads(r.cfg.ParallelDownloads),
		WithBeforeCommit(func(ctx context.Context) error {
			return stopProcesses(ctx, r.cfg.StopProcesses)
		}),
	)

	result, err := orchestrator.Update(ctx)
	if err != nil {
		return result, err
	}

	logger.InfoKV(ctx, "Updater finished", "state", result.State.String())

	return result, nil
}

// newRunner resolves configuration, channel, credentials and catalog.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	if opts == nil {
		opts = &Options{}
	}

	channelName := opts.Channel
	if channelName == "" {
		channelName = DefaultChannel
	}

	cfg, err := config.Load(opts.ApplicationConfigPath)
	if err != nil {
		return nil, err
	}

	r := &runner{cfg: cfg}

	switch cfg.Source {
	case config.SourceGitHub:
		versions, err := config.LoadVersions(opts.VersionsConfigPath)
		if err != nil {
			return nil, err
		}

		if r.channel, err = versions.FindChannel(channelName); err != nil {
			return nil, err
		}

		token := resolveToken(ctx, cfg.GitHub.Token, opts.EnvToken)
		r.client = newClient(cfg, transport.WithToken(token))
		r.catalog = catalog.NewGitHub(r.client, catalog.GitHubOptions{
			APIURL:     cfg.GitHub.APIURL,
			Repository: cfg.GitHub.Repository,
			Channel:    r.channel,
		})
		r.mode = AbortOnFailure
	case config.SourceMaven:
		// The channel is a repository path here, so it has no tag pattern.
		if r.channel, err = release.NewChannel(channelName, "", ""); err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}

		r.client = newClient(cfg)
		r.catalog = catalog.NewMaven(r.client, catalog.MavenOptions{
			BaseURL:   cfg.Maven.BaseURL,
			Channel:   channelName,
			GroupID:   cfg.Maven.GroupID,
			Artifacts: cfg.Artifacts(),
		})
		r.mode = ContinueOnFailure
	default:
		return nil, fmt.Errorf("%w: unknown source %q", config.ErrConfiguration, cfg.Source)
	}

	logger.InfoKV(ctx, "Channel resolved", "channel", r.channel.Name(), "source", string(cfg.Source))

	return r, nil
}

func newClient(cfg *config.ApplicationConfig, opts ...transport.Option) *transport.Client {
	opts = append([]transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithUserAgent(version.UserAgent()),
	}, opts...)

	return transport.New(opts...)
}

// resolveToken prefers the configured token over the environment one and logs which was used.
func resolveToken(ctx context.Context, configured, env string) string {
	switch {
	case configured != "":
		logger.InfoKV(ctx, "Using token from application config")

		return configured
	case env != "":
		logger.InfoKV(ctx, "Using token from environment")

		return env
	default:
		logger.InfoKV(ctx, "No token configured, using anonymous requests")

		return ""
	}
}

// entries converts configured files into release entries, keeping their order.
func entries(cfg *config.ApplicationConfig) []release.Entry {
	out := make([]release.Entry, 0, len(cfg.Files))

	for _, f := range cfg.Files {
		out = append(out, release.Entry{
			RemoteName: f.ReleaseFile,
			Artifact:   f.Artifact,
			OutputPath: f.OutputFile,
		})
	}

	return out
}
