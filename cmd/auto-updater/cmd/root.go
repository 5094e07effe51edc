package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oshokin/auto-updater/internal/config"
	"github.com/oshokin/auto-updater/internal/logger"
	"github.com/oshokin/auto-updater/internal/repository/marker"
	"github.com/oshokin/auto-updater/internal/service/updater"
	"github.com/oshokin/auto-updater/internal/version"
)

const (
	// envPrefix namespaces environment overrides, e.g. AUTO_UPDATER_CHANNEL.
	envPrefix = "AUTO_UPDATER"

	flagApplicationConfig = "application-config"
	flagVersionsConfig    = "versions-config"
	flagCurrentVersion    = "current-version-file"
	flagChannel           = "channel"
	flagAllowMajorUpdates = "allow-major-updates"
	flagLogLevel          = "log-level"
	keyGitHubToken        = "github-token"
)

var (
	// settings merges flags with environment variables.
	settings = viper.New()

	// rootCmd checks for a newer version and installs it.
	rootCmd = &cobra.Command{
		Use:   "auto-updater",
		Short: "Check a release source for a newer version and install it.",
		Long: `Checks GitHub releases or a Maven repository for a version newer than the one
recorded in the current version file and replaces the configured files with it.

Every flag can also be set through an AUTO_UPDATER_ environment variable,
e.g. AUTO_UPDATER_CHANNEL=rc. The GitHub token is read from the application
config, then from SC_GITHUB_TOKEN, then from GITHUB_TOKEN.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(settings.GetString(flagLogLevel))
			if !ok {
				return fmt.Errorf("unknown log level %q", settings.GetString(flagLogLevel))
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &updater.Options{
				ApplicationConfigPath: settings.GetString(flagApplicationConfig),
				VersionsConfigPath:    settings.GetString(flagVersionsConfig),
				MarkerPath:            settings.GetString(flagCurrentVersion),
				Channel:               settings.GetString(flagChannel),
				AllowMajorUpdates:     settings.GetBool(flagAllowMajorUpdates),
				EnvToken:              settings.GetString(keyGitHubToken),
			}

			_, err := updater.Run(ctx, options)

			return err
		},
	}
)

// Execute runs the auto-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		logger.ErrorKV(context.Background(), "auto-updater failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(flagApplicationConfig, config.DefaultApplicationFilename, "path to application.yml")
	flags.String(flagVersionsConfig, config.DefaultVersionsFilename, "path to versions.yml")
	flags.String(flagCurrentVersion, marker.DefaultFilename, "path to current_version.txt")
	flags.String(flagChannel, updater.DefaultChannel, "update channel")
	flags.Bool(flagAllowMajorUpdates, true, "allow updates to a new major version")
	flags.String(flagLogLevel, "info", "log level: debug, info, warn or error")

	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	if err := settings.BindPFlags(flags); err != nil {
		panic(err)
	}

	// Token variables carry no prefix, matching what CI systems export.
	if err := settings.BindEnv(keyGitHubToken, "SC_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		panic(err)
	}
}
