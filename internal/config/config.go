package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source names a kind of artifact host.
type Source string

const (
	// SourceGitHub selects tagged releases on a GitHub-compatible API.
	SourceGitHub Source = "github"
	// SourceMaven selects a Maven-style repository with maven-metadata.xml.
	SourceMaven Source = "maven"
)

// GitHubConfig locates the release host.
type GitHubConfig struct {
	// Repository is "owner/name".
	Repository string `yaml:"repository"`
	// Token authenticates API and download requests. Environment variables are used when empty.
	Token string `yaml:"token,omitempty"`
	// APIURL overrides the REST base, e.g. for a caching proxy.
	APIURL string `yaml:"api_url,omitempty"`
}

// MavenConfig locates the metadata repository.
type MavenConfig struct {
	// BaseURL is the repository host; the channel name is appended as the repository path.
	BaseURL string `yaml:"base_url"`
	// GroupID is the dotted group of every artifact.
	GroupID string `yaml:"group_id"`
	// Extension of artifact files, "jar" by default.
	Extension string `yaml:"extension,omitempty"`
}

// FileConfig is one managed file.
type FileConfig struct {
	// ReleaseFile is the remote file name. It is a text/template over .Version, .Tag, .Artifact and .Channel.
	ReleaseFile string `yaml:"release_file,omitempty"`
	// Artifact is the artifact id, required for the maven source.
	Artifact string `yaml:"artifact,omitempty"`
	// OutputFile is the local destination.
	OutputFile string `yaml:"output_file"`
}

// RetryConfig bounds download retries.
type RetryConfig struct {
	// MaxAttempts includes the first try.
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay is multiplied by the attempt number between tries.
	BaseDelay time.Duration `yaml:"base_delay"`
}

// ApplicationConfig is the content of application.yml.
type ApplicationConfig struct {
	// Source picks the catalog; inferred from the filled section when empty.
	Source Source `yaml:"source,omitempty"`
	// GitHub is used by the github source.
	GitHub GitHubConfig `yaml:"github,omitempty"`
	// Maven is used by the maven source.
	Maven MavenConfig `yaml:"maven,omitempty"`
	// Files lists the managed files, installed in this order.
	Files []FileConfig `yaml:"files"`
	// ReleaseFile and OutputFile are the single-file shorthand; they become the first entry of Files.
	ReleaseFile string `yaml:"release_file,omitempty"`
	OutputFile  string `yaml:"output_file,omitempty"`
	// Timeout bounds connecting and waiting for response headers.
	Timeout time.Duration `yaml:"timeout"`
	// Retry bounds download retries.
	Retry RetryConfig `yaml:"retry"`
	// ParallelDownloads is how many files are downloaded at once. 1 means sequential.
	ParallelDownloads int `yaml:"parallel_downloads"`
	// StopProcesses are executable names terminated right before files are replaced.
	StopProcesses []string `yaml:"stop_processes,omitempty"`
}

const (
	// DefaultApplicationFilename is read when no path is given.
	DefaultApplicationFilename = "application.yml"

	// DefaultGitHubAPIURL is the public GitHub REST endpoint.
	DefaultGitHubAPIURL = "https://api.github.com"

	// DefaultExtension is the maven artifact file extension.
	DefaultExtension = "jar"

	// DefaultTimeout bounds network calls.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts is the number of download tries per file.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the linear backoff step.
	DefaultBaseDelay = time.Second

	// DefaultFilePermissions is the permission for written config files.
	DefaultFilePermissions = 0o600
)

var (
	// ErrConfiguration marks missing, unreadable or invalid configuration.
	ErrConfiguration = errors.New("invalid configuration")

	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// Load reads application.yml from path and validates it.
func Load(path string) (*ApplicationConfig, error) {
	if path == "" {
		path = DefaultApplicationFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: read application config: %w", ErrConfiguration, err)
	}

	var cfg ApplicationConfig
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal application config %s: %w", ErrConfiguration, path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *ApplicationConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, errConfigIsNotSet)
	}

	if path == "" {
		path = DefaultApplicationFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal application config: %w", err)
	}

	// The file may carry a token.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write application config: %w", err)
	}

	return nil
}

// Validate checks required fields and fills in defaults.
func Validate(cfg *ApplicationConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, errConfigIsNotSet)
	}

	if cfg.ReleaseFile != "" || cfg.OutputFile != "" {
		cfg.Files = append([]FileConfig{{ReleaseFile: cfg.ReleaseFile, OutputFile: cfg.OutputFile}}, cfg.Files...)
		cfg.ReleaseFile, cfg.OutputFile = "", ""
	}

	if cfg.Source == "" {
		cfg.Source = SourceGitHub
		if cfg.Maven.BaseURL != "" && cfg.GitHub.Repository == "" {
			cfg.Source = SourceMaven
		}
	}

	if len(cfg.Files) == 0 {
		return fmt.Errorf("%w: no files configured", ErrConfiguration)
	}

	var err error

	switch cfg.Source {
	case SourceGitHub:
		err = validateGitHub(cfg)
	case SourceMaven:
		err = validateMaven(cfg)
	default:
		err = fmt.Errorf("%w: unknown source %q", ErrConfiguration, cfg.Source)
	}

	if err != nil {
		return err
	}

	for i, f := range cfg.Files {
		if strings.TrimSpace(f.OutputFile) == "" {
			return fmt.Errorf("%w: files[%d]: output_file is required", ErrConfiguration, i)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}

	if cfg.Retry.BaseDelay < 0 {
		return fmt.Errorf("%w: retry.base_delay must not be negative", ErrConfiguration)
	}

	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = DefaultBaseDelay
	}

	if cfg.ParallelDownloads <= 0 {
		cfg.ParallelDownloads = 1
	}

	return nil
}

func validateGitHub(cfg *ApplicationConfig) error {
	owner, name, ok := strings.Cut(cfg.GitHub.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: github.repository must be \"owner/name\", got %q", ErrConfiguration, cfg.GitHub.Repository)
	}

	if cfg.GitHub.APIURL == "" {
		cfg.GitHub.APIURL = DefaultGitHubAPIURL
	}

	if _, err := url.ParseRequestURI(cfg.GitHub.APIURL); err != nil {
		return fmt.Errorf("%w: github.api_url: %w", ErrConfiguration, err)
	}

	for i, f := range cfg.Files {
		if strings.TrimSpace(f.ReleaseFile) == "" {
			return fmt.Errorf("%w: files[%d]: release_file is required", ErrConfiguration, i)
		}
	}

	return nil
}

func validateMaven(cfg *ApplicationConfig) error {
	if _, err := url.ParseRequestURI(cfg.Maven.BaseURL); err != nil {
		return fmt.Errorf("%w: maven.base_url: %w", ErrConfiguration, err)
	}

	if cfg.Maven.GroupID == "" {
		return fmt.Errorf("%w: maven.group_id is required", ErrConfiguration)
	}

	if cfg.Maven.Extension == "" {
		cfg.Maven.Extension = DefaultExtension
	}

	for i := range cfg.Files {
		f := &cfg.Files[i]

		if f.Artifact == "" {
			return fmt.Errorf("%w: files[%d]: artifact is required for the maven source", ErrConfiguration, i)
		}

		if f.ReleaseFile == "" {
			f.ReleaseFile = "{{ .Artifact }}-{{ .Tag }}-all." + cfg.Maven.Extension
		}
	}

	return nil
}

// Artifacts returns the artifact ids of all files in configuration order, without repeats.
func (c *ApplicationConfig) Artifacts() []string {
	seen := make(map[string]struct{}, len(c.Files))
	artifacts := make([]string, 0, len(c.Files))

	for _, f := range c.Files {
		if f.Artifact == "" {
			continue
		}

		if _, ok := seen[f.Artifact]; ok {
			continue
		}

		seen[f.Artifact] = struct{}{}
		artifacts = append(artifacts, f.Artifact)
	}

	return artifacts
}
