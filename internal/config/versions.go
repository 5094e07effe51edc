package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/auto-updater/internal/domain/release"
)

// DefaultVersionsFilename is read when no path is given.
const DefaultVersionsFilename = "versions.yml"

// ChannelConfig is one entry of versions.yml.
type ChannelConfig struct {
	// Channel is the name selected with --channel.
	Channel string `yaml:"channel"`
	// ReleaseTagRegex matches release tags and captures major, minor and patch.
	ReleaseTagRegex string `yaml:"release_tag_regex"`
	// Constraint optionally narrows versions, e.g. "< 3.0.0".
	Constraint string `yaml:"constraint,omitempty"`
}

// VersionsConfig is the content of versions.yml.
type VersionsConfig []ChannelConfig

// LoadVersions reads versions.yml from path.
func LoadVersions(path string) (VersionsConfig, error) {
	if path == "" {
		path = DefaultVersionsFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: read versions config: %w", ErrConfiguration, err)
	}

	var cfg VersionsConfig
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal versions config %s: %w", ErrConfiguration, path, err)
	}

	if len(cfg) == 0 {
		return nil, fmt.Errorf("%w: %s defines no channels", ErrConfiguration, path)
	}

	return cfg, nil
}

// FindChannel compiles the first channel called name.
func (v VersionsConfig) FindChannel(name string) (*release.Channel, error) {
	for _, entry := range v {
		if entry.Channel != name {
			continue
		}

		if entry.ReleaseTagRegex == "" {
			return nil, fmt.Errorf("%w: channel %q has no release_tag_regex", ErrConfiguration, name)
		}

		channel, err := release.NewChannel(entry.Channel, entry.ReleaseTagRegex, entry.Constraint)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}

		return channel, nil
	}

	return nil, fmt.Errorf("%w: channel %q is not defined", ErrConfiguration, name)
}
