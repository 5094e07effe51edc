// Package config loads the updater's YAML configuration: application.yml
// describes the artifact source and the managed files, versions.yml maps
// channel names to release tag patterns.
package config
