package marker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/auto-updater/internal/domain/release"
	"github.com/oshokin/auto-updater/internal/logger"
)

// DefaultFilename is the marker location used when none is configured.
const DefaultFilename = "current_version.txt"

// filePermissions restricts the marker to its owner.
const filePermissions = 0o600

// Repository reads and writes the installed version.
type Repository interface {
	Load(ctx context.Context) (release.Version, error)
	Save(ctx context.Context, version release.Version) error
}

// FileRepository keeps the marker in a plain text file.
// Writes are a plain overwrite; the file is a few bytes and only one
// updater instance runs at a time.
type FileRepository struct {
	// path is the filesystem location of the marker.
	path string
}

// NewFileRepository creates a repository for the marker at path.
func NewFileRepository(path string) *FileRepository {
	if path == "" {
		path = DefaultFilename
	}

	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the marker location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load returns the recorded version. A missing marker is created with the
// zero version, which is then returned. Unparsable content is an error
// wrapping release.ErrParse.
func (r *FileRepository) Load(ctx context.Context) (release.Version, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return release.Version{}, fmt.Errorf("read version marker: %w", err)
		}

		logger.InfoKV(ctx, "Version marker not found, recording baseline", "path", r.path)

		if err = r.Save(ctx, release.Version{}); err != nil {
			return release.Version{}, err
		}

		return release.Version{}, nil
	}

	version, err := release.Parse(strings.TrimSpace(string(contents)))
	if err != nil {
		return release.Version{}, fmt.Errorf("version marker %s: %w", r.path, err)
	}

	return version, nil
}

// Save overwrites the marker with version.
func (r *FileRepository) Save(_ context.Context, version release.Version) error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create marker directory: %w", err)
		}
	}

	if err := os.WriteFile(r.path, []byte(version.String()), filePermissions); err != nil {
		return fmt.Errorf("write version marker: %w", err)
	}

	return nil
}
