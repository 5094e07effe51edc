package catalog

import (
	"context"
	"errors"

	"github.com/oshokin/auto-updater/internal/domain/release"
)

//go:generate mockgen -source=catalog.go -destination=../service/updater/mock_catalog_test.go -package=updater

var (
	// ErrMetadata is returned when repository metadata is unreachable, malformed or incomplete.
	ErrMetadata = errors.New("repository metadata")
	// ErrAssetNotFound is returned when a release lacks the requested file.
	ErrAssetNotFound = errors.New("release asset not found")
)

// Catalog is a remote source of candidate versions.
type Catalog interface {
	// ListCandidates returns installable candidates, newest first.
	// The policy is consulted so sources can stop early once a fitting release is found.
	ListCandidates(ctx context.Context, policy release.Policy) ([]release.Candidate, error)
}
