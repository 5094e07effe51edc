package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oshokin/auto-updater/internal/domain/release"
	"github.com/oshokin/auto-updater/internal/logger"
	"github.com/oshokin/auto-updater/internal/transport"
)

var (
	// ErrAtomicity is returned when the staged file could not replace the destination.
	ErrAtomicity = errors.New("replace destination")
	// ErrChecksum is returned when downloaded bytes do not match the published digest.
	ErrChecksum = errors.New("checksum mismatch")
	// errTruncated is returned when the body is shorter than its Content-Length.
	errTruncated = errors.New("truncated body")
)

const (
	// DefaultFileMode applies to destinations that did not exist before.
	DefaultFileMode os.FileMode = 0o644
	// directoryMode is used for missing parent directories.
	directoryMode os.FileMode = 0o755
	// sha256Prefix marks digests this package can verify.
	sha256Prefix = "sha256:"
)

// Fetcher downloads assets into local files.
type Fetcher struct {
	// client performs the HTTP requests.
	client *transport.Client
	// maxAttempts bounds tries per Stage call.
	maxAttempts int
	// baseDelay is multiplied by the attempt number between tries.
	baseDelay time.Duration
	// rename moves the staged file over the destination.
	rename func(oldPath, newPath string) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRetry sets the attempt limit and the linear backoff base.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(f *Fetcher) {
		if maxAttempts > 0 {
			f.maxAttempts = maxAttempts
		}

		if baseDelay >= 0 {
			f.baseDelay = baseDelay
		}
	}
}

// withRename swaps the rename step; tests use it to simulate filesystems without atomic rename.
func withRename(rename func(oldPath, newPath string) error) Option {
	return func(f *Fetcher) {
		f.rename = rename
	}
}

// New creates a Fetcher using client for downloads.
func New(client *transport.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      client,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		rename:      os.Rename,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Staged is a fully downloaded file waiting next to its destination.
type Staged struct {
	// Destination is the final path.
	Destination string
	// TempPath is the staged file in the destination's directory.
	TempPath string
	// Size is the number of bytes written.
	Size int64
	// mode is applied to the destination on commit.
	mode os.FileMode
}

// Discard removes the staged file. Missing files are not an error.
func (s *Staged) Discard() error {
	if s == nil || s.TempPath == "" {
		return nil
	}

	if err := os.Remove(s.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staged file: %w", err)
	}

	return nil
}

// Fetch downloads asset and installs it at destination.
func (f *Fetcher) Fetch(ctx context.Context, asset *release.Asset, destination string) error {
	staged, err := f.Stage(ctx, asset, destination)
	if err != nil {
		return err
	}

	return f.Commit(ctx, staged)
}

// Stage downloads asset into a temporary file beside destination,
// retrying transient network failures. The destination is not touched.
func (f *Fetcher) Stage(ctx context.Context, asset *release.Asset, destination string) (*Staged, error) {
	ctx = logger.WithFields(ctx, "asset", asset.Name, "destination", destination)

	var (
		attempt int
		staged  *Staged
	)

	operation := func() error {
		attempt++

		logger.DebugKV(ctx, "Downloading artifact", "attempt", attempt, "url", asset.URL)

		s, err := f.stageOnce(ctx, asset, destination)
		if err != nil {
			if !transport.IsTransient(err) {
				return backoff.Permanent(err)
			}

			return err
		}

		staged = s

		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.WarnKV(ctx, "Download attempt failed, retrying",
			"attempt", attempt, "max_attempts", f.maxAttempts, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, newRetryPolicy(ctx, f.maxAttempts, f.baseDelay), notify); err != nil {
		logger.ErrorKV(ctx, "Download failed", "attempts", attempt, "error", err)

		return nil, fmt.Errorf("download %s after %d attempt(s): %w", asset.Name, attempt, err)
	}

	logger.InfoKV(ctx, "Artifact downloaded", "bytes", staged.Size, "attempts", attempt)

	return staged, nil
}

// stageOnce performs a single download attempt. On any error the temporary file is removed.
func (f *Fetcher) stageOnce(ctx context.Context, asset *release.Asset, destination string) (*Staged, error) {
	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, directoryMode); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	resp, err := f.client.Get(ctx, asset.URL, asset.Accept)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destination)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	staged := &Staged{
		Destination: destination,
		TempPath:    tmp.Name(),
		mode:        destinationMode(destination),
	}

	committed := false

	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = staged.Discard()
		}
	}()

	body := &bodyReader{r: resp.Body}
	hasher := sha256.New()

	staged.Size, err = io.Copy(io.MultiWriter(tmp, hasher), body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if body.err != nil {
			return nil, fmt.Errorf("%w: read body: %w", transport.ErrNetwork, err)
		}

		return nil, fmt.Errorf("write staged file: %w", err)
	}

	if resp.ContentLength >= 0 && staged.Size != resp.ContentLength {
		return nil, fmt.Errorf("%w: %w: got %d of %d bytes", transport.ErrNetwork, errTruncated, staged.Size, resp.ContentLength)
	}

	if err = verifyDigest(ctx, asset.Digest, hasher); err != nil {
		return nil, err
	}

	if err = tmp.Sync(); err != nil {
		return nil, fmt.Errorf("sync staged file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("close staged file: %w", err)
	}

	if err = os.Chmod(staged.TempPath, staged.mode); err != nil {
		return nil, fmt.Errorf("chmod staged file: %w", err)
	}

	committed = true

	return staged, nil
}

// Commit moves a staged file over its destination. A rename is tried first;
// if the filesystem rejects it, the destination is replaced in place. The
// staged file is always removed. Only a copy that fails partway can leave
// the destination with partial content.
func (f *Fetcher) Commit(ctx context.Context, staged *Staged) error {
	ctx = logger.WithKV(ctx, "destination", staged.Destination)

	if err := ctx.Err(); err != nil {
		_ = staged.Discard()

		return fmt.Errorf("commit %s: %w", staged.Destination, err)
	}

	renameErr := f.rename(staged.TempPath, staged.Destination)
	if renameErr == nil {
		logger.InfoKV(ctx, "Artifact installed")

		return nil
	}

	logger.WarnKV(ctx, "Atomic rename rejected, replacing without atomicity guarantee", "error", renameErr)

	swapErr := replaceInPlace(staged)

	if err := staged.Discard(); err != nil {
		logger.WarnKV(ctx, "Could not remove staged file", "path", staged.TempPath, "error", err)
	}

	if swapErr != nil {
		return fmt.Errorf("%w %s: rename: %w; fallback: %w", ErrAtomicity, staged.Destination, renameErr, swapErr)
	}

	logger.InfoKV(ctx, "Artifact installed with non-atomic fallback")

	return nil
}

// destinationMode keeps the permissions of an existing destination.
func destinationMode(destination string) os.FileMode {
	info, err := os.Stat(destination)
	if err != nil || !info.Mode().IsRegular() {
		return DefaultFileMode
	}

	return info.Mode().Perm()
}

// verifyDigest compares the streamed hash with a published "sha256:<hex>" digest.
// Digests in other algorithms are skipped.
func verifyDigest(ctx context.Context, digest string, sum hash.Hash) error {
	if digest == "" {
		return nil
	}

	expected, ok := strings.CutPrefix(strings.ToLower(digest), sha256Prefix)
	if !ok {
		logger.DebugKV(ctx, "Skipping digest in unsupported algorithm", "digest", digest)

		return nil
	}

	if actual := hex.EncodeToString(sum.Sum(nil)); actual != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksum, expected, actual)
	}

	return nil
}

// bodyReader remembers read errors so they can be told apart from write errors.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		b.err = err
	}

	return n, err
}
