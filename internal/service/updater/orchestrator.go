package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/auto-updater/internal/catalog"
	"github.com/oshokin/auto-updater/internal/domain/release"
	"github.com/oshokin/auto-updater/internal/fetch"
	"github.com/oshokin/auto-updater/internal/logger"
	"github.com/oshokin/auto-updater/internal/repository/marker"
)

// State is a step of a single update run.
type State int

const (
	// StateIdle is the state before Update is called.
	StateIdle State = iota
	// StateResolving reads the marker and lists candidates.
	StateResolving
	// StateNoUpdate is terminal: nothing newer is installable.
	StateNoUpdate
	// StateApplying downloads and installs the selected version.
	StateApplying
	// StateDone is terminal: every file is installed and the marker advanced.
	StateDone
	// StateFailed is terminal: the run stopped on an error.
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateNoUpdate:
		return "no_update"
	case StateApplying:
		return "applying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FailureMode decides what happens to the other files when one fails.
type FailureMode int

const (
	// AbortOnFailure stops the whole version at the first failing file.
	AbortOnFailure FailureMode = iota
	// ContinueOnFailure installs every file that can be installed.
	ContinueOnFailure
)

// String implements fmt.Stringer.
func (m FailureMode) String() string {
	if m == ContinueOnFailure {
		return "continue"
	}

	return "abort"
}

// Result describes the outcome of a run.
type Result struct {
	// State is the terminal state.
	State State
	// Installed is the version recorded before the run.
	Installed release.Version
	// Selected is the version chosen for installation, zero if none.
	Selected release.Version
	// Updated lists output paths that were replaced.
	Updated []string
	// Failed lists output paths that could not be installed.
	Failed []string
}

// Orchestrator runs update checks for one group of files.
type Orchestrator struct {
	catalog           catalog.Catalog
	fetcher           *fetch.Fetcher
	marker            marker.Repository
	entries           []release.Entry
	channel           *release.Channel
	allowMajorUpdates bool
	mode              FailureMode
	parallel          int
	beforeCommit      func(ctx context.Context) error

	mu    sync.Mutex
	state State
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithChannel sets the channel whose name is passed to file name templates and whose constraint narrows candidates.
func WithChannel(channel *release.Channel) OrchestratorOption {
	return func(o *Orchestrator) {
		o.channel = channel
	}
}

// WithMajorUpdates allows candidates with a different major version.
func WithMajorUpdates(allow bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.allowMajorUpdates = allow
	}
}

// WithFailureMode sets how file failures affect the rest of the group.
func WithFailureMode(mode FailureMode) OrchestratorOption {
	return func(o *Orchestrator) {
		o.mode = mode
	}
}

// WithParallelDownloads sets how many files are downloaded at once.
func WithParallelDownloads(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallel = n
		}
	}
}

// WithBeforeCommit registers a hook run after downloads and before any file is replaced.
func WithBeforeCommit(hook func(ctx context.Context) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.beforeCommit = hook
	}
}

// NewOrchestrator wires a catalog, a fetcher and a marker for the given files.
func NewOrchestrator(
	c catalog.Catalog,
	f *fetch.Fetcher,
	m marker.Repository,
	entries []release.Entry,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		catalog:  c,
		fetcher:  f,
		marker:   m,
		entries:  entries,
		parallel: 1,
		mode:     AbortOnFailure,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

func (o *Orchestrator) setState(ctx context.Context, state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	logger.DebugKV(ctx, "State changed", "state", state.String())
}

// Update performs one check and installs the best candidate when it is newer than the installed version.
func (o *Orchestrator) Update(ctx context.Context) (*Result, error) {
	result := &Result{}

	fail := func(err error) (*Result, error) {
		o.setState(ctx, StateFailed)
		result.State = StateFailed

		logger.ErrorKV(ctx, "Update failed", "error", err)

		return result, err
	}

	o.setState(ctx, StateResolving)

	installed, err := o.marker.Load(ctx)
	if err != nil {
		return fail(err)
	}

	result.Installed = installed

	policy := release.Policy{
		Installed:         installed,
		AllowMajorUpdates: o.allowMajorUpdates,
		Channel:           o.channel,
	}

	logger.InfoKV(ctx, "Checking for updates",
		"installed", installed.String(), "allow_major_updates", o.allowMajorUpdates, "failure_mode", o.mode.String())

	candidates, err := o.catalog.ListCandidates(ctx, policy)
	if err != nil {
		return fail(fmt.Errorf("resolve candidates: %w", err))
	}

	selected, ok := policy.Select(candidates)
	if !ok {
		o.setState(ctx, StateNoUpdate)
		result.State = StateNoUpdate

		logger.InfoKV(ctx, "No update available", "installed", installed.String(), "candidates", len(candidates))

		return result, nil
	}

	result.Selected = selected.Version

	logger.InfoKV(ctx, "Update found", "installed", installed.String(),
		"selected", selected.Version.String(), "tag", selected.Release.Tag())

	o.setState(ctx, StateApplying)

	if err = o.apply(ctx, selected, result); err != nil {
		return fail(err)
	}

	if err = o.marker.Save(ctx, selected.Version); err != nil {
		return fail(fmt.Errorf("save version marker: %w", err))
	}

	o.setState(ctx, StateDone)
	result.State = StateDone

	logger.InfoKV(ctx, "Update completed", "version", selected.Version.String(), "files", len(result.Updated))

	return result, nil
}

// apply stages every file, runs the commit hook and commits in configuration order.
// Any returned error means the marker must stay where it is.
func (o *Orchestrator) apply(ctx context.Context, selected release.Candidate, result *Result) error {
	staged, errs := o.stageAll(ctx, selected)

	if err := ctx.Err(); err != nil && !hasError(errs) {
		discardAll(ctx, staged)

		return err
	}

	stop := o.mode == AbortOnFailure && hasError(errs)

	if !stop && hasStaged(staged) && o.beforeCommit != nil {
		if err := o.beforeCommit(ctx); err != nil {
			discardAll(ctx, staged)

			return fmt.Errorf("prepare commit: %w", err)
		}
	}

	for i, s := range staged {
		if s == nil {
			continue
		}

		if stop {
			_ = s.Discard()

			continue
		}

		if err := o.fetcher.Commit(ctx, s); err != nil {
			errs[i] = err
			stop = o.mode == AbortOnFailure

			continue
		}

		result.Updated = append(result.Updated, o.entries[i].OutputPath)
	}

	var combined error

	for i, err := range errs {
		if err == nil {
			continue
		}

		result.Failed = append(result.Failed, o.entries[i].OutputPath)
		combined = multierr.Append(combined, fmt.Errorf("%s: %w", o.entries[i].OutputPath, err))
	}

	if combined != nil && len(result.Updated) > 0 {
		logger.WarnKV(ctx, "Version partially installed, marker not advanced",
			"updated", result.Updated, "failed", result.Failed)
	}

	return combined
}

// stageAll downloads every file of the selected version. In abort mode the
// first failure cancels the remaining downloads; files skipped that way
// carry no error of their own.
func (o *Orchestrator) stageAll(ctx context.Context, selected release.Candidate) ([]*fetch.Staged, []error) {
	staged := make([]*fetch.Staged, len(o.entries))
	errs := make([]error, len(o.entries))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.parallel)

	for i, entry := range o.entries {
		group.Go(func() error {
			if o.mode == AbortOnFailure && groupCtx.Err() != nil && ctx.Err() == nil {
				return nil
			}

			stageCtx := groupCtx
			if o.mode == ContinueOnFailure {
				stageCtx = ctx
			}

			s, err := o.stage(stageCtx, selected, entry)
			if err == nil {
				staged[i] = s

				return nil
			}

			if o.mode == AbortOnFailure && ctx.Err() == nil && errors.Is(err, context.Canceled) {
				return nil
			}

			errs[i] = err

			logger.ErrorKV(ctx, "File failed", "output_file", entry.OutputPath, "error", err)

			if o.mode == ContinueOnFailure {
				return nil
			}

			return err
		})
	}

	_ = group.Wait()

	if o.mode == AbortOnFailure && hasError(errs) {
		discardAll(ctx, staged)

		for i := range staged {
			staged[i] = nil
		}
	}

	return staged, errs
}

// stage resolves the remote file of one entry and downloads it.
func (o *Orchestrator) stage(ctx context.Context, selected release.Candidate, entry release.Entry) (*fetch.Staged, error) {
	rendered, err := entry.Render(release.NameData{
		Version: selected.Version.String(),
		Tag:     selected.Release.Tag(),
		Channel: o.channelName(),
	})
	if err != nil {
		return nil, err
	}

	asset, err := selected.Release.Asset(ctx, rendered)
	if err != nil {
		return nil, err
	}

	return o.fetcher.Stage(ctx, asset, rendered.OutputPath)
}

func (o *Orchestrator) channelName() string {
	if o.channel == nil {
		return ""
	}

	return o.channel.Name()
}

func hasError(errs []error) bool {
	for _, err := range errs {
		if err != nil {
			return true
		}
	}

	return false
}

func hasStaged(staged []*fetch.Staged) bool {
	for _, s := range staged {
		if s != nil {
			return true
		}
	}

	return false
}

func discardAll(ctx context.Context, staged []*fetch.Staged) {
	for _, s := range staged {
		if err := s.Discard(); err != nil {
			logger.WarnKV(ctx, "Could not remove staged file", "path", s.TempPath, "error", err)
		}
	}
}
