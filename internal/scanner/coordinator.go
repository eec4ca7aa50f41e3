package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/scanarr/internal/event"
	"github.com/sydlexius/scanarr/internal/filesystem"
	"github.com/sydlexius/scanarr/internal/media"
	"github.com/sydlexius/scanarr/internal/rule"
	"github.com/sydlexius/scanarr/internal/scan"
	"github.com/sydlexius/scanarr/internal/settings"
)

// Options tunes the probe-failure abort rule.
type Options struct {
	// MaxSkipRatio is the largest tolerated skipped/attempted ratio.
	MaxSkipRatio float64
	// MinSkipSample is the number of attempted files before the ratio is
	// enforced mid-scan.
	MinSkipSample int
}

func (o Options) withDefaults() Options {
	if o.MaxSkipRatio <= 0 || o.MaxSkipRatio > 1 {
		o.MaxSkipRatio = 0.5
	}
	if o.MinSkipSample <= 0 {
		o.MinSkipSample = 20
	}
	return o
}

// Coordinator runs scans. Scans over the same root-set are mutually
// exclusive; disjoint root-sets run in parallel.
type Coordinator struct {
	source   media.Source
	store    scan.Store
	logger   *slog.Logger
	opts     Options
	eventBus *event.Bus

	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	byRoot map[string]*run
	byID   map[string]*run
}

// NewCoordinator creates a scan coordinator.
func NewCoordinator(source media.Source, store scan.Store, opts Options, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		source: source,
		store:  store,
		logger: logger.With(slog.String("component", "scan-coordinator")),
		opts:   opts.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
		byRoot: make(map[string]*run),
		byID:   make(map[string]*run),
	}
}

// SetEventBus sets the event bus for publishing scan events.
func (c *Coordinator) SetEventBus(bus *event.Bus) {
	c.eventBus = bus
}

// run is the in-memory state of one scan from trigger to terminal state.
type run struct {
	key    string
	snap   settings.Settings
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by Coordinator.mu until done is closed
	live scan.Scan

	// set before done is closed
	result scan.Scan
	err    error
}

// Handle refers to a triggered scan.
type Handle struct {
	ID    string
	Roots []string
	r     *run
}

// Done is closed once the scan reached a terminal state and was stored.
func (h *Handle) Done() <-chan struct{} { return h.r.done }

// Wait blocks until the scan finishes or ctx ends. It returns the terminal
// scan and, for failed scans, the cause.
func (h *Handle) Wait(ctx context.Context) (scan.Scan, error) {
	select {
	case <-h.r.done:
		return h.r.result.Clone(), h.r.err
	case <-ctx.Done():
		return scan.Scan{}, ctx.Err()
	}
}

// Trigger starts a scan of snap.ScanFolders using snap as the configuration
// for the whole run. It returns ErrScanInProgress at once when the same
// root-set is already running. When a root folder is unreachable the scan is
// stored as failed with zero files checked, and Trigger returns its handle
// together with an error wrapping ErrRootUnreachable.
func (c *Coordinator) Trigger(ctx context.Context, snap settings.Settings) (*Handle, error) {
	snap = snap.Clone()
	roots := slices.Clone(snap.ScanFolders)
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}
	key := scan.RootSetKey(roots)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		key:    key,
		snap:   snap,
		cancel: cancel,
		done:   make(chan struct{}),
		live: scan.Scan{
			ID:             c.newID(),
			StartedAt:      c.now(),
			RootFolders:    roots,
			ProblemFileIDs: []string{},
			Status:         scan.StatusRunning,
		},
	}

	c.mu.Lock()
	if _, busy := c.byRoot[key]; busy {
		c.mu.Unlock()
		cancel()
		return nil, ErrScanInProgress
	}
	c.byRoot[key] = r
	c.byID[r.live.ID] = r
	c.mu.Unlock()

	h := &Handle{ID: r.live.ID, Roots: slices.Clone(roots), r: r}
	c.logger.Info("scan started", "scan_id", h.ID, "roots", roots)
	c.publish(event.ScanStarted, r.live, nil)

	if err := checkRoots(ctx, roots); err != nil {
		c.finish(r, scan.StatusFailed, err, nil, 0)
		return h, err
	}

	go c.execute(runCtx, r)
	return h, nil
}

// Cancel requests cancellation of a running scan. It reports whether a
// running scan with that ID existed.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.Lock()
	r, ok := c.byID[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	r.cancel()
	return true
}

// Active returns snapshots of the running scans, oldest first.
func (c *Coordinator) Active() []scan.Scan {
	c.mu.Lock()
	out := make([]scan.Scan, 0, len(c.byID))
	for _, r := range c.byID {
		out = append(out, r.live.Clone())
	}
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b scan.Scan) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// Running returns the snapshot of a running scan.
func (c *Coordinator) Running(id string) (scan.Scan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byID[id]
	if !ok {
		return scan.Scan{}, false
	}
	return r.live.Clone(), true
}

// checkRoots verifies every root concurrently and reports all unreachable
// roots. Roots not yet checked when ctx ends are skipped.
func checkRoots(ctx context.Context, roots []string) error {
	var g errgroup.Group
	errs := make([]error, len(roots))
	for i, root := range roots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := filesystem.Check(root); err != nil {
				errs[i] = fmt.Errorf("%w: %s: %v", ErrRootUnreachable, root, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (c *Coordinator) execute(ctx context.Context, r *run) {
	defer r.cancel()

	ruleset := r.snap.Ruleset()
	var (
		files     []scan.ProblemFile
		attempted int
		skipped   int
		checked   int
	)

	skip := func(path string, err error) error {
		attempted++
		skipped++
		c.logger.Debug("file skipped", "scan_id", r.live.ID, "path", path, "error", err)
		c.update(r, checked, skipped)
		if attempted >= c.opts.MinSkipSample && c.overSkipRatio(skipped, attempted) {
			return fmt.Errorf("%w: %d of %d files skipped", ErrSkipThresholdExceeded, skipped, attempted)
		}
		return nil
	}

	for path, err := range c.source.ListFiles(r.live.RootFolders) {
		if ctx.Err() != nil {
			c.finish(r, scan.StatusCancelled, nil, nil, attempted)
			return
		}
		if err != nil {
			if errors.Is(err, media.ErrRootUnreachable) {
				// a vanished root invalidates the counts gathered so far
				c.update(r, 0, 0)
				c.finish(r, scan.StatusFailed, fmt.Errorf("%w: %v", ErrRootUnreachable, err), nil, 0)
				return
			}
			if abort := skip(path, err); abort != nil {
				c.finish(r, scan.StatusFailed, abort, nil, attempted)
				return
			}
			continue
		}

		md, err := c.source.Probe(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				c.finish(r, scan.StatusCancelled, nil, nil, attempted)
				return
			}
			if abort := skip(path, err); abort != nil {
				c.finish(r, scan.StatusFailed, abort, nil, attempted)
				return
			}
			continue
		}

		attempted++
		checked++
		name := filepath.Base(path)
		issues := rule.Classify(rule.Input{Filename: name, Metadata: md}, ruleset)
		if len(issues) > 0 {
			files = append(files, scan.ProblemFile{
				ID:       c.newID(),
				ScanID:   r.live.ID,
				Path:     path,
				Filename: name,
				Metadata: md,
				Issues:   issues,
			})
		}
		c.update(r, checked, skipped)
	}

	if ctx.Err() != nil {
		c.finish(r, scan.StatusCancelled, nil, nil, attempted)
		return
	}
	if skipped > 0 && c.overSkipRatio(skipped, attempted) {
		err := fmt.Errorf("%w: %d of %d files skipped", ErrSkipThresholdExceeded, skipped, attempted)
		c.finish(r, scan.StatusFailed, err, nil, attempted)
		return
	}
	c.finish(r, scan.StatusCompleted, nil, files, attempted)
}

func (c *Coordinator) overSkipRatio(skipped, attempted int) bool {
	return float64(skipped)/float64(attempted) > c.opts.MaxSkipRatio
}

func (c *Coordinator) update(r *run, checked, skipped int) {
	c.mu.Lock()
	r.live.FilesChecked = checked
	r.live.SkippedCount = skipped
	c.mu.Unlock()
}

// finish moves the run to its terminal state, stores it, frees the
// root-set and publishes the outcome. Only completed scans keep their
// problem files.
func (c *Coordinator) finish(r *run, status scan.Status, cause error, files []scan.ProblemFile, attempted int) {
	c.mu.Lock()
	final := r.live.Clone()
	c.mu.Unlock()

	completedAt := c.now()
	final.CompletedAt = &completedAt
	final.Status = status
	final.ProblemFileIDs = []string{}
	if status == scan.StatusCompleted {
		for _, f := range files {
			final.ProblemFileIDs = append(final.ProblemFileIDs, f.ID)
		}
	} else {
		files = nil
	}
	if cause != nil {
		final.Error = cause.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stored := true
	if err := c.store.Append(ctx, final, files); err != nil {
		c.logger.Error("storing scan", "scan_id", final.ID, "status", string(status), "error", err)
		cause = fmt.Errorf("%w: %v", ErrCommit, err)
		if status == scan.StatusCompleted {
			final.Status = scan.StatusFailed
			final.ProblemFileIDs = []string{}
			final.Error = cause.Error()
			if err := c.store.Append(ctx, final, nil); err != nil {
				c.logger.Error("storing failed scan record", "scan_id", final.ID, "error", err)
				stored = false
			}
		} else {
			stored = false
		}
	}

	c.mu.Lock()
	delete(c.byRoot, r.key)
	delete(c.byID, final.ID)
	c.mu.Unlock()

	r.result = final
	r.err = cause

	attrs := []any{
		"scan_id", final.ID,
		"status", string(final.Status),
		"files_checked", final.FilesChecked,
		"skipped", final.SkippedCount,
		"attempted", attempted,
		"problem_files", len(final.ProblemFileIDs),
	}
	switch final.Status {
	case scan.StatusFailed:
		c.logger.Warn("scan failed", append(attrs, "error", final.Error)...)
	case scan.StatusCancelled:
		c.logger.Info("scan cancelled", attrs...)
	default:
		c.logger.Info("scan completed", attrs...)
	}

	if stored {
		c.publish(event.ScanFinished, final, r.snap.Notification.Clone())
	}
	close(r.done)
}

func (c *Coordinator) publish(t event.Type, s scan.Scan, notification any) {
	// notification is nil or a notify.Config
	if c.eventBus == nil {
		return
	}
	data := map[string]any{
		event.KeyScanID: s.ID,
		event.KeyStatus: string(s.Status),
		event.KeyRoots:  slices.Clone(s.RootFolders),
	}
	if notification != nil {
		data[event.KeyNotification] = notification
	}
	c.eventBus.Publish(event.Event{Type: t, Data: data})
}
