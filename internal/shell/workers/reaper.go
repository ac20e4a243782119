package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/calfort/skiff/internal/core/domain"
	"github.com/calfort/skiff/internal/shell/docker"
	"github.com/calfort/skiff/internal/shell/store"
)

// =============================================================================
// Configuration
// =============================================================================

// ReaperConfig configures the build retention worker.
type ReaperConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// DefaultReaperConfig returns default configuration.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:  1 * time.Hour,
		Retention: 7 * 24 * time.Hour,
	}
}

// =============================================================================
// Reaper
// =============================================================================

// Reaper prunes finished builds past the retention window and removes the
// images they left behind when nothing newer references them.
type Reaper struct {
	store  store.Store
	docker docker.Client
	config ReaperConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a new retention worker.
func NewReaper(s store.Store, d docker.Client, config ReaperConfig, logger *slog.Logger) *Reaper {
	if config.Interval == 0 {
		config.Interval = 1 * time.Hour
	}
	if config.Retention == 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reaper{
		store:  s,
		docker: d,
		config: config,
		logger: logger.With("component", "reaper"),
	}
}

// Start begins the reaper background goroutine.
func (r *Reaper) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.run()
	r.logger.Info("reaper started", "interval", r.config.Interval, "retention", r.config.Retention)
}

// Stop gracefully stops the reaper.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("reaper stopped")
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runCycle()
		}
	}
}

// runCycle prunes one batch of expired builds.
func (r *Reaper) runCycle() {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-r.config.Retention)
	expired, err := r.store.ListFinishedBuildsBefore(ctx, cutoff, store.ListOptions{Limit: 200})
	if err != nil {
		r.logger.Error("failed to list expired builds", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	r.logger.Debug("pruning expired builds", "count", len(expired))

	pruned := 0
	for i := range expired {
		build := &expired[i]
		if err := r.pruneBuild(ctx, build); err != nil {
			r.logger.Error("failed to prune build", "build_id", build.ID, "error", err)
			continue
		}
		pruned++
	}

	r.logger.Info("expired builds pruned", "pruned", pruned, "cutoff", cutoff)
}

// pruneBuild removes a build's image when it is no longer the project's
// current one, then deletes the row.
func (r *Reaper) pruneBuild(ctx context.Context, build *domain.Build) error {
	if build.Status == domain.StatusSucceeded && build.ImageID != "" {
		if r.imageUnreferenced(ctx, build) {
			if err := r.docker.RemoveImage(ctx, build.ImageID, false); err != nil &&
				!errors.Is(err, docker.ErrImageNotFound) {
				// Images shared with running containers stay put; the row
				// still ages out.
				r.logger.Warn("failed to remove image", "build_id", build.ID, "image_id", build.ImageID, "error", err)
			}
		}
	}

	return r.store.DeleteBuild(ctx, build.ID)
}

// imageUnreferenced reports whether the build's image is superseded by a
// newer succeeded build of the same project.
func (r *Reaper) imageUnreferenced(ctx context.Context, build *domain.Build) bool {
	latest, err := r.store.GetLatestSucceededBuild(ctx, build.Slug)
	if errors.Is(err, store.ErrNotFound) {
		// No succeeded build left to protect the image.
		return true
	}
	if err != nil {
		// A transient store error must not look like "unreferenced", or a
		// current image gets deleted. Keep the image, the row still ages out.
		r.logger.Warn("failed to resolve current build, keeping image",
			"build_id", build.ID, "error", err)
		return false
	}
	return latest.ID != build.ID && latest.ImageID != build.ImageID
}
