// Package workers hosts the background loops of the build service: the
// builder pool draining the queue and the reaper pruning old builds.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/calfort/skiff/internal/core/domain"
	"github.com/calfort/skiff/internal/core/manifest"
	"github.com/calfort/skiff/internal/core/project"
	"github.com/calfort/skiff/internal/core/recipe"
	"github.com/calfort/skiff/internal/core/verify"
	"github.com/calfort/skiff/internal/shell/docker"
	"github.com/calfort/skiff/internal/shell/store"
)

// =============================================================================
// Configuration
// =============================================================================

// BuilderConfig configures the build worker pool.
type BuilderConfig struct {
	Interval      time.Duration
	MaxConcurrent int
	BuildTimeout  time.Duration
	NoCache       bool
}

// DefaultBuilderConfig returns default configuration.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Interval:      5 * time.Second,
		MaxConcurrent: 2,
		BuildTimeout:  15 * time.Minute,
	}
}

// =============================================================================
// Builder
// =============================================================================

// Builder polls for pending builds and runs them through the pipeline:
// render, archive, build, inspect, verify.
type Builder struct {
	store  store.Store
	docker docker.Client
	config BuilderConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBuilder creates a new build worker pool.
func NewBuilder(s store.Store, d docker.Client, config BuilderConfig, logger *slog.Logger) *Builder {
	if config.Interval == 0 {
		config.Interval = 5 * time.Second
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 2
	}
	if config.BuildTimeout == 0 {
		config.BuildTimeout = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		store:  s,
		docker: d,
		config: config,
		logger: logger.With("component", "builder"),
	}
}

// Start begins the builder background goroutine, first settling any builds
// a previous process left mid-flight.
func (b *Builder) Start() {
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.recoverInterrupted()
	b.wg.Add(1)
	go b.run()
	b.logger.Info("builder started", "interval", b.config.Interval, "max_concurrent", b.config.MaxConcurrent)
}

// recoverInterrupted fails builds stranded in building by a process that
// died mid-pipeline. The engine work they were doing is lost with the old
// process, so they cannot be resumed; retrying is a fresh request.
func (b *Builder) recoverInterrupted() {
	stranded, err := b.store.ListBuildsByStatus(b.ctx, domain.StatusBuilding, store.ListOptions{Limit: 100})
	if err != nil {
		b.logger.Error("failed to list interrupted builds", "error", err)
		return
	}
	for i := range stranded {
		build := stranded[i]
		logger := b.logger.With("build_id", build.ID, "project", build.ProjectName)
		if err := build.Fail("interrupted by restart"); err != nil {
			logger.Error("failed to transition interrupted build", "error", err)
			continue
		}
		if err := b.store.UpdateBuild(b.ctx, &build); err != nil {
			logger.Error("failed to persist interrupted build", "error", err)
			continue
		}
		logger.Warn("build interrupted by restart, marked failed")
	}
}

// Stop aborts in-flight builds and waits for their goroutines to settle.
// Aborted builds are persisted as failed, not left in building.
func (b *Builder) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.logger.Info("builder stopped")
}

func (b *Builder) run() {
	defer b.wg.Done()

	b.runCycle()

	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.runCycle()
		}
	}
}

// runCycle drains the pending queue, bounded by MaxConcurrent.
func (b *Builder) runCycle() {
	pending, err := b.store.ListBuildsByStatus(b.ctx, domain.StatusPending, store.ListOptions{Limit: 100})
	if err != nil {
		b.logger.Error("failed to list pending builds", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	sem := make(chan struct{}, b.config.MaxConcurrent)
	var wg sync.WaitGroup

	for i := range pending {
		build := pending[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-b.ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}
			b.runBuild(&build)
		}()
	}

	wg.Wait()
}

// =============================================================================
// Pipeline
// =============================================================================

// runBuild executes the full pipeline for one build. Any step failure is
// fatal for the build: it transitions to failed with the step recorded, and
// there is no retry.
func (b *Builder) runBuild(build *domain.Build) {
	ctx, cancel := context.WithTimeout(b.ctx, b.config.BuildTimeout)
	defer cancel()

	logger := b.logger.With("build_id", build.ID, "project", build.ProjectName)

	// Claim the build from a fresh row. A cancel may have raced the poll;
	// the state machine rejects the claim then and we skip silently.
	fresh, err := b.store.GetBuild(ctx, build.ID)
	if err != nil {
		logger.Error("failed to load build", "error", err)
		return
	}
	*build = *fresh
	if err := build.Transition(domain.StatusBuilding); err != nil {
		return
	}
	if err := b.store.UpdateBuild(ctx, build); err != nil {
		if errors.Is(err, store.ErrConflict) {
			logger.Info("build claimed away or canceled, skipping")
			return
		}
		logger.Error("failed to claim build", "error", err)
		return
	}

	logger.Info("build started", "tag", build.Tag)

	// Step 1: render the recipe.
	plan, dockerfile, err := b.render(ctx, build)
	if err != nil {
		b.failBuild(ctx, build, domain.StepRender, err, logger)
		return
	}
	b.recordStep(ctx, build.ID, domain.StepRender, true, "")

	// Steps 2+3: archive the context and run the engine build. The archive
	// happens inside BuildImage; archive-class errors are told apart from
	// engine errors by their sentinel.
	logs := &logCollector{}
	spec := docker.BuildSpec{
		ContextDir:      build.ContextDir,
		Tag:             build.Tag,
		ManifestFile:    plan.ManifestFile,
		ExcludePatterns: docker.ReadIgnoreFile(build.ContextDir),
		Labels: map[string]string{
			"skiff.build_id": build.ID,
			"skiff.project":  build.Slug,
		},
		NoCache: b.config.NoCache,
		Output:  logs,
	}
	if build.Dockerfile != "" {
		// A build file declared on the request overrides the generated
		// recipe. The launch contract check still runs on the result.
		spec.DockerfilePath = build.Dockerfile
	} else {
		spec.Dockerfile = dockerfile
	}
	result, err := b.docker.BuildImage(ctx, spec)
	b.persistLog(ctx, build.ID, logs.Lines(), logger)
	if err != nil {
		step := domain.StepBuild
		if isArchiveError(err) {
			step = domain.StepArchive
		} else {
			b.recordStep(ctx, build.ID, domain.StepArchive, true, "")
		}
		b.failBuild(ctx, build, step, err, logger)
		return
	}
	b.recordStep(ctx, build.ID, domain.StepArchive, true, "")
	b.recordStep(ctx, build.ID, domain.StepBuild, true, "")

	// Step 4: inspect the result.
	imageRef := result.ImageID
	if imageRef == "" {
		imageRef = build.Tag
	}
	info, err := b.docker.InspectImage(ctx, imageRef)
	if err != nil {
		b.failBuild(ctx, build, domain.StepInspect, err, logger)
		return
	}
	b.recordStep(ctx, build.ID, domain.StepInspect, true, "")
	build.ImageID = info.ID

	// Step 5: verify the launch contract.
	report := verify.Image(verify.ImageConfig{
		ImageID:    info.ID,
		Env:        info.Env,
		Cmd:        info.Cmd,
		Entrypoint: info.Entrypoint,
		WorkingDir: info.WorkingDir,
	}, plan)
	if !report.OK() {
		err := fmt.Errorf("image violates launch contract: %s", describeFailures(report))
		b.failBuild(ctx, build, domain.StepVerify, err, logger)
		return
	}
	b.recordStep(ctx, build.ID, domain.StepVerify, true, "")

	if err := build.Transition(domain.StatusSucceeded); err != nil {
		logger.Error("failed to mark build succeeded", "error", err)
		return
	}
	if err := b.store.UpdateBuild(context.WithoutCancel(ctx), build); err != nil {
		if errors.Is(err, store.ErrConflict) {
			logger.Info("build status changed during run, discarding result")
			return
		}
		logger.Error("failed to persist succeeded build", "error", err)
		return
	}

	logger.Info("build succeeded", "image_id", build.ImageID, "tag", build.Tag)
}

// render loads the project descriptor, renders the Dockerfile and records
// the manifest digest for idempotence checks.
func (b *Builder) render(ctx context.Context, build *domain.Build) (recipe.Plan, string, error) {
	plan, err := PlanForContext(build.ContextDir)
	if err != nil {
		return recipe.Plan{}, "", err
	}

	dockerfile, err := plan.Render()
	if err != nil {
		return recipe.Plan{}, "", err
	}

	// The manifest digest is best-effort here: a missing manifest is the
	// archive step's failure to report, with its own error class.
	content, err := os.ReadFile(filepath.Join(build.ContextDir, plan.ManifestFile))
	if err == nil {
		if m, perr := manifest.Parse(string(content)); perr == nil {
			build.ManifestDigest = m.Digest
			if uerr := b.store.UpdateBuild(ctx, build); uerr != nil {
				return recipe.Plan{}, "", uerr
			}
		}
	}

	return plan, dockerfile, nil
}

// failBuild records the failing step and transitions the build to failed.
func (b *Builder) failBuild(ctx context.Context, build *domain.Build, step domain.StepName, cause error, logger *slog.Logger) {
	// The build context may already be dead here, from the per-build timeout
	// or a shutdown. The terminal state still has to land in the store, or
	// the row stays in building forever.
	ctx = context.WithoutCancel(ctx)

	b.recordStep(ctx, build.ID, step, false, cause.Error())

	if err := build.Fail(fmt.Sprintf("%s: %v", step, cause)); err != nil {
		logger.Error("failed to transition build to failed", "step", step, "error", err)
		return
	}
	if err := b.store.UpdateBuild(ctx, build); err != nil {
		if errors.Is(err, store.ErrConflict) {
			logger.Info("build status changed during run, discarding failure", "step", step)
			return
		}
		logger.Error("failed to persist failed build", "step", step, "error", err)
		return
	}

	logger.Warn("build failed", "step", step, "error", cause)
}

func (b *Builder) recordStep(ctx context.Context, buildID string, step domain.StepName, success bool, message string) {
	err := b.store.CreateStepEvent(ctx, &domain.StepEvent{
		BuildID:    buildID,
		Step:       step,
		Success:    success,
		Message:    message,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error("failed to record step event", "build_id", buildID, "step", step, "error", err)
	}
}

func (b *Builder) persistLog(ctx context.Context, buildID string, lines []string, logger *slog.Logger) {
	if len(lines) == 0 {
		return
	}
	if err := b.store.AppendBuildLog(ctx, buildID, lines); err != nil {
		logger.Error("failed to persist build log", "error", err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

// PlanForContext builds the recipe plan for a context directory, honoring an
// optional skiff.yaml descriptor. A missing descriptor yields the default
// contract.
func PlanForContext(dir string) (recipe.Plan, error) {
	content, err := os.ReadFile(filepath.Join(dir, project.DescriptorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return project.Default().Plan(), nil
		}
		return recipe.Plan{}, err
	}

	desc, err := project.Parse(content)
	if err != nil {
		return recipe.Plan{}, err
	}
	return desc.Plan(), nil
}

// isArchiveError reports whether a build failure happened before anything
// reached the engine.
func isArchiveError(err error) bool {
	return errors.Is(err, docker.ErrContextMissing) ||
		errors.Is(err, docker.ErrManifestMissing) ||
		errors.Is(err, docker.ErrManifestExcluded)
}

func describeFailures(report verify.Report) string {
	failures := report.Failures()
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Name, f.Detail))
	}
	return strings.Join(parts, "; ")
}

// logCollector buffers build output lines for persistence.
type logCollector struct {
	mu      sync.Mutex
	partial strings.Builder
	lines   []string
}

func (c *logCollector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			c.lines = append(c.lines, c.partial.String())
			c.partial.Reset()
			continue
		}
		c.partial.WriteByte(b)
	}
	return len(p), nil
}

// Lines returns the collected lines, flushing any trailing partial line.
func (c *logCollector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.partial.Len() > 0 {
		c.lines = append(c.lines, c.partial.String())
		c.partial.Reset()
	}
	return c.lines
}
