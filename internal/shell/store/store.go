package store

import (
	"context"
	"time"

	"github.com/calfort/skiff/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for Skiff entities.
type Store interface {
	// Build operations
	CreateBuild(ctx context.Context, build *domain.Build) error
	GetBuild(ctx context.Context, id string) (*domain.Build, error)
	UpdateBuild(ctx context.Context, build *domain.Build) error
	DeleteBuild(ctx context.Context, id string) error
	ListBuilds(ctx context.Context, opts ListOptions) ([]domain.Build, error)
	ListBuildsByStatus(ctx context.Context, status domain.BuildStatus, opts ListOptions) ([]domain.Build, error)
	GetLatestSucceededBuild(ctx context.Context, slug string) (*domain.Build, error)
	ListFinishedBuildsBefore(ctx context.Context, cutoff time.Time, opts ListOptions) ([]domain.Build, error)

	// Step event operations (per-stage pipeline outcomes)
	CreateStepEvent(ctx context.Context, event *domain.StepEvent) error
	ListStepEvents(ctx context.Context, buildID string) ([]domain.StepEvent, error)

	// Build log operations
	AppendBuildLog(ctx context.Context, buildID string, lines []string) error
	GetBuildLog(ctx context.Context, buildID string) ([]string, error)

	// API token operations
	CreateAPIToken(ctx context.Context, token *domain.APIToken) error
	GetAPIToken(ctx context.Context, id string) (*domain.APIToken, error)
	ListAPITokens(ctx context.Context) ([]domain.APIToken, error)
	DeleteAPIToken(ctx context.Context, id string) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
