package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Build Errors
// =============================================================================

var (
	ErrEmptyProjectName   = errors.New("project name must not be empty")
	ErrInvalidProjectName = errors.New("project name has no sluggable characters")
	ErrEmptyContextDir    = errors.New("build context directory must not be empty")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// =============================================================================
// Build Status
// =============================================================================

type BuildStatus string

const (
	StatusPending   BuildStatus = "pending"
	StatusBuilding  BuildStatus = "building"
	StatusSucceeded BuildStatus = "succeeded"
	StatusFailed    BuildStatus = "failed"
	StatusCanceled  BuildStatus = "canceled"
)

// Terminal reports whether the status is a terminal state.
func (s BuildStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// =============================================================================
// Build Steps
// =============================================================================

// StepName identifies one stage of the build pipeline. The order of the
// pipeline is fixed: render, archive, build, inspect, verify.
type StepName string

const (
	StepRender  StepName = "render"
	StepArchive StepName = "archive"
	StepBuild   StepName = "build"
	StepInspect StepName = "inspect"
	StepVerify  StepName = "verify"
)

// PipelineSteps returns the build pipeline stages in execution order.
func PipelineSteps() []StepName {
	return []StepName{StepRender, StepArchive, StepBuild, StepInspect, StepVerify}
}

// StepEvent records the outcome of one pipeline stage for a build.
type StepEvent struct {
	BuildID    string    `json:"build_id"`
	Step       StepName  `json:"step"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// =============================================================================
// Build
// =============================================================================

// Build represents one image build request and its lifecycle.
type Build struct {
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
	Slug        string `json:"slug"`
	ContextDir  string `json:"context_dir"`
	Tag         string `json:"tag"`

	// Dockerfile, when set, names a build file inside the context that
	// drives the engine build instead of the generated recipe. The launch
	// contract is still verified against the resulting image.
	Dockerfile string `json:"dockerfile,omitempty"`

	Status         BuildStatus `json:"status"`
	ManifestDigest string      `json:"manifest_digest,omitempty"`
	ImageID        string      `json:"image_id,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
}

// NewBuild creates a pending build for a project context directory.
// If tag is empty, a tag is derived from the project slug.
func NewBuild(projectName, contextDir, tag string) (*Build, error) {
	if projectName == "" {
		return nil, ErrEmptyProjectName
	}
	if contextDir == "" {
		return nil, ErrEmptyContextDir
	}

	slug := Slugify(projectName)
	if slug == "" {
		return nil, ErrInvalidProjectName
	}
	if tag == "" {
		tag = fmt.Sprintf("%s:latest", slug)
	} else {
		ref, err := ParseImageRef(tag)
		if err != nil {
			return nil, err
		}
		tag = ref.String()
	}

	now := time.Now().UTC()
	return &Build{
		ID:          uuid.New().String(),
		ProjectName: projectName,
		Slug:        slug,
		ContextDir:  contextDir,
		Tag:         tag,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition attempts to transition the build to a new status.
func (b *Build) Transition(to BuildStatus) error {
	if err := ValidateTransition(b.Status, to); err != nil {
		return err
	}

	b.Status = to
	b.UpdatedAt = time.Now().UTC()

	// Clear stale failure state on retry
	if to == StatusBuilding {
		b.ErrorMessage = ""
		now := time.Now().UTC()
		b.StartedAt = &now
		b.FinishedAt = nil
	}

	if to.Terminal() {
		now := time.Now().UTC()
		b.FinishedAt = &now
	}

	return nil
}

// Fail transitions the build to failed with an error message.
func (b *Build) Fail(errorMessage string) error {
	if err := b.Transition(StatusFailed); err != nil {
		return err
	}
	b.ErrorMessage = errorMessage
	return nil
}

// =============================================================================
// State Machine
// =============================================================================

// validTransitions defines the allowed state transitions.
var validTransitions = map[BuildStatus][]BuildStatus{
	StatusPending:   {StatusBuilding, StatusCanceled},
	StatusBuilding:  {StatusSucceeded, StatusFailed, StatusCanceled},
	StatusFailed:    {StatusBuilding}, // retry re-runs the whole pipeline
	StatusSucceeded: {},
	StatusCanceled:  {},
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to BuildStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return ErrInvalidTransition
}

// =============================================================================
// Name Generation
// =============================================================================

// GenerateBuildName generates a unique, human-readable build name.
func GenerateBuildName(slug string) string {
	suffix := make([]byte, 3)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%s", slug, hex.EncodeToString(suffix))
}
