package docker

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the Docker Engine operations the build service needs.
// EngineClient is the production implementation; tests substitute fakes.
type Client interface {
	// Image build
	BuildImage(ctx context.Context, spec BuildSpec) (*BuildResult, error)

	// Image operations
	InspectImage(ctx context.Context, ref string) (*ImageInfo, error)
	ImageExists(ctx context.Context, ref string) (bool, error)
	PullImage(ctx context.Context, ref string) error
	PushImage(ctx context.Context, ref string, auth RegistryAuth) error
	RemoveImage(ctx context.Context, ref string, force bool) error

	// Container operations for the run scenario
	CreateContainer(ctx context.Context, spec RunSpec) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	WaitContainer(ctx context.Context, containerID string) (int64, error)
	ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error)
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, force bool) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Build Types
// =============================================================================

// BuildSpec describes one image build.
type BuildSpec struct {
	// ContextDir is the directory archived as the build context.
	ContextDir string

	// Dockerfile is the rendered recipe injected into the context archive.
	// When empty, DockerfilePath names an existing file inside the context.
	Dockerfile     string
	DockerfilePath string

	// Tag is the image reference applied to the result.
	Tag string

	// ManifestFile, when set, must exist in the context and survive the
	// exclusion rules; the build fails fast before anything is archived
	// otherwise.
	ManifestFile string

	// ExcludePatterns are .dockerignore-style exclusions.
	ExcludePatterns []string

	// Labels are applied to the built image.
	Labels map[string]string

	// NoCache disables the engine's layer cache for this build.
	NoCache bool

	// Output receives the raw build log stream, line by line. May be nil.
	Output io.Writer
}

// BuildResult is the outcome of a successful build.
type BuildResult struct {
	ImageID string
	Log     []string
}

// =============================================================================
// Image Types
// =============================================================================

// ImageInfo is the inspected configuration of an image.
type ImageInfo struct {
	ID         string
	Tags       []string
	Env        []string
	Cmd        []string
	Entrypoint []string
	WorkingDir string
	Labels     map[string]string
	CreatedAt  time.Time
	Size       int64
}

// RegistryAuth carries registry credentials for a push.
type RegistryAuth struct {
	Username      string
	Password      string
	ServerAddress string
}

// =============================================================================
// Run Types
// =============================================================================

// PortBinding publishes one container port on the host.
type PortBinding struct {
	ContainerPort int
	HostPort      int // 0 = dynamically assigned
	Protocol      string
	HostIP        string
}

// RunSpec describes a container started from a built image.
type RunSpec struct {
	Image      string
	Name       string
	Env        map[string]string
	Ports      []PortBinding
	Labels     map[string]string
	AutoRemove bool
}

// LogOptions controls container log retrieval.
type LogOptions struct {
	Follow     bool
	Tail       string
	Timestamps bool
	Since      time.Time
}
