package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// CreateBuildRequest is the request body for queueing a build.
type CreateBuildRequest struct {
	ProjectName string `json:"project_name"`
	ContextDir  string `json:"context_dir"`
	Tag         string `json:"tag,omitempty"`
}

// RunRequest is the request body for starting a container from a build.
type RunRequest struct {
	Name  string            `json:"name,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
	Ports []PortRequest     `json:"ports,omitempty"`
}

// PortRequest publishes one container port on the host.
type PortRequest struct {
	ContainerPort int    `json:"container_port"`
	HostPort      int    `json:"host_port,omitempty"`
	Protocol      string `json:"protocol,omitempty"`
}

// CreateStackBuildRequest is the request body for a compose fan-out build.
type CreateStackBuildRequest struct {
	ProjectName string `json:"project_name"`
	ComposeYAML string `json:"compose_yaml"`
	WorkDir     string `json:"work_dir"`
}

// CreateTokenRequest is the request body for minting an API token.
type CreateTokenRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// Response Types
// =============================================================================

// BuildResponse is the response for build operations.
type BuildResponse struct {
	ID             string     `json:"id"`
	ProjectName    string     `json:"project_name"`
	Slug           string     `json:"slug"`
	ContextDir     string     `json:"context_dir"`
	Tag            string     `json:"tag"`
	Dockerfile     string     `json:"dockerfile,omitempty"`
	Status         string     `json:"status"`
	ManifestDigest string     `json:"manifest_digest,omitempty"`
	ImageID        string     `json:"image_id,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// ListBuildsResponse is the response for listing builds.
type ListBuildsResponse struct {
	Builds []BuildResponse `json:"builds"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// StepResponse is one pipeline-stage outcome.
type StepResponse struct {
	Step       string    `json:"step"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StepsResponse lists the per-stage outcomes of a build.
type StepsResponse struct {
	BuildID string         `json:"build_id"`
	Steps   []StepResponse `json:"steps"`
}

// LogResponse carries a build's log lines.
type LogResponse struct {
	BuildID string   `json:"build_id"`
	Lines   []string `json:"lines"`
}

// CheckResponse is one launch-contract check result.
type CheckResponse struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// VerifyResponse reports an image's conformance checks.
type VerifyResponse struct {
	BuildID string          `json:"build_id"`
	ImageID string          `json:"image_id"`
	OK      bool            `json:"ok"`
	Checks  []CheckResponse `json:"checks"`
}

// RunResponse reports a started container.
type RunResponse struct {
	BuildID     string `json:"build_id"`
	ContainerID string `json:"container_id"`
	Image       string `json:"image"`
}

// StackBuildResponse reports the builds queued from one compose file.
type StackBuildResponse struct {
	Stack   string          `json:"stack"`
	Builds  []BuildResponse `json:"builds"`
	Skipped []string        `json:"skipped"`
}

// TokenResponse is the response for token operations. Token carries the
// plaintext value and is only populated at creation time.
type TokenResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListTokensResponse is the response for listing tokens.
type ListTokensResponse struct {
	Tokens []TokenResponse `json:"tokens"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
