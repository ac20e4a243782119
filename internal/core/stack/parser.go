// Package stack extracts build requests from Docker Compose files so a whole
// multi-service project can be queued as one set of builds.
// This is part of the Functional Core - all functions are pure with no I/O.
package stack

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/calfort/skiff/internal/core/domain"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrEmptyInput is returned when the compose content is blank.
	ErrEmptyInput = errors.New("compose content is empty")

	// ErrInvalidYAML is returned when the content is not valid compose YAML.
	ErrInvalidYAML = errors.New("invalid compose YAML")

	// ErrNoServices is returned when the file declares no services.
	ErrNoServices = errors.New("compose file declares no services")

	// ErrNoBuildableServices is returned when no service has a build section.
	ErrNoBuildableServices = errors.New("no service declares a build section")

	// ErrServiceNoSource is returned when a service has neither image nor build.
	ErrServiceNoSource = errors.New("service must declare image or build")
)

// ParseError wraps compose parse errors with path context.
type ParseError struct {
	Path    string // compose path (e.g. "services.bot")
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(path, message string, err error) *ParseError {
	return &ParseError{Path: path, Message: message, Err: err}
}

// =============================================================================
// Types
// =============================================================================

// BuildRequest is one service extracted from a compose file that needs an
// image built.
type BuildRequest struct {
	Service    string `json:"service"`
	ContextDir string `json:"context_dir"`
	Dockerfile string `json:"dockerfile,omitempty"` // relative to ContextDir; empty means generated recipe
	Tag        string `json:"tag"`
}

// Stack is the parsed set of build requests for a compose project.
type Stack struct {
	Name     string         `json:"name"`
	Requests []BuildRequest `json:"requests"`
	Skipped  []string       `json:"skipped,omitempty"` // image-only services, nothing to build
}

// =============================================================================
// Parsing
// =============================================================================

// Parse parses compose YAML and extracts one BuildRequest per service with a
// build section. Services that only reference a prebuilt image are recorded
// in Skipped. projectName names the stack and prefixes derived tags.
func Parse(yamlContent, projectName string) (*Stack, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadCompose(yamlContent, projectName)
	if err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	stack := &Stack{Name: project.Name}
	for _, svc := range project.Services {
		if svc.Build == nil {
			if svc.Image == "" {
				return nil, NewParseError("services."+svc.Name, "service has neither image nor build", ErrServiceNoSource)
			}
			stack.Skipped = append(stack.Skipped, svc.Name)
			continue
		}

		tag := svc.Image
		if tag == "" {
			tag = fmt.Sprintf("%s-%s:latest", domain.Slugify(project.Name), domain.Slugify(svc.Name))
		}

		contextDir := svc.Build.Context
		if contextDir == "" {
			contextDir = "."
		}

		stack.Requests = append(stack.Requests, BuildRequest{
			Service:    svc.Name,
			ContextDir: contextDir,
			Dockerfile: svc.Build.Dockerfile,
			Tag:        tag,
		})
	}

	if len(stack.Requests) == 0 {
		return nil, ErrNoBuildableServices
	}

	return stack, nil
}

// loadCompose loads a compose project using compose-go.
func loadCompose(yamlContent, projectName string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	if projectName == "" {
		projectName = "skiff-stack"
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(domain.Slugify(projectName), false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory content: nothing to resolve on disk
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewParseError("", "service must have image or build", ErrServiceNoSource)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}
