// Package project parses the optional per-project descriptor file
// (skiff.yaml) that tunes the build recipe. A missing descriptor means the
// default contract applies unchanged.
// This is part of the Functional Core - all functions are pure with no I/O.
package project

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/calfort/skiff/internal/core/recipe"
)

// DescriptorFile is the well-known descriptor filename in a project root.
const DescriptorFile = "skiff.yaml"

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidDescriptor is returned when the YAML cannot be parsed.
	ErrInvalidDescriptor = errors.New("invalid project descriptor")

	// ErrUnsupportedVersion is returned for a python version outside the
	// supported slim-image set.
	ErrUnsupportedVersion = errors.New("unsupported python version")
)

// supportedVersions is the allow-list of python slim base images the build
// service knows how to pull.
var supportedVersions = map[string]bool{
	"3.8":  true,
	"3.9":  true,
	"3.10": true,
	"3.11": true,
	"3.12": true,
	"3.13": true,
}

// =============================================================================
// Descriptor
// =============================================================================

// Descriptor is the parsed skiff.yaml.
type Descriptor struct {
	Name          string            `yaml:"name"`
	PythonVersion string            `yaml:"python_version"`
	Entrypoint    string            `yaml:"entrypoint"`
	Env           map[string]string `yaml:"env"`
	Port          int               `yaml:"port"`
	Image         string            `yaml:"image"`
}

// Default returns the descriptor matching the unmodified launch contract.
func Default() Descriptor {
	return Descriptor{
		PythonVersion: recipe.DefaultPythonVersion,
		Entrypoint:    recipe.DefaultEntrypoint,
	}
}

// Parse parses skiff.yaml content. Omitted fields fall back to the default
// contract values.
func Parse(content []byte) (Descriptor, error) {
	d := Default()

	if len(content) > 0 {
		if err := yaml.Unmarshal(content, &d); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
		}
	}

	if strings.TrimSpace(d.PythonVersion) == "" {
		d.PythonVersion = recipe.DefaultPythonVersion
	}
	if strings.TrimSpace(d.Entrypoint) == "" {
		d.Entrypoint = recipe.DefaultEntrypoint
	}

	if err := d.validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func (d Descriptor) validate() error {
	if !supportedVersions[d.PythonVersion] {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, d.PythonVersion)
	}
	// Plan validation covers entrypoint, env and port rules
	return d.Plan().Validate()
}

// Plan converts the descriptor to a build plan.
func (d Descriptor) Plan() recipe.Plan {
	p := recipe.NewPlan()
	p.PythonVersion = d.PythonVersion
	p.Entrypoint = d.Entrypoint
	if len(d.Env) > 0 {
		p.ExtraEnv = d.Env
	}
	p.ExposePort = d.Port
	return p
}
