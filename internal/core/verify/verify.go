// Package verify checks a built image's configuration against the launch
// contract: interpreter flags, default command, working directory.
// This is part of the Functional Core - all functions are pure with no I/O.
package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/calfort/skiff/internal/core/recipe"
)

// =============================================================================
// Inputs
// =============================================================================

// ImageConfig is the subset of an inspected image's configuration the
// contract constrains. Env entries are in "NAME=value" form, as the engine
// reports them.
type ImageConfig struct {
	ImageID    string
	Env        []string
	Cmd        []string
	Entrypoint []string
	WorkingDir string
}

// =============================================================================
// Report
// =============================================================================

// Check is the outcome of one contract check.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of verifying one image.
type Report struct {
	ImageID string  `json:"image_id"`
	Checks  []Check `json:"checks"`
}

// OK reports whether every check passed.
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Failures returns the failed checks.
func (r Report) Failures() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.OK {
			failed = append(failed, c)
		}
	}
	return failed
}

// =============================================================================
// Verification
// =============================================================================

// Image verifies an inspected image config against a plan. The plan supplies
// the expected command, working directory and any declared extra env; the two
// interpreter flags are required regardless.
func Image(cfg ImageConfig, plan recipe.Plan) Report {
	report := Report{ImageID: cfg.ImageID}

	env := parseEnv(cfg.Env)

	// Interpreter flags: both present, both exactly "1"
	for name := range recipe.InterpreterEnv() {
		got, ok := env[name]
		switch {
		case !ok:
			report.Checks = append(report.Checks, Check{
				Name:   "env:" + name,
				Detail: "not set",
			})
		case got != "1":
			report.Checks = append(report.Checks, Check{
				Name:   "env:" + name,
				Detail: fmt.Sprintf("set to %q, want \"1\"", got),
			})
		default:
			report.Checks = append(report.Checks, Check{Name: "env:" + name, OK: true})
		}
	}

	// Variables beyond the interpreter flags and declared extras are
	// informational only: the base image legitimately adds variables across
	// releases, so they are listed but never fail the contract.
	extra := extraEnv(env, plan.ExtraEnv)
	if len(extra) > 0 {
		report.Checks = append(report.Checks, Check{
			Name:   "env:extra",
			OK:     true,
			Detail: strings.Join(extra, ", "),
		})
	} else {
		report.Checks = append(report.Checks, Check{Name: "env:extra", OK: true})
	}

	// Default command: exec-form interpreter invocation, no arguments
	wantCmd := plan.Command()
	if equalArgv(cfg.Cmd, wantCmd) {
		report.Checks = append(report.Checks, Check{Name: "cmd", OK: true})
	} else {
		report.Checks = append(report.Checks, Check{
			Name:   "cmd",
			Detail: fmt.Sprintf("got %v, want %v", cfg.Cmd, wantCmd),
		})
	}

	// No entrypoint wrapper: the command must be the foreground process
	if len(cfg.Entrypoint) == 0 {
		report.Checks = append(report.Checks, Check{Name: "entrypoint", OK: true})
	} else {
		report.Checks = append(report.Checks, Check{
			Name:   "entrypoint",
			Detail: fmt.Sprintf("unexpected entrypoint %v", cfg.Entrypoint),
		})
	}

	// Fixed working directory
	if cfg.WorkingDir == plan.WorkDir {
		report.Checks = append(report.Checks, Check{Name: "workdir", OK: true})
	} else {
		report.Checks = append(report.Checks, Check{
			Name:   "workdir",
			Detail: fmt.Sprintf("got %q, want %q", cfg.WorkingDir, plan.WorkDir),
		})
	}

	return report
}

func parseEnv(entries []string) map[string]string {
	env := make(map[string]string, len(entries))
	for _, e := range entries {
		name, value, _ := strings.Cut(e, "=")
		env[name] = value
	}
	return env
}

func extraEnv(env map[string]string, declared map[string]string) []string {
	reserved := recipe.InterpreterEnv()
	var names []string
	for name := range env {
		if _, ok := reserved[name]; ok {
			continue
		}
		if _, ok := declared[name]; ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func equalArgv(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
