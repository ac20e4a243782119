package recipe

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// Contract Constants
// =============================================================================

const (
	// DefaultPythonVersion is the interpreter version used when none is declared.
	DefaultPythonVersion = "3.10"

	// DefaultWorkDir is the fixed working directory inside the image.
	DefaultWorkDir = "/app"

	// DefaultManifestFile is the dependency manifest consumed by the install step.
	DefaultManifestFile = "requirements.txt"

	// DefaultEntrypoint is the application entry point script.
	DefaultEntrypoint = "main.py"

	// EnvNoBytecode suppresses writing of compiled-bytecode cache files.
	EnvNoBytecode = "PYTHONDONTWRITEBYTECODE"

	// EnvUnbuffered disables stdout/stderr buffering so log lines flush
	// immediately instead of being batched.
	EnvUnbuffered = "PYTHONUNBUFFERED"
)

// InterpreterEnv returns the interpreter-behavior flags every image carries.
// Both are set to "1" on every process started from the image.
func InterpreterEnv() map[string]string {
	return map[string]string{
		EnvNoBytecode: "1",
		EnvUnbuffered: "1",
	}
}

// =============================================================================
// Step Types
// =============================================================================

// StepKind identifies one instruction of the build recipe.
type StepKind string

const (
	StepFrom         StepKind = "from"
	StepWorkdir      StepKind = "workdir"
	StepCopyManifest StepKind = "copy_manifest"
	StepInstall      StepKind = "install"
	StepCopyProject  StepKind = "copy_project"
	StepEnv          StepKind = "env"
	StepExpose       StepKind = "expose"
	StepCmd          StepKind = "cmd"
)

// Step is one rendered build instruction.
type Step struct {
	Kind        StepKind `json:"kind"`
	Instruction string   `json:"instruction"`
}

// =============================================================================
// Plan
// =============================================================================

// Plan describes the image build and launch contract for one application.
// The zero value is not usable; construct plans with NewPlan.
type Plan struct {
	PythonVersion string            `json:"python_version"`
	WorkDir       string            `json:"workdir"`
	ManifestFile  string            `json:"manifest_file"`
	Entrypoint    string            `json:"entrypoint"`
	ExtraEnv      map[string]string `json:"extra_env,omitempty"`
	ExposePort    int               `json:"expose_port,omitempty"`
}

// NewPlan returns a plan carrying the default contract: Python slim base,
// /app working directory, requirements.txt install, main.py entry point and
// the two interpreter flags.
func NewPlan() Plan {
	return Plan{
		PythonVersion: DefaultPythonVersion,
		WorkDir:       DefaultWorkDir,
		ManifestFile:  DefaultManifestFile,
		Entrypoint:    DefaultEntrypoint,
	}
}

// BaseImage returns the image reference of the base runtime layer.
func (p Plan) BaseImage() string {
	return fmt.Sprintf("python:%s-slim", p.PythonVersion)
}

// Command returns the default foreground command of the image in exec form.
func (p Plan) Command() []string {
	return []string{"python", p.Entrypoint}
}

// =============================================================================
// Validation
// =============================================================================

var pythonVersionPattern = regexp.MustCompile(`^\d+\.\d+$`)

// envNamePattern matches POSIX-portable environment variable names.
var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the plan against the launch contract.
func (p Plan) Validate() error {
	if !pythonVersionPattern.MatchString(p.PythonVersion) {
		return NewRecipeError("Validate", "python_version",
			fmt.Sprintf("%q is not a major.minor version", p.PythonVersion), ErrInvalidPythonVersion)
	}
	if !strings.HasPrefix(p.WorkDir, "/") {
		return NewRecipeError("Validate", "workdir",
			fmt.Sprintf("%q is not absolute", p.WorkDir), ErrInvalidWorkDir)
	}
	if err := validateEntrypoint(p.Entrypoint); err != nil {
		return err
	}
	reserved := InterpreterEnv()
	for name := range p.ExtraEnv {
		if _, ok := reserved[name]; ok {
			return NewRecipeError("Validate", "extra_env",
				fmt.Sprintf("%s is fixed by the launch contract", name), ErrReservedEnv)
		}
		if !envNamePattern.MatchString(name) {
			return NewRecipeError("Validate", "extra_env",
				fmt.Sprintf("%q is not a valid variable name", name), ErrInvalidEnvName)
		}
	}
	if p.ExposePort < 0 || p.ExposePort > 65535 {
		return NewRecipeError("Validate", "expose_port",
			fmt.Sprintf("%d is not a valid port", p.ExposePort), ErrInvalidPort)
	}
	return nil
}

func validateEntrypoint(script string) error {
	if script == "" {
		return NewRecipeError("Validate", "entrypoint", "entry point is empty", ErrInvalidEntrypoint)
	}
	if strings.HasPrefix(script, "/") || strings.Contains(script, "..") {
		return NewRecipeError("Validate", "entrypoint",
			fmt.Sprintf("%q must be a relative path inside the project", script), ErrInvalidEntrypoint)
	}
	if !strings.HasSuffix(script, ".py") {
		return NewRecipeError("Validate", "entrypoint",
			fmt.Sprintf("%q is not a python script", script), ErrInvalidEntrypoint)
	}
	return nil
}

// =============================================================================
// Step Generation
// =============================================================================

// Steps compiles the plan into its ordered instruction sequence. The sequence
// is strictly linear: each step's output layer is the input to the next, and
// the manifest copy + install always precede the full project copy so the
// dependency layer is cached independently of application code.
func (p Plan) Steps() ([]Step, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	steps := []Step{
		{Kind: StepFrom, Instruction: fmt.Sprintf("FROM %s", p.BaseImage())},
		{Kind: StepWorkdir, Instruction: fmt.Sprintf("WORKDIR %s", p.WorkDir)},
		{Kind: StepCopyManifest, Instruction: fmt.Sprintf("COPY %s .", p.ManifestFile)},
		{Kind: StepInstall, Instruction: fmt.Sprintf("RUN pip install --no-cache-dir -r %s", p.ManifestFile)},
		{Kind: StepCopyProject, Instruction: "COPY . ."},
		{Kind: StepEnv, Instruction: fmt.Sprintf("ENV %s=1", EnvNoBytecode)},
		{Kind: StepEnv, Instruction: fmt.Sprintf("ENV %s=1", EnvUnbuffered)},
	}

	// Extra env rendered in sorted order so rendering stays deterministic
	names := make([]string, 0, len(p.ExtraEnv))
	for name := range p.ExtraEnv {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		steps = append(steps, Step{
			Kind:        StepEnv,
			Instruction: fmt.Sprintf("ENV %s=%s", name, quoteEnvValue(p.ExtraEnv[name])),
		})
	}

	if p.ExposePort > 0 {
		steps = append(steps, Step{Kind: StepExpose, Instruction: fmt.Sprintf("EXPOSE %d", p.ExposePort)})
	}

	steps = append(steps, Step{Kind: StepCmd, Instruction: renderCmd(p.Command())})

	if err := validateOrder(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// quoteEnvValue quotes values containing whitespace.
func quoteEnvValue(v string) string {
	if strings.ContainsAny(v, " \t") {
		return fmt.Sprintf("%q", v)
	}
	return v
}

// renderCmd renders an exec-form CMD instruction.
func renderCmd(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return fmt.Sprintf("CMD [%s]", strings.Join(quoted, ", "))
}

// validateOrder enforces the layer-cache contract on a compiled sequence:
// manifest copy before install, install before the project copy, FROM first
// and CMD last.
func validateOrder(steps []Step) error {
	pos := map[StepKind]int{}
	for i, s := range steps {
		if _, seen := pos[s.Kind]; !seen {
			pos[s.Kind] = i
		}
	}

	required := []StepKind{StepFrom, StepWorkdir, StepCopyManifest, StepInstall, StepCopyProject, StepCmd}
	for _, kind := range required {
		if _, ok := pos[kind]; !ok {
			return NewRecipeError("Steps", string(kind), "required step missing", ErrStepOrder)
		}
	}

	if pos[StepFrom] != 0 {
		return NewRecipeError("Steps", string(StepFrom), "base image must be the first step", ErrStepOrder)
	}
	if pos[StepCopyManifest] > pos[StepInstall] {
		return NewRecipeError("Steps", string(StepInstall), "manifest must be copied before install", ErrStepOrder)
	}
	if pos[StepInstall] > pos[StepCopyProject] {
		return NewRecipeError("Steps", string(StepCopyProject), "dependencies must install before the project copy", ErrStepOrder)
	}
	if steps[len(steps)-1].Kind != StepCmd {
		return NewRecipeError("Steps", string(StepCmd), "default command must be the final step", ErrStepOrder)
	}
	return nil
}

// =============================================================================
// Rendering
// =============================================================================

// Render renders the plan to Dockerfile text. Rendering is deterministic:
// the same plan always produces byte-identical output.
func (p Plan) Render() (string, error) {
	steps, err := p.Steps()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, s := range steps {
		b.WriteString(s.Instruction)
		b.WriteString("\n")
	}
	return b.String(), nil
}
