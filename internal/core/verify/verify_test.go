package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calfort/skiff/internal/core/recipe"
)

func contractConfig() ImageConfig {
	return ImageConfig{
		ImageID: "sha256:abc123",
		Env: []string{
			"PATH=/usr/local/bin:/usr/bin",
			"LANG=C.UTF-8",
			"GPG_KEY=deadbeef",
			"PYTHON_VERSION=3.10.14",
			"PYTHONDONTWRITEBYTECODE=1",
			"PYTHONUNBUFFERED=1",
		},
		Cmd:        []string{"python", "main.py"},
		WorkingDir: "/app",
	}
}

func findCheck(t *testing.T, report Report, name string) Check {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found in report", name)
	return Check{}
}

func TestImage_ContractImagePasses(t *testing.T) {
	report := Image(contractConfig(), recipe.NewPlan())

	assert.True(t, report.OK())
	assert.Empty(t, report.Failures())
	assert.Equal(t, "sha256:abc123", report.ImageID)
}

func TestImage_MissingInterpreterFlag(t *testing.T) {
	cfg := contractConfig()
	cfg.Env = []string{"PATH=/usr/bin", "PYTHONUNBUFFERED=1"}

	report := Image(cfg, recipe.NewPlan())

	assert.False(t, report.OK())
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "env:PYTHONDONTWRITEBYTECODE", failures[0].Name)
	assert.Equal(t, "not set", failures[0].Detail)
}

func TestImage_WrongFlagValue(t *testing.T) {
	cfg := contractConfig()
	cfg.Env = []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=0"}

	report := Image(cfg, recipe.NewPlan())

	assert.False(t, report.OK())
	require.Len(t, report.Failures(), 1)
	assert.Contains(t, report.Failures()[0].Detail, `"0"`)
}

func TestImage_ExtraEnvReportedNotFailed(t *testing.T) {
	cfg := contractConfig()
	cfg.Env = append(cfg.Env, "DEBUG=1", "APP_SECRET=x")

	report := Image(cfg, recipe.NewPlan())

	assert.True(t, report.OK())
	assert.Empty(t, report.Failures())

	extra := findCheck(t, report, "env:extra")
	assert.True(t, extra.OK)
	assert.Contains(t, extra.Detail, "APP_SECRET")
	assert.Contains(t, extra.Detail, "DEBUG")
}

func TestImage_NewBaseImageEnvPasses(t *testing.T) {
	// Base image releases add variables the contract has never heard of;
	// they must be listed, not failed.
	cfg := contractConfig()
	cfg.Env = append(cfg.Env, "PYTHON_SETUPTOOLS_VERSION=65.5.1")

	report := Image(cfg, recipe.NewPlan())

	assert.True(t, report.OK())
	assert.Empty(t, report.Failures())
	assert.Contains(t, findCheck(t, report, "env:extra").Detail, "PYTHON_SETUPTOOLS_VERSION")
}

func TestImage_DeclaredExtraEnvNotListed(t *testing.T) {
	plan := recipe.NewPlan()
	plan.ExtraEnv = map[string]string{"TZ": "UTC"}

	cfg := contractConfig()
	cfg.Env = append(cfg.Env, "TZ=UTC")

	report := Image(cfg, plan)

	assert.True(t, report.OK())
	assert.NotContains(t, findCheck(t, report, "env:extra").Detail, "TZ")
}

func TestImage_BaseImageEnvReported(t *testing.T) {
	// PATH, LANG and the PYTHON_* build args come from the base image, not
	// from the recipe; they show up in the extra-env listing without
	// failing the contract.
	report := Image(contractConfig(), recipe.NewPlan())

	for _, c := range report.Checks {
		assert.True(t, c.OK, "check %s: %s", c.Name, c.Detail)
	}
	assert.Contains(t, findCheck(t, report, "env:extra").Detail, "PATH")
}

func TestImage_WrongCommand(t *testing.T) {
	cfg := contractConfig()
	cfg.Cmd = []string{"python", "main.py", "--debug"}

	report := Image(cfg, recipe.NewPlan())

	assert.False(t, report.OK())
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "cmd", report.Failures()[0].Name)
}

func TestImage_ShellFormCommandFails(t *testing.T) {
	cfg := contractConfig()
	cfg.Cmd = []string{"/bin/sh", "-c", "python main.py"}

	report := Image(cfg, recipe.NewPlan())

	assert.False(t, report.OK())
}

func TestImage_EntrypointWrapperFails(t *testing.T) {
	cfg := contractConfig()
	cfg.Entrypoint = []string{"/entrypoint.sh"}

	report := Image(cfg, recipe.NewPlan())

	assert.False(t, report.OK())
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "entrypoint", report.Failures()[0].Name)
}

func TestImage_WrongWorkdir(t *testing.T) {
	cfg := contractConfig()
	cfg.WorkingDir = "/srv"

	report := Image(cfg, recipe.NewPlan())

	assert.False(t, report.OK())
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "workdir", report.Failures()[0].Name)
	assert.Contains(t, report.Failures()[0].Detail, `"/srv"`)
}

func TestImage_CustomPlan(t *testing.T) {
	plan := recipe.NewPlan()
	plan.Entrypoint = "bot.py"

	cfg := contractConfig()
	cfg.Cmd = []string{"python", "bot.py"}

	report := Image(cfg, plan)

	assert.True(t, report.OK())
}
