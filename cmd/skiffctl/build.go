package main

import (
	"context"
	"flag"
	"os"

	"github.com/calfort/skiff/internal/shell/docker"
	"github.com/calfort/skiff/internal/shell/workers"
)

// renderResult is returned by the "render" command.
type renderResult struct {
	Dockerfile string `json:"dockerfile"`
}

// renderCmd handles the "render [-dir <dir>]" command.
// It resolves the project descriptor and prints the Dockerfile the build
// would use, without touching the engine.
func renderCmd(args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	dir := fs.String("dir", ".", "Project directory")
	if err := fs.Parse(args); err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return errInvalidArgs
	}

	plan, err := workers.PlanForContext(*dir)
	if err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return err
	}

	dockerfile, err := plan.Render()
	if err != nil {
		outputError(errCodeInternal, err.Error())
		return err
	}

	outputSuccess(renderResult{Dockerfile: dockerfile})
	return nil
}

// buildResult is returned by the "build" command.
type buildResult struct {
	ImageID string `json:"image_id"`
	Tag     string `json:"tag"`
}

// buildCmd handles the "build [-no-cache] <dir> <tag>" command.
// It runs the same render-archive-build pipeline the service worker runs,
// streaming the engine log to stderr.
func buildCmd(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	noCache := fs.Bool("no-cache", false, "Disable the engine layer cache")
	if err := fs.Parse(args); err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return errInvalidArgs
	}
	if fs.NArg() < 2 {
		outputError(errCodeInvalidInput, "usage: build [-no-cache] <dir> <tag>")
		return errInvalidArgs
	}
	contextDir, tag := fs.Arg(0), fs.Arg(1)

	plan, err := workers.PlanForContext(contextDir)
	if err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return err
	}
	dockerfile, err := plan.Render()
	if err != nil {
		outputError(errCodeInternal, err.Error())
		return err
	}

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	result, err := cli.BuildImage(context.Background(), docker.BuildSpec{
		ContextDir:      contextDir,
		Dockerfile:      dockerfile,
		Tag:             tag,
		ManifestFile:    plan.ManifestFile,
		ExcludePatterns: docker.ReadIgnoreFile(contextDir),
		NoCache:         *noCache,
		Output:          os.Stderr,
	})
	if err != nil {
		outputError(errCodeBuildFailed, err.Error())
		return err
	}

	outputSuccess(buildResult{ImageID: result.ImageID, Tag: tag})
	return nil
}
