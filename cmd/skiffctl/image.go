package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/calfort/skiff/internal/core/verify"
	"github.com/calfort/skiff/internal/shell/docker"
	"github.com/calfort/skiff/internal/shell/workers"
)

// verifyResult is returned by the "verify" command.
type verifyResult struct {
	ImageID string         `json:"image_id"`
	Passed  bool           `json:"passed"`
	Checks  []verify.Check `json:"checks"`
}

// verifyCmd handles the "verify [-dir <dir>] <image>" command.
// The project directory supplies the expected plan; with no descriptor the
// default launch contract applies.
func verifyCmd(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	dir := fs.String("dir", ".", "Project directory the image was built from")
	if err := fs.Parse(args); err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return errInvalidArgs
	}
	if fs.NArg() < 1 {
		outputError(errCodeInvalidInput, "usage: verify [-dir <dir>] <image>")
		return errInvalidArgs
	}
	ref := fs.Arg(0)

	plan, err := workers.PlanForContext(*dir)
	if err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return err
	}

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	info, err := cli.InspectImage(context.Background(), ref)
	if err != nil {
		code := errCodeInternal
		if errors.Is(err, docker.ErrImageNotFound) {
			code = errCodeNotFound
		}
		outputError(code, err.Error())
		return err
	}

	report := verify.Image(verify.ImageConfig{
		ImageID:    info.ID,
		Env:        info.Env,
		Cmd:        info.Cmd,
		Entrypoint: info.Entrypoint,
		WorkingDir: info.WorkingDir,
	}, plan)

	outputSuccess(verifyResult{
		ImageID: report.ImageID,
		Passed:  report.OK(),
		Checks:  report.Checks,
	})
	return nil
}

// runResult is returned by the "run" command.
type runResult struct {
	ContainerID string `json:"container_id"`
	Image       string `json:"image"`
}

// runCmd handles the "run [-name <name>] <image>" command.
func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	name := fs.String("name", "", "Container name")
	if err := fs.Parse(args); err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return errInvalidArgs
	}
	if fs.NArg() < 1 {
		outputError(errCodeInvalidInput, "usage: run [-name <name>] <image>")
		return errInvalidArgs
	}
	ref := fs.Arg(0)

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	ctx := context.Background()
	containerID, err := cli.CreateContainer(ctx, docker.RunSpec{
		Image: ref,
		Name:  *name,
	})
	if err != nil {
		code := errCodeInternal
		if errors.Is(err, docker.ErrImageNotFound) {
			code = errCodeNotFound
		}
		outputError(code, err.Error())
		return err
	}
	if err := cli.StartContainer(ctx, containerID); err != nil {
		outputError(errCodeInternal, err.Error())
		return err
	}

	outputSuccess(runResult{ContainerID: containerID, Image: ref})
	return nil
}

// pullResult is returned by the "pull-image" command.
type pullResult struct {
	Image  string `json:"image"`
	Pulled bool   `json:"pulled"`
}

// pullImageCmd handles the "pull-image <image>" command.
func pullImageCmd(args []string) error {
	if len(args) < 1 {
		outputError(errCodeInvalidInput, "usage: pull-image <image>")
		return errInvalidArgs
	}

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	if err := cli.PullImage(context.Background(), args[0]); err != nil {
		code := errCodeInternal
		if errors.Is(err, docker.ErrImageNotFound) {
			code = errCodeNotFound
		} else if errors.Is(err, docker.ErrImagePullFailed) {
			code = errCodePullFailed
		}
		outputError(code, err.Error())
		return err
	}

	outputSuccess(pullResult{Image: args[0], Pulled: true})
	return nil
}

// pushResult is returned by the "push-image" command.
type pushResult struct {
	Image  string `json:"image"`
	Pushed bool   `json:"pushed"`
}

// pushImageCmd handles the "push-image <image>" command. Registry credentials
// come from SKIFF_REGISTRY_USER / SKIFF_REGISTRY_PASSWORD so they never
// appear in the process list.
func pushImageCmd(args []string) error {
	fs := flag.NewFlagSet("push-image", flag.ContinueOnError)
	server := fs.String("server", "", "Registry server address")
	if err := fs.Parse(args); err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return errInvalidArgs
	}
	if fs.NArg() < 1 {
		outputError(errCodeInvalidInput, "usage: push-image [-server <addr>] <image>")
		return errInvalidArgs
	}
	ref := fs.Arg(0)

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	auth := docker.RegistryAuth{
		Username:      os.Getenv("SKIFF_REGISTRY_USER"),
		Password:      os.Getenv("SKIFF_REGISTRY_PASSWORD"),
		ServerAddress: *server,
	}
	if err := cli.PushImage(context.Background(), ref, auth); err != nil {
		code := errCodeInternal
		if errors.Is(err, docker.ErrImagePushFailed) {
			code = errCodePushFailed
		}
		outputError(code, err.Error())
		return err
	}

	outputSuccess(pushResult{Image: ref, Pushed: true})
	return nil
}

// imageExistsResult is returned by the "image-exists" command.
type imageExistsResult struct {
	Exists bool `json:"exists"`
}

// imageExistsCmd handles the "image-exists <image>" command.
func imageExistsCmd(args []string) error {
	if len(args) < 1 {
		outputError(errCodeInvalidInput, "usage: image-exists <image>")
		return errInvalidArgs
	}

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	exists, err := cli.ImageExists(context.Background(), args[0])
	if err != nil {
		outputError(errCodeInternal, err.Error())
		return err
	}

	outputSuccess(imageExistsResult{Exists: exists})
	return nil
}
