package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/calfort/skiff/internal/shell/docker"
)

// stopResult is returned by the "stop-container" command.
type stopResult struct {
	ContainerID string `json:"container_id"`
	Stopped     bool   `json:"stopped"`
}

// stopContainerCmd handles the "stop-container [-timeout <d>] <id>" command.
func stopContainerCmd(args []string) error {
	fs := flag.NewFlagSet("stop-container", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 0, "Grace period before the process is killed")
	if err := fs.Parse(args); err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return errInvalidArgs
	}
	if fs.NArg() < 1 {
		outputError(errCodeInvalidInput, "usage: stop-container [-timeout <d>] <id>")
		return errInvalidArgs
	}
	id := fs.Arg(0)

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	var t *time.Duration
	if *timeout > 0 {
		t = timeout
	}
	if err := cli.StopContainer(context.Background(), id, t); err != nil {
		code := errCodeInternal
		if errors.Is(err, docker.ErrContainerNotFound) {
			code = errCodeNotFound
		}
		outputError(code, err.Error())
		return err
	}

	outputSuccess(stopResult{ContainerID: id, Stopped: true})
	return nil
}

// removeResult is returned by the "remove-container" command.
type removeResult struct {
	ContainerID string `json:"container_id"`
	Removed     bool   `json:"removed"`
}

// removeContainerCmd handles the "remove-container [-force] <id>" command.
func removeContainerCmd(args []string) error {
	fs := flag.NewFlagSet("remove-container", flag.ContinueOnError)
	force := fs.Bool("force", false, "Remove even if the container is running")
	if err := fs.Parse(args); err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return errInvalidArgs
	}
	if fs.NArg() < 1 {
		outputError(errCodeInvalidInput, "usage: remove-container [-force] <id>")
		return errInvalidArgs
	}
	id := fs.Arg(0)

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	if err := cli.RemoveContainer(context.Background(), id, *force); err != nil {
		code := errCodeInternal
		if errors.Is(err, docker.ErrContainerNotFound) {
			code = errCodeNotFound
		}
		outputError(code, err.Error())
		return err
	}

	outputSuccess(removeResult{ContainerID: id, Removed: true})
	return nil
}

// containerLogsCmd handles the "container-logs [-follow] [-tail <n>] <id>"
// command. The raw log stream goes to stdout directly, not wrapped in the
// JSON envelope, so it can be piped.
func containerLogsCmd(args []string) error {
	fs := flag.NewFlagSet("container-logs", flag.ContinueOnError)
	follow := fs.Bool("follow", false, "Stream logs until the container stops")
	tail := fs.String("tail", "all", "Number of lines from the end of the log")
	if err := fs.Parse(args); err != nil {
		outputError(errCodeInvalidInput, err.Error())
		return errInvalidArgs
	}
	if fs.NArg() < 1 {
		outputError(errCodeInvalidInput, "usage: container-logs [-follow] [-tail <n>] <id>")
		return errInvalidArgs
	}
	id := fs.Arg(0)

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	reader, err := cli.ContainerLogs(context.Background(), id, docker.LogOptions{
		Follow: *follow,
		Tail:   *tail,
	})
	if err != nil {
		code := errCodeInternal
		if errors.Is(err, docker.ErrContainerNotFound) {
			code = errCodeNotFound
		}
		outputError(code, err.Error())
		return err
	}
	defer reader.Close()

	if _, err := io.Copy(os.Stdout, reader); err != nil {
		outputError(errCodeInternal, err.Error())
		return err
	}
	return nil
}

// waitResult is returned by the "wait-container" command.
type waitResult struct {
	ContainerID string `json:"container_id"`
	ExitCode    int64  `json:"exit_code"`
}

// waitContainerCmd handles the "wait-container <id>" command. It blocks until
// the container stops and reports its exit code.
func waitContainerCmd(args []string) error {
	if len(args) < 1 {
		outputError(errCodeInvalidInput, "usage: wait-container <id>")
		return errInvalidArgs
	}
	id := args[0]

	cli, err := docker.NewEngineClient("")
	if err != nil {
		outputError(errCodeConnectionFailed, err.Error())
		return err
	}
	defer cli.Close()

	exitCode, err := cli.WaitContainer(context.Background(), id)
	if err != nil {
		outputError(errCodeInternal, err.Error())
		return err
	}

	outputSuccess(waitResult{ContainerID: id, ExitCode: exitCode})
	return nil
}
