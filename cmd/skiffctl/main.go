// Package main provides the skiffctl binary, a one-shot CLI over the same
// build machinery the service uses. Every command writes a single JSON
// envelope to stdout; build logs go to stderr.
//
// Usage:
//
//	skiffctl <command> [args...]
//
// Commands:
//
//	version                     - Show skiffctl version
//	render [-dir <dir>]         - Render the Dockerfile for a project
//	build [-no-cache] <dir> <tag> - Build an image from a project directory
//	verify [-dir <dir>] <image> - Check an image against the launch contract
//	run [-name <name>] <image>  - Create and start a container from an image
//	image-exists <image>        - Check whether an image is present locally
//	pull-image <image>          - Pull an image from a registry
//	push-image [-server <addr>] <image> - Push an image to a registry
//	stop-container [-timeout <d>] <id>  - Stop a running container
//	remove-container [-force] <id>      - Remove a container
//	container-logs [-follow] [-tail <n>] <id> - Stream container logs
//	wait-container <id>         - Block until a container stops
package main

import (
	"encoding/json"
	"os"
	"runtime"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		outputError(errCodeInvalidInput, "usage: skiffctl <command> [args...]")
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if err := dispatch(cmd, args); err != nil {
		// Error already written to stdout by command handler
		os.Exit(1)
	}
}

// dispatch routes the command to the appropriate handler.
func dispatch(cmd string, args []string) error {
	switch cmd {
	case "version":
		return versionCmd()
	case "render":
		return renderCmd(args)
	case "build":
		return buildCmd(args)
	case "verify":
		return verifyCmd(args)
	case "run":
		return runCmd(args)
	case "image-exists":
		return imageExistsCmd(args)
	case "pull-image":
		return pullImageCmd(args)
	case "push-image":
		return pushImageCmd(args)
	case "stop-container":
		return stopContainerCmd(args)
	case "remove-container":
		return removeContainerCmd(args)
	case "container-logs":
		return containerLogsCmd(args)
	case "wait-container":
		return waitContainerCmd(args)
	default:
		outputError(errCodeInvalidInput, "unknown command: "+cmd)
		return errUnknownCommand
	}
}

// =============================================================================
// Response Envelope
// =============================================================================

// response is the envelope every command writes to stdout.
type response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *errorInfo      `json:"error,omitempty"`
}

// errorInfo carries error details when OK is false.
type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for CLI responses.
const (
	errCodeInvalidInput     = "invalid_input"
	errCodeConnectionFailed = "connection_failed"
	errCodeBuildFailed      = "build_failed"
	errCodePullFailed       = "pull_failed"
	errCodePushFailed       = "push_failed"
	errCodeNotFound         = "not_found"
	errCodeInternal         = "internal"
)

// outputSuccess writes a success envelope to stdout.
func outputSuccess(data interface{}) {
	var raw json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			outputError(errCodeInternal, err.Error())
			return
		}
		raw = bytes
	}
	json.NewEncoder(os.Stdout).Encode(response{OK: true, Data: raw})
}

// outputError writes an error envelope to stdout.
func outputError(code, message string) {
	json.NewEncoder(os.Stdout).Encode(response{
		OK:    false,
		Error: &errorInfo{Code: code, Message: message},
	})
}

// errUnknownCommand is returned for unknown commands.
var errUnknownCommand = &commandError{msg: "unknown command"}

// errInvalidArgs is returned for bad argument lists.
var errInvalidArgs = &commandError{msg: "invalid arguments"}

// commandError represents a command error.
type commandError struct {
	msg string
}

func (e *commandError) Error() string {
	return e.msg
}

// versionInfo is returned by the "version" command.
type versionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// versionCmd handles the "version" command.
func versionCmd() error {
	outputSuccess(versionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	})
	return nil
}
