// Package docker provides a Docker Engine client for image builds and the
// container run scenario.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// dockerfileName is the name the rendered recipe is injected under inside
// the context archive, so a Dockerfile already present in the project is
// never shadowed.
const dockerfileName = ".skiff.dockerfile"

// =============================================================================
// Engine Client
// =============================================================================

// EngineClient implements the Client interface using the Docker SDK.
type EngineClient struct {
	cli *client.Client
}

// NewEngineClient creates a new Docker Engine client.
// If host is empty, the default Docker host from the environment is used.
func NewEngineClient(host string) (*EngineClient, error) {
	var opts []client.Opt
	opts = append(opts, client.FromEnv)
	opts = append(opts, client.WithAPIVersionNegotiation())

	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewEngineClient", "", "", "failed to create client", ErrConnectionFailed)
	}

	return &EngineClient{cli: cli}, nil
}

// Ping checks if the Docker daemon is reachable.
func (d *EngineClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Close closes the Docker client connection.
func (d *EngineClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Image Build
// =============================================================================

// buildMessage is one JSON message of the engine's build stream.
type buildMessage struct {
	Stream      string `json:"stream"`
	Status      string `json:"status"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
	Aux json.RawMessage `json:"aux"`
}

// BuildImage archives the context directory, submits it to the engine and
// consumes the build stream. Any failure is fatal for the build: there is no
// retry and no partial image.
func (d *EngineClient) BuildImage(ctx context.Context, spec BuildSpec) (*BuildResult, error) {
	contextTar, err := archiveContext(spec)
	if err != nil {
		return nil, err
	}
	defer contextTar.Close()

	dockerfile := spec.DockerfilePath
	if spec.Dockerfile != "" {
		dockerfile = dockerfileName
	}

	resp, err := d.cli.ImageBuild(ctx, contextTar, build.ImageBuildOptions{
		Tags:        []string{spec.Tag},
		Dockerfile:  dockerfile,
		Remove:      true,
		ForceRemove: true,
		NoCache:     spec.NoCache,
		Labels:      spec.Labels,
	})
	if err != nil {
		return nil, NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrBuildFailed)
	}
	defer resp.Body.Close()

	return consumeBuildStream(resp.Body, spec)
}

// consumeBuildStream decodes the engine's JSON build stream, collecting log
// lines and the built image ID, and maps stream errors to the error taxonomy.
func consumeBuildStream(body io.Reader, spec BuildSpec) (*BuildResult, error) {
	result := &BuildResult{}
	lastInstruction := ""

	dec := json.NewDecoder(body)
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return nil, NewDockerError("BuildImage", "image", spec.Tag,
				fmt.Sprintf("malformed build stream: %v", err), ErrBuildFailed)
		}

		if line := strings.TrimRight(msg.Stream, "\n"); line != "" {
			result.Log = append(result.Log, line)
			if spec.Output != nil {
				fmt.Fprintln(spec.Output, line)
			}
			if strings.HasPrefix(line, "Step ") {
				lastInstruction = line
			}
		}

		if msg.Error != "" {
			message := msg.ErrorDetail.Message
			if message == "" {
				message = msg.Error
			}
			return nil, NewDockerError("BuildImage", "image", spec.Tag, message,
				classifyBuildError(message, lastInstruction))
		}

		if len(msg.Aux) > 0 {
			var aux struct {
				ID string `json:"ID"`
			}
			if err := json.Unmarshal(msg.Aux, &aux); err == nil && aux.ID != "" {
				result.ImageID = aux.ID
			}
		}
	}

	// Older engines omit the aux message; callers fall back to resolving
	// the tag when ImageID stays empty.
	return result, nil
}

// classifyBuildError maps an engine error message to a sentinel based on the
// failing instruction.
func classifyBuildError(message, lastInstruction string) error {
	lower := strings.ToLower(message)

	if strings.Contains(lower, "file not found in build context") ||
		(strings.Contains(lower, "not found") && strings.Contains(strings.ToLower(lastInstruction), "copy")) {
		return ErrManifestMissing
	}
	if strings.Contains(strings.ToLower(lastInstruction), "pip install") {
		// Covers resolution failures and index network errors alike; the
		// distinction lives in the recorded message.
		return ErrInstallFailed
	}
	if strings.Contains(lower, "pull access denied") ||
		strings.Contains(lower, "manifest unknown") ||
		strings.Contains(lower, "repository does not exist") {
		return ErrImagePullFailed
	}
	return ErrBuildFailed
}

// =============================================================================
// Image Operations
// =============================================================================

// InspectImage returns the configuration of an image.
func (d *EngineClient) InspectImage(ctx context.Context, ref string) (*ImageInfo, error) {
	resp, _, err := d.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("InspectImage", "image", ref, "image not found", ErrImageNotFound)
		}
		return nil, NewDockerError("InspectImage", "image", ref, err.Error(), err)
	}

	info := &ImageInfo{
		ID:   resp.ID,
		Tags: resp.RepoTags,
		Size: resp.Size,
	}
	if resp.Config != nil {
		info.Env = resp.Config.Env
		info.Cmd = resp.Config.Cmd
		info.Entrypoint = resp.Config.Entrypoint
		info.WorkingDir = resp.Config.WorkingDir
		info.Labels = resp.Config.Labels
	}
	if resp.Created != "" {
		if t, err := time.Parse(time.RFC3339Nano, resp.Created); err == nil {
			info.CreatedAt = t
		}
	}
	return info, nil
}

// ImageExists checks if an image exists locally.
func (d *EngineClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, NewDockerError("ImageExists", "image", ref, err.Error(), err)
	}
	return true, nil
}

// PullImage pulls an image from its registry.
func (d *EngineClient) PullImage(ctx context.Context, ref string) error {
	reader, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not found") ||
			strings.Contains(errStr, "manifest unknown") ||
			strings.Contains(errStr, "repository does not exist") ||
			strings.Contains(errStr, "pull access denied") {
			return NewDockerError("PullImage", "image", ref, "image not found", ErrImageNotFound)
		}
		return NewDockerError("PullImage", "image", ref, errStr, ErrImagePullFailed)
	}
	defer reader.Close()

	if err := drainStream(reader); err != nil {
		return NewDockerError("PullImage", "image", ref, err.Error(), ErrImagePullFailed)
	}
	return nil
}

// PushImage pushes an image to its registry.
func (d *EngineClient) PushImage(ctx context.Context, ref string, auth RegistryAuth) error {
	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		ServerAddress: auth.ServerAddress,
	})
	if err != nil {
		return NewDockerError("PushImage", "image", ref, err.Error(), ErrImagePushFailed)
	}

	reader, err := d.cli.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: encoded})
	if err != nil {
		return NewDockerError("PushImage", "image", ref, err.Error(), ErrImagePushFailed)
	}
	defer reader.Close()

	if err := drainStream(reader); err != nil {
		return NewDockerError("PushImage", "image", ref, err.Error(), ErrImagePushFailed)
	}
	return nil
}

// RemoveImage removes an image.
func (d *EngineClient) RemoveImage(ctx context.Context, ref string, force bool) error {
	_, err := d.cli.ImageRemove(ctx, ref, image.RemoveOptions{Force: force, PruneChildren: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveImage", "image", ref, "image not found", ErrImageNotFound)
		}
		if strings.Contains(err.Error(), "image is being used") ||
			strings.Contains(err.Error(), "container") {
			return NewDockerError("RemoveImage", "image", ref, err.Error(), ErrImageInUse)
		}
		return NewDockerError("RemoveImage", "image", ref, err.Error(), err)
	}
	return nil
}

// drainStream consumes a pull/push JSON stream and surfaces embedded errors.
func drainStream(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if msg.Error != "" {
			if msg.ErrorDetail.Message != "" {
				return fmt.Errorf("%s", msg.ErrorDetail.Message)
			}
			return fmt.Errorf("%s", msg.Error)
		}
	}
}

// =============================================================================
// Container Operations
// =============================================================================

// CreateContainer creates a container from the given spec. The image's own
// default command is used: launching the application entry point is the
// image's contract, not the caller's.
func (d *EngineClient) CreateContainer(ctx context.Context, spec RunSpec) (string, error) {
	config := &container.Config{
		Image:  spec.Image,
		Labels: spec.Labels,
	}
	for k, v := range spec.Env {
		config.Env = append(config.Env, fmt.Sprintf("%s=%s", k, v))
	}

	hostConfig := &container.HostConfig{
		AutoRemove: spec.AutoRemove,
	}

	if len(spec.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}

		for _, p := range spec.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
			exposedPorts[containerPort] = struct{}{}

			hostPort := ""
			if p.HostPort != 0 {
				hostPort = fmt.Sprintf("%d", p.HostPort)
			}
			portBindings[containerPort] = []nat.PortBinding{
				{HostIP: p.HostIP, HostPort: hostPort},
			}
		}

		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if err != nil {
		if strings.Contains(err.Error(), "Conflict") {
			return "", NewDockerError("CreateContainer", "container", spec.Name, "container already exists", ErrContainerAlreadyExists)
		}
		if strings.Contains(err.Error(), "port is already allocated") {
			return "", NewDockerError("CreateContainer", "container", spec.Name, err.Error(), ErrPortAlreadyAllocated)
		}
		return "", NewDockerError("CreateContainer", "container", spec.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// StartContainer starts a created container.
func (d *EngineClient) StartContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StartContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is already running") {
			return NewDockerError("StartContainer", "container", containerID, "container is already running", ErrContainerAlreadyRunning)
		}
		return NewDockerError("StartContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// WaitContainer blocks until the container stops and returns its exit code.
// The exit code is whatever the application entry point returned; no exit
// code contract is imposed here.
func (d *EngineClient) WaitContainer(ctx context.Context, containerID string) (int64, error) {
	waitCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case resp := <-waitCh:
		if resp.Error != nil {
			return 0, NewDockerError("WaitContainer", "container", containerID, resp.Error.Message, ErrContainerNotRunning)
		}
		return resp.StatusCode, nil
	case err := <-errCh:
		if client.IsErrNotFound(err) {
			return 0, NewDockerError("WaitContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return 0, NewDockerError("WaitContainer", "container", containerID, err.Error(), err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ContainerLogs returns logs from a container.
func (d *EngineClient) ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error) {
	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
	}
	if !opts.Since.IsZero() {
		logOpts.Since = opts.Since.Format(time.RFC3339)
	}

	reader, err := d.cli.ContainerLogs(ctx, containerID, logOpts)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("ContainerLogs", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewDockerError("ContainerLogs", "container", containerID, err.Error(), err)
	}
	return reader, nil
}

// StopContainer stops a running container.
func (d *EngineClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	stopOptions := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		stopOptions.Timeout = &seconds
	}

	err := d.cli.ContainerStop(ctx, containerID, stopOptions)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StopContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is not running") {
			return NewDockerError("StopContainer", "container", containerID, "container is not running", ErrContainerNotRunning)
		}
		return NewDockerError("StopContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// RemoveContainer removes a container.
func (d *EngineClient) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("RemoveContainer", "container", containerID, err.Error(), err)
	}
	return nil
}
