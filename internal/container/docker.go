package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

// DockerRuntime implements ContainerRuntime using the Docker Engine API.
type DockerRuntime struct {
	client *client.Client
}

// NewDockerRuntime creates a DockerRuntime from the DOCKER_* environment
// and checks that the daemon answers.
func NewDockerRuntime(ctx context.Context) (*DockerRuntime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := dockerClient.Ping(ctx); err != nil {
		_ = dockerClient.Close()
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}

	return &DockerRuntime{client: dockerClient}, nil
}

// Close releases the underlying client.
func (d *DockerRuntime) Close() error {
	return d.client.Close()
}

// PullImage pulls an image, discarding the progress stream.
func (d *DockerRuntime) PullImage(ctx context.Context, imageName string) error {
	slog.Info("Pulling Docker image", "image", imageName)

	reader, err := d.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to stream image pull output: %w", err)
	}

	slog.Info("Successfully pulled Docker image", "image", imageName)
	return nil
}

// Start creates and starts a detached container and returns its ID.
// An existing container with the same name is replaced.
func (d *DockerRuntime) Start(ctx context.Context, opts RunOptions) (string, error) {
	slog.Info("Starting container", "name", opts.Name, "image", opts.Image, "command", opts.Command)

	if opts.Name != "" {
		err := d.client.ContainerRemove(ctx, opts.Name, container.RemoveOptions{Force: true})
		if err != nil && !errdefs.IsNotFound(err) {
			return "", fmt.Errorf("failed to remove stale container %s: %w", opts.Name, err)
		}
	}

	exposed, bindings, err := portBindings(opts.Ports)
	if err != nil {
		return "", err
	}

	containerConfig := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Command,
		Env:          envList(opts.EnvVars),
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		Mounts:       mounts(opts.VolumeMounts),
		PortBindings: bindings,
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := d.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil {
			slog.Error("Failed to remove container after start failure", "containerID", resp.ID, "error", removeErr)
		}
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	slog.Info("Container started", "containerID", resp.ID, "name", opts.Name)
	return resp.ID, nil
}

// Stop stops and removes a container. A container that is already gone is
// not an error.
func (d *DockerRuntime) Stop(ctx context.Context, containerID string) error {
	if err := d.client.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}
	if err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		slog.Error("Failed to remove container", "containerID", containerID, "error", err)
		return err
	}
	return nil
}

func (d *DockerRuntime) IsRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := d.client.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return false, nil
	}
	return info.State.Running, nil
}

func portBindings(ports map[int]int) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for hostPort, containerPort := range ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %d: %w", containerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)})
	}
	return exposed, bindings, nil
}

func mounts(volumes map[string]string) []mount.Mount {
	var out []mount.Mount
	for hostPath, containerPath := range volumes {
		out = append(out, mount.Mount{
			Type:   mount.TypeBind,
			Source: hostPath,
			Target: containerPath,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

func envList(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for key, value := range vars {
		out = append(out, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(out)
	return out
}
