package internal

import (
	"context"
	"errors"
	"fmt"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	log "github.com/sirupsen/logrus"
	"io"
	"strings"
	"time"
)

// Labels compose tooling uses to recognise project containers.
const (
	ProjectLabel = "com.docker.compose.project"
	ServiceLabel = "com.docker.compose.service"
)

// NewDockerClient connects to the engine configured by the DOCKER_* environment variables.
func NewDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// ContainerName returns the name of the container backing a service of a project.
func ContainerName(project, service string) string {
	return fmt.Sprintf("%s-%s", project, service)
}

// ProjectFilter matches every resource wharf created for a project.
func ProjectFilter(project string) filters.Args {
	return filters.NewArgs(filters.Arg("label", fmt.Sprintf("%s=%s", ProjectLabel, project)))
}

var _ Runtime = (*DockerBackend)(nil)

// DockerBackend implements Runtime on top of the Docker Engine API.
type DockerBackend struct {
	cli     *client.Client
	project string
	network string
	labels  map[string]string
}

// NewDockerBackend creates a backend for the project described by settings.
func NewDockerBackend(cli *client.Client, settings Settings) *DockerBackend {
	labels := map[string]string{ProjectLabel: settings.Project}
	if k, v, ok := strings.Cut(settings.Label, "="); ok && k != "" {
		labels[k] = v
	}
	return &DockerBackend{
		cli:     cli,
		project: settings.Project,
		network: settings.NetworkName(),
		labels:  labels,
	}
}

func (b *DockerBackend) serviceLabels(service string) map[string]string {
	labels := make(map[string]string, len(b.labels)+1)
	for k, v := range b.labels {
		labels[k] = v
	}
	labels[ServiceLabel] = service
	return labels
}

// Prepare creates the project network every service is attached to.
func (b *DockerBackend) Prepare(ctx context.Context) error {
	_, err := b.getOrCreateNetwork(ctx, b.network)
	if err != nil {
		return fmt.Errorf("can't create network: %w", err)
	}
	return nil
}

// getOrCreateNetwork checks if a network by the specified name exists or creates a new one.
// It returns the network ID or an error.
func (b *DockerBackend) getOrCreateNetwork(ctx context.Context, name string) (string, error) {
	list, err := b.cli.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", err
	}
	for _, n := range list {
		// The name filter matches on substrings.
		if n.Name == name {
			return n.ID, nil
		}
	}

	net, err := b.cli.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver: "bridge",
		Labels: b.labels,
	})
	if err != nil {
		return "", err
	}
	return net.ID, nil
}

// Find tries to find a running container for the service.
// It returns the container ID and an ok value.
func (b *DockerBackend) Find(ctx context.Context, spec *ServiceSpec) (string, bool) {
	list, err := b.cli.ContainerList(ctx, types.ContainerListOptions{
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", ProjectLabel, b.project)),
			filters.Arg("label", fmt.Sprintf("%s=%s", ServiceLabel, spec.Name)),
		),
	})
	if err != nil || len(list) == 0 {
		return "", false
	}
	return list[0].ID, true
}

// Launch creates a new container for the service and attaches it to the project network.
// It returns the container ID or an error.
func (b *DockerBackend) Launch(ctx context.Context, spec *ServiceSpec) (string, error) {
	name := ContainerName(b.project, spec.Name)

	// Ignoring error if no container currently exists. If it exists but couldn't be
	// removed, creating the new one fails below with a name conflict.
	_ = b.cli.ContainerRemove(ctx, name, types.ContainerRemoveOptions{Force: true})

	if err := b.ensureImage(ctx, spec.Image); err != nil {
		return "", err
	}

	exposedPorts, portBindings, err := nat.ParsePortSpecs(spec.Ports)
	if err != nil {
		return "", fmt.Errorf("failed to parse port specs: %w", err)
	}
	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
	}

	// Make the container join the project network, reachable by its service name.
	networkConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			b.network: {Aliases: []string{spec.Name}},
		},
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env(),
		ExposedPorts: exposedPorts,
		Labels:       b.serviceLabels(spec.Name),
	}
	cont, err := b.cli.ContainerCreate(ctx, containerConfig, hostConfig, networkConfig, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := b.cli.ContainerStart(ctx, cont.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return cont.ID, nil
}

// ensureImage pulls the image unless it is already present locally.
func (b *DockerBackend) ensureImage(ctx context.Context, ref string) error {
	_, _, err := b.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	log.Infof("Pulling %s.", ref)
	out, err := b.cli.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer out.Close()
	if _, err := io.Copy(io.Discard, out); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// Wait blocks until the container stops running and returns its exit code.
func (b *DockerBackend) Wait(ctx context.Context, containerID string) (int64, error) {
	statusCh, errCh := b.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case st := <-statusCh:
		if st.Error != nil {
			return st.StatusCode, errors.New(st.Error.Message)
		}
		return st.StatusCode, nil
	}
}

// Exec runs cmd inside the container and returns its exit code.
func (b *DockerBackend) Exec(ctx context.Context, containerID string, cmd []string) (int, error) {
	exec, err := b.cli.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, err
	}

	// Attaching starts the exec. Its output is drained until the command finishes.
	resp, err := b.cli.ContainerExecAttach(ctx, exec.ID, types.ExecStartCheck{})
	if err != nil {
		return -1, err
	}
	drained := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, resp.Reader)
		close(drained)
	}()
	select {
	case <-drained:
		resp.Close()
	case <-ctx.Done():
		resp.Close()
		return -1, ctx.Err()
	}

	for {
		inspect, err := b.cli.ContainerExecInspect(ctx, exec.ID)
		if err != nil {
			return -1, err
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Stop stops the container, giving it timeout to exit, and removes it.
func (b *DockerBackend) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	if err := b.cli.ContainerStop(ctx, containerID, &timeout); err != nil && !client.IsErrNotFound(err) {
		return err
	}
	err := b.cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return err
	}
	return nil
}
