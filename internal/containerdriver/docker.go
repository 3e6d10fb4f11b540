package containerdriver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// DockerDriver drives stacks via the `docker compose` CLI (stack definitions
// are ordinary compose files checked into each project's path — no compose
// parsing library is vendored, so the CLI is exec'd directly, the same way
// most orchestrators that don't want to reimplement the compose spec do) and
// drives one-shot agent containers directly through the Docker SDK's
// container lifecycle calls.
type DockerDriver struct {
	docker *dockerclient.Client
	logger *zap.Logger
}

// NewDockerDriver connects to the Docker daemon at socketPath (empty string
// uses the SDK's default: DOCKER_HOST env var or the platform socket).
func NewDockerDriver(socketPath string, logger *zap.Logger) (*DockerDriver, error) {
	opts := []dockerclient.Opt{
		dockerclient.WithAPIVersionNegotiation(),
	}
	if socketPath != "" {
		opts = append(opts, dockerclient.WithHost("unix://"+socketPath))
	}

	dc, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	return &DockerDriver{docker: dc, logger: logger.Named("containerdriver")}, nil
}

// StartStack runs `docker compose up -d` against the project path, with the
// reserved ports and registry credentials injected as environment
// variables. The compose project name is the project slug, which doubles
// as the driver-opaque Handle used for later StopStack calls.
func (d *DockerDriver) StartStack(ctx context.Context, spec StackSpec) (Handle, error) {
	args := []string{
		"compose",
		"-f", spec.Path + "/docker-compose.yml",
		"-p", spec.ProjectSlug,
		"up", "-d", "--wait",
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Env = composeEnv(spec)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %s", ErrUnavailable, ctx.Err())
		}
		return "", fmt.Errorf("containerdriver: compose up failed: %s: %w", stderr.String(), err)
	}

	d.logger.Info("stack started",
		zap.String("project_slug", spec.ProjectSlug),
		zap.Int("backend_port", spec.BackendPort),
	)

	return Handle(spec.ProjectSlug), nil
}

// StopStack runs `docker compose down` for the compose project named by
// handle. Idempotent: a handle with no running containers still exits 0.
func (d *DockerDriver) StopStack(ctx context.Context, handle Handle) error {
	cmd := exec.CommandContext(ctx, "docker", "compose", "-p", string(handle), "down", "--timeout", "30")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s", ErrUnavailable, ctx.Err())
		}
		return fmt.Errorf("containerdriver: compose down failed: %s: %w", stderr.String(), err)
	}
	return nil
}

// RunAgent runs image as a single detached container with inputJSON passed
// in the AGENT_INPUT environment variable (nothing is written to stdin), waits for it to
// exit or for ctx to be cancelled, and collects its stdout and exit code.
// On cancellation the container is sent SIGTERM and given a grace period
// before SIGKILL, matching spec.md's cancellation semantics.
func (d *DockerDriver) RunAgent(ctx context.Context, image string, inputJSON []byte, limits Limits) (RunResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if limits.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	resp, err := d.docker.ContainerCreate(runCtx, &container.Config{
		Image: image,
		Env:   []string{"AGENT_INPUT=" + string(inputJSON)},
	}, &container.HostConfig{
		AutoRemove: false,
		Resources: container.Resources{
			Memory:    limits.MemoryMB * 1024 * 1024,
			CPUShares: limits.CPUShares,
		},
	}, nil, nil, "")
	if err != nil {
		return RunResult{}, fmt.Errorf("%w: create: %s", ErrUnavailable, err)
	}
	containerID := resp.ID
	defer func() {
		_ = d.docker.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	if err := d.docker.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return RunResult{}, fmt.Errorf("%w: start: %s", ErrUnavailable, err)
	}

	statusCh, errCh := d.docker.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			if runCtx.Err() != nil {
				d.terminate(containerID)
				return RunResult{}, runCtx.Err()
			}
			return RunResult{}, fmt.Errorf("containerdriver: wait: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-runCtx.Done():
		d.terminate(containerID)
		return RunResult{}, runCtx.Err()
	}

	stdout, err := d.collectStdout(context.Background(), containerID)
	if err != nil {
		return RunResult{}, err
	}

	return RunResult{
		Stdout:   stdout,
		ExitCode: exitCode,
		LogsRef:  containerID,
	}, nil
}

// terminate sends a polite stop (SIGTERM, grace period) to a running agent
// container on cancellation.
func (d *DockerDriver) terminate(containerID string) {
	timeout := 10
	_ = d.docker.ContainerStop(context.Background(), containerID, container.StopOptions{Timeout: &timeout})
}

func (d *DockerDriver) collectStdout(ctx context.Context, containerID string) (string, error) {
	reader, err := d.docker.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: false,
	})
	if err != nil {
		return "", fmt.Errorf("containerdriver: logs: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, io.Discard, reader); err != nil && err != io.EOF {
		return "", fmt.Errorf("containerdriver: demux logs: %w", err)
	}
	return buf.String(), nil
}

func composeEnv(spec StackSpec) []string {
	env := []string{
		"BACKEND_PORT=" + strconv.Itoa(spec.BackendPort),
		"FRONTEND_PORT=" + strconv.Itoa(spec.FrontendPort),
		"DB_PORT=" + strconv.Itoa(spec.DBPort),
		"CACHE_PORT=" + strconv.Itoa(spec.CachePort),
	}
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// Ping verifies the Docker daemon is reachable, returning ErrUnavailable
// when it is not. Nothing in the Hub calls it; there is no health endpoint.
func (d *DockerDriver) Ping(ctx context.Context) error {
	if _, err := d.docker.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying Docker client resources.
func (d *DockerDriver) Close() error {
	return d.docker.Close()
}
