package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DockerConfig groups docker executor configuration values.
type DockerConfig struct {
	Host          string
	Image         string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	Logger        zerolog.Logger
}

// DockerExecutor runs candidate programs inside a disposable container with
// networking disabled. It is the hardened alternative to ProcessExecutor.
type DockerExecutor struct {
	client *client.Client
	cfg    DockerConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor constructs a Docker backed executor.
func NewDockerExecutor(cfg DockerConfig) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.Image == "" {
		cfg.Image = "python:3.11-alpine"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MemoryLimitMB <= 0 {
		cfg.MemoryLimitMB = 256
	}
	if cfg.CPUShares <= 0 {
		cfg.CPUShares = 512
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/intervo-dev/intervo-go-api/pkg/sandbox/docker"),
		logger: logger,
	}, nil
}

// Run executes the program inside a one-shot container. The container is
// removed on completion and killed on timeout.
func (e *DockerExecutor) Run(parent context.Context, req RunRequest) (RunOutput, error) {
	ctx, span := e.tracer.Start(parent, "sandbox.docker.run", trace.WithAttributes(
		attribute.String("docker.image", e.cfg.Image),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	workspace, err := os.MkdirTemp("", "sandbox-")
	if err != nil {
		sandboxFailures.WithLabelValues("docker").Inc()
		return RunOutput{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, "candidate.py"), []byte(req.Source), 0o600); err != nil {
		sandboxFailures.WithLabelValues("docker").Inc()
		return RunOutput{}, fmt.Errorf("write source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    e.cfg.MemoryLimitMB * 1024 * 1024,
			CPUShares: e.cfg.CPUShares,
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workspace,
			Target: "/workspace",
		}},
	}

	config := &container.Config{
		Image:        e.cfg.Image,
		Cmd:          []string{"python", "candidate.py"},
		WorkingDir:   "/workspace",
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	output := RunOutput{}

	resp, err := e.client.ContainerCreate(runCtx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		sandboxFailures.WithLabelValues("docker").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return output, fmt.Errorf("container create: %w", err)
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancelRemove := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelRemove()
		if err := e.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := e.client.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		sandboxFailures.WithLabelValues("docker").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return output, fmt.Errorf("container start: %w", err)
	}

	statusCh, errCh := e.client.ContainerWait(runCtx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		output.ExitCode = int(status.StatusCode)
	case <-runCtx.Done():
		waitErr = runCtx.Err()
	}

	output.Duration = time.Since(start)
	sandboxDuration.WithLabelValues("docker").Observe(output.Duration.Seconds())

	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded {
			output.TimedOut = true
			output.ExitCode = -1
			sandboxTimeouts.WithLabelValues("docker").Inc()
			killCtx, cancelKill := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancelKill()
			if err := e.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
				e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
			}
		} else if !errors.Is(waitErr, context.Canceled) {
			sandboxFailures.WithLabelValues("docker").Inc()
			span.RecordError(waitErr)
			span.SetStatus(codes.Error, waitErr.Error())
			return output, fmt.Errorf("container wait: %w", waitErr)
		}
	}

	logReader, err := e.client.ContainerLogs(parent, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err == nil {
		defer logReader.Close()
		stdout, stderr, err := splitDockerLogs(logReader)
		if err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		} else {
			output.Stdout = stdout
			output.Stderr = stderr
		}
	} else {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	}

	if output.TimedOut && output.Stderr == "" {
		output.Stderr = "execution timed out"
	}

	return output, nil
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the executor's underlying client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
