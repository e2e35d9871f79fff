package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
)

// DefaultDockerIdleTimeout is long: container sessions are expensive to
// provision, so they are kept around for reconnection across requests.
const DefaultDockerIdleTimeout = 30 * time.Minute

// DefaultDockerImage is used when no image is configured.
const DefaultDockerImage = "python:3.12-slim"

const containerWorkDir = "/workspace"

// DockerOptions configures a DockerExecutor.
type DockerOptions struct {
	Image          string
	IdleTimeout    time.Duration
	CommandTimeout time.Duration
	// ContainerID reconnects to an existing session instead of creating one.
	ContainerID string
}

// DockerExecutor runs commands inside a dedicated container reached over the
// Docker Engine API. One container per session; the container keeps running
// between requests so the filesystem state survives reconnection.
type DockerExecutor struct {
	session
	cli            *client.Client
	image          string
	containerID    string
	reconnectID    string
	commandTimeout time.Duration
}

// NewDockerExecutor creates an uninitialized docker executor. The client is
// configured from the environment (DOCKER_HOST etc.).
func NewDockerExecutor(opts DockerOptions) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "create docker client")
	}
	if opts.Image == "" {
		opts.Image = DefaultDockerImage
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultDockerIdleTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	e := &DockerExecutor{
		cli:            cli,
		image:          opts.Image,
		reconnectID:    opts.ContainerID,
		commandTimeout: opts.CommandTimeout,
	}
	e.idleTimeout = opts.IdleTimeout
	return e, nil
}

// Initialize reconnects to the configured container when it is still
// running, otherwise provisions a fresh one.
func (e *DockerExecutor) Initialize(ctx context.Context) (string, error) {
	if e.reconnectID != "" {
		info, err := e.cli.ContainerInspect(ctx, e.reconnectID)
		if err == nil && info.State != nil && info.State.Running {
			e.containerID = e.reconnectID
			e.start(shortContainerID(e.containerID), e.idleTimeout)
			return e.SandboxID(), nil
		}
		// Dead or missing: fall through and provision a replacement.
	}

	if reader, err := e.cli.ImagePull(ctx, e.image, image.PullOptions{}); err == nil {
		_, _ = io.Copy(io.Discard, reader)
		_ = reader.Close()
	}

	created, err := e.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      e.image,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: containerWorkDir,
		},
		&container.HostConfig{
			NetworkMode: "none",
		},
		nil, nil, "")
	if err != nil {
		return "", errors.Wrap(err, "create sandbox container")
	}
	if err := e.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", errors.Wrap(err, "start sandbox container")
	}
	if _, err := e.execInContainer(ctx, []string{"mkdir", "-p", containerWorkDir}, nil, e.commandTimeout); err != nil {
		return "", err
	}
	e.containerID = created.ID
	e.start(shortContainerID(created.ID), e.idleTimeout)
	return e.SandboxID(), nil
}

// Execute runs command through `sh -c` inside the container.
func (e *DockerExecutor) Execute(ctx context.Context, command string, opts ExecOptions) (*ExecResult, error) {
	if !e.touch() {
		return nil, errors.WithStack(ErrSandboxTimedOut)
	}
	timeout := e.commandTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	return e.execInContainer(ctx, []string{"sh", "-c", command}, env, timeout)
}

func (e *DockerExecutor) execInContainer(ctx context.Context, cmd, env []string, timeout time.Duration) (*ExecResult, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	created, err := e.cli.ContainerExecCreate(tctx, e.containerID, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		WorkingDir:   containerWorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create exec")
	}
	attached, err := e.cli.ContainerExecAttach(tctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "attach exec")
	}
	defer attached.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attached.Reader); err != nil {
		if tctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(ErrCommandTimeout, "after %s", timeout)
		}
		return nil, errors.Wrap(err, "read exec output")
	}
	if tctx.Err() == context.DeadlineExceeded {
		return nil, errors.Wrapf(ErrCommandTimeout, "after %s", timeout)
	}

	inspect, err := e.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, errors.Wrap(err, "inspect exec")
	}
	return &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// WriteFile copies content into the container as a tar stream.
func (e *DockerExecutor) WriteFile(ctx context.Context, filePath string, content []byte) error {
	if !e.touch() {
		return errors.WithStack(ErrSandboxTimedOut)
	}
	rel := strings.TrimPrefix(path.Clean("/"+filePath), "/")
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: rel,
		Mode: 0o640,
		Size: int64(len(content)),
	}); err != nil {
		return errors.Wrap(err, "write tar header")
	}
	if _, err := tw.Write(content); err != nil {
		return errors.Wrap(err, "write tar body")
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "close tar")
	}
	return errors.Wrapf(
		e.cli.CopyToContainer(ctx, e.containerID, containerWorkDir, &buf, container.CopyToContainerOptions{}),
		"copy %s to container", filePath,
	)
}

// ReadFile copies a file out of the container.
func (e *DockerExecutor) ReadFile(ctx context.Context, filePath string) ([]byte, bool, error) {
	if !e.touch() {
		return nil, false, errors.WithStack(ErrSandboxTimedOut)
	}
	src := path.Join(containerWorkDir, path.Clean("/"+filePath))
	reader, _, err := e.cli.CopyFromContainer(ctx, e.containerID, src)
	if err != nil {
		if client.IsErrNotFound(err) || strings.Contains(err.Error(), "No such") {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "copy %s from container", filePath)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	if _, err := tr.Next(); err != nil {
		return nil, false, errors.Wrap(err, "read tar header")
	}
	content, err := io.ReadAll(tr)
	if err != nil {
		return nil, false, errors.Wrap(err, "read tar body")
	}
	return content, true, nil
}

// ListFiles lists entries under path inside the container workdir.
func (e *DockerExecutor) ListFiles(ctx context.Context, dirPath string) ([]string, error) {
	if !e.touch() {
		return nil, errors.WithStack(ErrSandboxTimedOut)
	}
	target := containerWorkDir
	if dirPath != "" {
		target = path.Join(containerWorkDir, path.Clean("/"+dirPath))
	}
	result, err := e.execInContainer(ctx, []string{"ls", "-1A", target}, nil, e.commandTimeout)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, errors.Errorf("list %s: %s", dirPath, strings.TrimSpace(result.Stderr))
	}
	var names []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Cleanup force-removes the container.
func (e *DockerExecutor) Cleanup(ctx context.Context) error {
	e.stop()
	if e.containerID == "" {
		return nil
	}
	return errors.Wrap(
		e.cli.ContainerRemove(ctx, e.containerID, container.RemoveOptions{Force: true}),
		"remove sandbox container",
	)
}

// IsAlive reports liveness with lazy idle expiry.
func (e *DockerExecutor) IsAlive() bool { return e.isAlive() }

// ResetTimeout refreshes the idle clock.
func (e *DockerExecutor) ResetTimeout() bool { return e.touch() }

// SandboxID returns the session id.
func (e *DockerExecutor) SandboxID() string { return e.sandboxID() }

func shortContainerID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
