package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultLocalIdleTimeout is short: local sessions are cheap to recreate.
const DefaultLocalIdleTimeout = 5 * time.Minute

// defaultCommandTimeout bounds one command execution, independent of the
// session idle timeout.
const defaultCommandTimeout = 60 * time.Second

// defaultAllowedBinaries is the allow-list for direct local execution.
var defaultAllowedBinaries = []string{
	"ls", "cat", "echo", "head", "tail", "grep", "wc", "sort", "uniq",
	"sed", "awk", "cut", "tr", "find", "diff", "mkdir", "rm", "cp", "mv",
	"touch", "pwd", "date", "tar", "gzip", "sh", "python3", "python",
}

// LocalOptions configures a LocalExecutor.
type LocalOptions struct {
	IdleTimeout    time.Duration
	CommandTimeout time.Duration
	// AllowedBinaries replaces the default allow-list when non-empty.
	AllowedBinaries []string
}

// LocalExecutor runs commands as local processes in a per-session temp
// directory. Execution is restricted to an allow-list of binaries; this is a
// guard rail for development, not an isolation boundary.
type LocalExecutor struct {
	session
	workDir        string
	allowed        map[string]bool
	commandTimeout time.Duration
}

// NewLocalExecutor creates an uninitialized local executor.
func NewLocalExecutor(opts LocalOptions) *LocalExecutor {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultLocalIdleTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	binaries := opts.AllowedBinaries
	if len(binaries) == 0 {
		binaries = defaultAllowedBinaries
	}
	allowed := make(map[string]bool, len(binaries))
	for _, b := range binaries {
		allowed[b] = true
	}
	e := &LocalExecutor{
		allowed:        allowed,
		commandTimeout: opts.CommandTimeout,
	}
	e.idleTimeout = opts.IdleTimeout
	return e
}

// Initialize creates the session working directory.
func (e *LocalExecutor) Initialize(_ context.Context) (string, error) {
	dir, err := os.MkdirTemp("", "agentpad-sandbox-*")
	if err != nil {
		return "", errors.Wrap(err, "create sandbox workdir")
	}
	e.workDir = dir
	id := "local-" + uuid.New().String()[:8]
	e.start(id, e.idleTimeout)
	return id, nil
}

// Execute runs command through `sh -c` after checking every pipeline segment
// against the binary allow-list.
func (e *LocalExecutor) Execute(ctx context.Context, command string, opts ExecOptions) (*ExecResult, error) {
	if !e.touch() {
		return nil, errors.WithStack(ErrSandboxTimedOut)
	}
	if bin, ok := disallowedBinary(command, e.allowed); !ok {
		// Recoverable: shaped like a failed command so the agent can adapt.
		return &ExecResult{
			ExitCode: 126,
			Stderr:   fmt.Sprintf("command not allowed in local sandbox: %s", bin),
		}, nil
	}

	timeout := e.commandTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, "sh", "-c", command)
	cmd.Dir = e.workDir
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if tctx.Err() == context.DeadlineExceeded {
		return nil, errors.Wrapf(ErrCommandTimeout, "after %s", timeout)
	}
	result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, errors.Wrap(err, "run command")
	}
	return result, nil
}

// disallowedBinary checks the leading binary of each shell pipeline segment.
// Returns the offending name and false when something is not allow-listed.
func disallowedBinary(command string, allowed map[string]bool) (string, bool) {
	for _, segment := range splitSegments(command) {
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			continue
		}
		bin := filepath.Base(fields[0])
		if !allowed[bin] {
			return bin, false
		}
	}
	return "", true
}

// splitSegments splits a shell command on |, &&, || and ; separators. It is
// deliberately naive: separators inside quotes split too, which errs on the
// side of rejecting.
func splitSegments(command string) []string {
	replacer := strings.NewReplacer("&&", "\n", "||", "\n", "|", "\n", ";", "\n")
	return strings.Split(replacer.Replace(command), "\n")
}

// WriteFile writes content under the session workdir.
func (e *LocalExecutor) WriteFile(_ context.Context, path string, content []byte) error {
	if !e.touch() {
		return errors.WithStack(ErrSandboxTimedOut)
	}
	full, err := e.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return errors.Wrap(err, "create parent dir")
	}
	return errors.Wrapf(os.WriteFile(full, content, 0o640), "write %s", path)
}

// ReadFile reads a file under the session workdir.
func (e *LocalExecutor) ReadFile(_ context.Context, path string) ([]byte, bool, error) {
	if !e.touch() {
		return nil, false, errors.WithStack(ErrSandboxTimedOut)
	}
	full, err := e.resolve(path)
	if err != nil {
		return nil, false, err
	}
	content, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "read %s", path)
	}
	return content, true, nil
}

// ListFiles lists entries under path (the workdir when empty).
func (e *LocalExecutor) ListFiles(_ context.Context, path string) ([]string, error) {
	if !e.touch() {
		return nil, errors.WithStack(ErrSandboxTimedOut)
	}
	full := e.workDir
	if path != "" {
		var err error
		if full, err = e.resolve(path); err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", path)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

// Cleanup removes the working directory and marks the session dead.
func (e *LocalExecutor) Cleanup(_ context.Context) error {
	e.stop()
	if e.workDir == "" {
		return nil
	}
	return errors.Wrap(os.RemoveAll(e.workDir), "remove sandbox workdir")
}

// IsAlive reports liveness with lazy idle expiry.
func (e *LocalExecutor) IsAlive() bool { return e.isAlive() }

// ResetTimeout refreshes the idle clock.
func (e *LocalExecutor) ResetTimeout() bool { return e.touch() }

// SandboxID returns the session id.
func (e *LocalExecutor) SandboxID() string { return e.sandboxID() }

// resolve maps a session-relative path to the workdir, rejecting escapes.
func (e *LocalExecutor) resolve(path string) (string, error) {
	full := filepath.Join(e.workDir, filepath.Clean("/"+path))
	if !strings.HasPrefix(full, e.workDir) {
		return "", errors.Errorf("path escapes sandbox: %s", path)
	}
	return full, nil
}
