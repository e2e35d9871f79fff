// Package sandbox provides the command-execution backends the agent runs
// detected commands against. A sandbox session is stateful, bound to one
// conversation, reconnectable by id across HTTP requests, and expires lazily
// after an idle timeout.
package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrSandboxTimedOut marks a session whose idle timeout elapsed or that is
// otherwise confirmed dead. Session-fatal: the loop stops issuing further
// commands for the iteration when it sees this.
var ErrSandboxTimedOut = errors.New("sandbox session timed out")

// ErrCommandTimeout marks a single command exceeding its execution timeout.
// Recoverable: surfaced to the LLM as a text result, not a stream error.
var ErrCommandTimeout = errors.New("command execution timed out")

// ExecResult is the outcome of one command execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecOptions carries per-command execution options.
type ExecOptions struct {
	// Env are extra KEY=VALUE-style overrides applied to this command only.
	Env map[string]string
	// Timeout overrides the executor's default per-command timeout when > 0.
	Timeout time.Duration
}

// Executor is a stateful, session-scoped command/file-I/O backend. Two
// implementations exist: LocalExecutor (direct process execution, dev) and
// DockerExecutor (isolated container, prod). The agent loop is
// backend-agnostic.
type Executor interface {
	// Initialize provisions the session and returns its sandbox id.
	Initialize(ctx context.Context) (string, error)
	// Execute runs a command in the session's working directory. Returns
	// ErrSandboxTimedOut (wrapped) when the session is not alive and
	// ErrCommandTimeout (wrapped) when the command exceeds its timeout.
	Execute(ctx context.Context, command string, opts ExecOptions) (*ExecResult, error)
	// WriteFile writes content to a path relative to the session workdir.
	WriteFile(ctx context.Context, path string, content []byte) error
	// ReadFile reads a file relative to the session workdir. found is false
	// when the file does not exist.
	ReadFile(ctx context.Context, path string) (content []byte, found bool, err error)
	// ListFiles lists entries under a path (session workdir when empty).
	ListFiles(ctx context.Context, path string) ([]string, error)
	// Cleanup destroys the session and its resources.
	Cleanup(ctx context.Context) error
	// IsAlive reports session liveness, lazily expiring on idle timeout.
	IsAlive() bool
	// ResetTimeout refreshes the idle clock; false if the session is dead.
	ResetTimeout() bool
	// SandboxID returns the session id, empty before Initialize.
	SandboxID() string
}

// session is the liveness bookkeeping shared by all backends. The idle
// timeout is checked lazily on access; there is no background reaper.
type session struct {
	mu           sync.Mutex
	id           string
	alive        bool
	lastActivity time.Time
	idleTimeout  time.Duration
}

func (s *session) isAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return false
	}
	if time.Since(s.lastActivity) > s.idleTimeout {
		s.alive = false
		return false
	}
	return true
}

// touch refreshes the idle clock; false if the session already expired.
func (s *session) touch() bool {
	if !s.isAlive() {
		return false
	}
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
	return true
}

func (s *session) start(id string, idleTimeout time.Duration) {
	s.mu.Lock()
	s.id = id
	s.alive = true
	s.lastActivity = time.Now()
	s.idleTimeout = idleTimeout
	s.mu.Unlock()
}

func (s *session) stop() {
	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()
}

func (s *session) sandboxID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
