package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/agentpad/agentpad/sandbox"
)

// SkillCommandPrefix is the reserved token routing a command to the skill
// sub-command handler instead of the shell.
const SkillCommandPrefix = "skill"

// maxCommandOutput bounds the text fed back to the LLM per command.
const maxCommandOutput = 5000

// truncationMarker is appended when output exceeds maxCommandOutput.
const truncationMarker = "\n... (output truncated)"

// noOutputSentinel is fed back when a command produces nothing.
const noOutputSentinel = "(no output)"

// ExecOptions carries per-command options from the request boundary.
// Environment overrides apply to shell commands only; the skill handler
// never sees them.
type ExecOptions struct {
	Env map[string]string
}

// LazySandbox hands out the one sandbox executor of a request, provisioning
// it on first use. It is the request-scoped replacement for any ambient
// "current executor" state: the acquire function is bound to a single
// conversation, so a second sandbox can never be created mid-request and a
// new conversation can never see another conversation's session.
type LazySandbox struct {
	mu      sync.Mutex
	acquire func(ctx context.Context) (sandbox.Executor, bool, error)
	exec    sandbox.Executor
	created bool
	used    bool
}

// NewLazySandbox wraps a conversation-bound acquire function, typically
// sandbox.Registry.Acquire partially applied.
func NewLazySandbox(acquire func(ctx context.Context) (sandbox.Executor, bool, error)) *LazySandbox {
	return &LazySandbox{acquire: acquire}
}

// Executor returns the session executor, provisioning it on first call.
func (s *LazySandbox) Executor(ctx context.Context) (sandbox.Executor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exec != nil {
		return s.exec, nil
	}
	exec, created, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.exec = exec
	s.created = created
	s.used = true
	return exec, nil
}

// Used reports whether any executor was provisioned during the request.
func (s *LazySandbox) Used() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Created reports whether the session was newly provisioned (as opposed to
// reconnected).
func (s *LazySandbox) Created() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// ID returns the sandbox id, empty before first use.
func (s *LazySandbox) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exec == nil {
		return ""
	}
	return s.exec.SandboxID()
}

// Router dispatches a detected command string to the skill sub-command
// handler or the generic shell handler and shapes the textual result fed
// back to the LLM.
type Router struct {
	sandbox *LazySandbox
	skills  *SkillHandler
}

// NewRouter creates a router over the request's sandbox and skill handler.
func NewRouter(sb *LazySandbox, skills *SkillHandler) *Router {
	return &Router{sandbox: sb, skills: skills}
}

// Execute routes and runs one command. Recoverable failures (non-zero exit,
// command timeout, unknown sub-command) come back as ordinary text so the
// agent can self-correct; only session-fatal and unexpected conditions
// return a non-nil error.
func (r *Router) Execute(ctx context.Context, raw string, opts ExecOptions) (string, error) {
	trimmed := strings.TrimSpace(raw)
	// Exact token or token followed by a space. "skillful ..." is a shell
	// command that merely shares the prefix characters.
	if trimmed == SkillCommandPrefix || strings.HasPrefix(trimmed, SkillCommandPrefix+" ") {
		args := strings.TrimSpace(strings.TrimPrefix(trimmed, SkillCommandPrefix))
		return r.skills.Handle(ctx, args)
	}
	return r.executeShell(ctx, trimmed, opts)
}

func (r *Router) executeShell(ctx context.Context, command string, opts ExecOptions) (string, error) {
	exec, err := r.sandbox.Executor(ctx)
	if err != nil {
		return "", errors.Wrap(err, "acquire sandbox")
	}
	result, err := exec.Execute(ctx, command, sandbox.ExecOptions{Env: opts.Env})
	if err != nil {
		if errors.Is(err, sandbox.ErrCommandTimeout) {
			return fmt.Sprintf("Error: %s", err.Error()), nil
		}
		// ErrSandboxTimedOut and unexpected failures escape to the loop.
		return "", err
	}
	return shapeShellResult(result), nil
}

// shapeShellResult formats an execution result the way the agent expects to
// read it back.
func shapeShellResult(result *sandbox.ExecResult) string {
	if result.ExitCode == 0 {
		out := result.Stdout
		if strings.TrimSpace(result.Stderr) != "" {
			out = out + "\n" + result.Stderr
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return noOutputSentinel
		}
		return Truncate(out, maxCommandOutput)
	}
	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		return Truncate("Error: "+stderr, maxCommandOutput)
	}
	return fmt.Sprintf("Command failed with exit code %d", result.ExitCode)
}

// Truncate caps s at n characters, appending a marker. The first n
// characters pass through unmodified.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + truncationMarker
}
