package sandbox

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// Factory builds an uninitialized executor. sandboxID is non-empty when the
// caller wants to reconnect to an existing session; backends that cannot
// reconnect may ignore it.
type Factory func(sandboxID string) (Executor, error)

// registrySlot is one conversation's slot. Its mutex serializes provisioning and
// liveness checks for that conversation only; a docker image pull for one
// conversation must not stall every other Acquire.
type registrySlot struct {
	mu   sync.Mutex
	exec Executor
}

// Registry tracks the one in-flight executor per conversation. It replaces
// any ambient "current executor" state: callers always go through
// Acquire(conversationUID, ...), so one conversation can never pick up
// another conversation's session.
type Registry struct {
	mu       sync.Mutex
	factory  Factory
	sessions map[string]*registrySlot // keyed by conversation UID
}

// NewRegistry creates a registry provisioning executors via factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		sessions: make(map[string]*registrySlot),
	}
}

// slot returns the conversation's session entry, creating it if needed. The
// registry lock is held only for the map access, never across provisioning.
func (r *Registry) slot(conversationUID string) *registrySlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conversationUID]
	if !ok {
		s = &registrySlot{}
		r.sessions[conversationUID] = s
	}
	return s
}

// Acquire returns the live executor for the conversation, reconnecting by
// sandboxID or transparently provisioning a replacement when the cached
// session died. created is true when a new session was provisioned.
func (r *Registry) Acquire(ctx context.Context, conversationUID, sandboxID string) (exec Executor, created bool, err error) {
	s := r.slot(conversationUID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exec != nil {
		if s.exec.IsAlive() {
			s.exec.ResetTimeout()
			return s.exec, false, nil
		}
		// Expired mid-flight: drop it and provision a replacement below.
		if cleanupErr := s.exec.Cleanup(ctx); cleanupErr != nil {
			slog.Warn("cleanup of expired sandbox failed", "conversation", conversationUID, "err", cleanupErr)
		}
		s.exec = nil
	}

	executor, err := r.factory(sandboxID)
	if err != nil {
		return nil, false, errors.Wrap(err, "create sandbox executor")
	}
	if _, err := executor.Initialize(ctx); err != nil {
		return nil, false, errors.Wrap(err, "initialize sandbox")
	}
	s.exec = executor
	return executor, true, nil
}

// Peek returns the cached executor for a conversation without provisioning.
func (r *Registry) Peek(conversationUID string) (Executor, bool) {
	r.mu.Lock()
	s, ok := r.sessions[conversationUID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec, s.exec != nil
}

// Release destroys and forgets the conversation's session. Cleanup failures
// are logged, not escalated: the caller is already tearing down. A release
// racing an in-flight Acquire waits for the provisioning to finish, then
// tears down the fresh session too.
func (r *Registry) Release(ctx context.Context, conversationUID string) {
	r.mu.Lock()
	s, ok := r.sessions[conversationUID]
	delete(r.sessions, conversationUID)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	executor := s.exec
	s.exec = nil
	s.mu.Unlock()
	if executor == nil {
		return
	}
	if err := executor.Cleanup(ctx); err != nil {
		slog.Warn("sandbox cleanup failed", "conversation", conversationUID, "err", err)
	}
}
