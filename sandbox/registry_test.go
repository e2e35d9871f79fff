package sandbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeExecutor is a minimal in-memory Executor for registry tests.
type fakeExecutor struct {
	id        string
	alive     bool
	cleanedUp bool
}

func (f *fakeExecutor) Initialize(context.Context) (string, error) { f.alive = true; return f.id, nil }
func (f *fakeExecutor) Execute(context.Context, string, ExecOptions) (*ExecResult, error) {
	if !f.alive {
		return nil, ErrSandboxTimedOut
	}
	return &ExecResult{}, nil
}
func (f *fakeExecutor) WriteFile(context.Context, string, []byte) error { return nil }
func (f *fakeExecutor) ReadFile(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}
func (f *fakeExecutor) ListFiles(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeExecutor) Cleanup(context.Context) error {
	f.alive = false
	f.cleanedUp = true
	return nil
}
func (f *fakeExecutor) IsAlive() bool      { return f.alive }
func (f *fakeExecutor) ResetTimeout() bool { return f.alive }
func (f *fakeExecutor) SandboxID() string  { return f.id }

func TestRegistryReusesLiveSession(t *testing.T) {
	ctx := context.Background()
	var made int
	reg := NewRegistry(func(string) (Executor, error) {
		made++
		return &fakeExecutor{id: fmt.Sprintf("sbx-%d", made)}, nil
	})

	first, created, err := reg.Acquire(ctx, "conv-1", "")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := reg.Acquire(ctx, "conv-1", "")
	require.NoError(t, err)
	require.False(t, created)
	require.Same(t, first, second)
	require.Equal(t, 1, made)
}

func TestRegistryReplacesDeadSession(t *testing.T) {
	ctx := context.Background()
	var made int
	reg := NewRegistry(func(string) (Executor, error) {
		made++
		return &fakeExecutor{id: fmt.Sprintf("sbx-%d", made)}, nil
	})

	first, _, err := reg.Acquire(ctx, "conv-1", "")
	require.NoError(t, err)
	first.(*fakeExecutor).alive = false

	second, created, err := reg.Acquire(ctx, "conv-1", "")
	require.NoError(t, err)
	require.True(t, created)
	require.NotSame(t, first, second)
	require.Equal(t, "sbx-2", second.SandboxID())
}

func TestRegistryIsolatesConversations(t *testing.T) {
	ctx := context.Background()
	var made int
	reg := NewRegistry(func(string) (Executor, error) {
		made++
		return &fakeExecutor{id: fmt.Sprintf("sbx-%d", made)}, nil
	})

	a, _, err := reg.Acquire(ctx, "conv-a", "")
	require.NoError(t, err)
	b, _, err := reg.Acquire(ctx, "conv-b", "")
	require.NoError(t, err)
	require.NotSame(t, a, b)
	require.Equal(t, 2, made)
}

// slowInitExecutor blocks Initialize until released, standing in for a
// docker backend pulling an image.
type slowInitExecutor struct {
	fakeExecutor
	started chan struct{}
	unblock chan struct{}
}

func (s *slowInitExecutor) Initialize(ctx context.Context) (string, error) {
	close(s.started)
	<-s.unblock
	return s.fakeExecutor.Initialize(ctx)
}

func TestRegistryProvisionDoesNotBlockOtherConversations(t *testing.T) {
	ctx := context.Background()
	slow := &slowInitExecutor{
		fakeExecutor: fakeExecutor{id: "sbx-slow"},
		started:      make(chan struct{}),
		unblock:      make(chan struct{}),
	}
	var made int
	reg := NewRegistry(func(string) (Executor, error) {
		made++
		if made == 1 {
			return slow, nil
		}
		return &fakeExecutor{id: fmt.Sprintf("sbx-%d", made)}, nil
	})

	slowErr := make(chan error, 1)
	go func() {
		_, _, err := reg.Acquire(ctx, "conv-slow", "")
		slowErr <- err
	}()
	<-slow.started

	// conv-slow is still provisioning; another conversation acquires anyway.
	fast, created, err := reg.Acquire(ctx, "conv-fast", "")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "sbx-2", fast.SandboxID())

	close(slow.unblock)
	require.NoError(t, <-slowErr)

	got, ok := reg.Peek("conv-slow")
	require.True(t, ok)
	require.Same(t, slow, got)
}

func TestRegistryRelease(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(func(string) (Executor, error) {
		return &fakeExecutor{id: "sbx-1"}, nil
	})

	exec, _, err := reg.Acquire(ctx, "conv-1", "")
	require.NoError(t, err)

	reg.Release(ctx, "conv-1")
	require.True(t, exec.(*fakeExecutor).cleanedUp)

	_, ok := reg.Peek("conv-1")
	require.False(t, ok)

	// Releasing an unknown conversation is a no-op.
	reg.Release(ctx, "conv-unknown")
}
