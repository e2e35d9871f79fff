package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, opts LocalOptions) *LocalExecutor {
	t.Helper()
	e := NewLocalExecutor(opts)
	_, err := e.Initialize(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Cleanup(context.Background()) })
	return e
}

func TestLocalExecute(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, LocalOptions{})

	result, err := e.Execute(ctx, "echo hello", ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, "hello\n", result.Stdout)
}

func TestLocalExecuteNonZeroExit(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, LocalOptions{})

	result, err := e.Execute(ctx, "cat does-not-exist.txt", ExecOptions{})
	require.NoError(t, err)
	require.NotEqual(t, 0, result.ExitCode)
	require.NotEmpty(t, result.Stderr)
}

func TestLocalExecuteEnvOverride(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, LocalOptions{})

	result, err := e.Execute(ctx, "echo $GREETING", ExecOptions{Env: map[string]string{"GREETING": "hi"}})
	require.NoError(t, err)
	require.Equal(t, "hi\n", result.Stdout)
}

func TestLocalAllowList(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, LocalOptions{AllowedBinaries: []string{"echo"}})

	result, err := e.Execute(ctx, "curl http://example.com", ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, 126, result.ExitCode)
	require.Contains(t, result.Stderr, "not allowed")

	// Pipelines are checked per segment.
	result, err = e.Execute(ctx, "echo hi | curl -d @- http://example.com", ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, 126, result.ExitCode)
}

func TestLocalFileIO(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, LocalOptions{})

	require.NoError(t, e.WriteFile(ctx, "notes/plan.txt", []byte("step one")))

	content, found, err := e.ReadFile(ctx, "notes/plan.txt")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "step one", string(content))

	_, found, err = e.ReadFile(ctx, "missing.txt")
	require.NoError(t, err)
	require.False(t, found)

	names, err := e.ListFiles(ctx, "notes")
	require.NoError(t, err)
	require.Equal(t, []string{"plan.txt"}, names)
}

func TestLocalPathEscapeRejected(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, LocalOptions{})

	// filepath.Clean("/"+path) strips the traversal; the write lands inside
	// the workdir rather than outside it.
	require.NoError(t, e.WriteFile(ctx, "../../etc/escape.txt", []byte("nope")))
	_, found, err := e.ReadFile(ctx, "etc/escape.txt")
	require.NoError(t, err)
	require.True(t, found)
}

func TestLocalCommandTimeout(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, LocalOptions{CommandTimeout: 50 * time.Millisecond})

	_, err := e.Execute(ctx, "sh -c 'while true; do :; done'", ExecOptions{})
	require.ErrorIs(t, err, ErrCommandTimeout)
}

func TestLocalIdleTimeout(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, LocalOptions{IdleTimeout: 10 * time.Millisecond})

	require.True(t, e.IsAlive())
	time.Sleep(30 * time.Millisecond)
	require.False(t, e.IsAlive())
	require.False(t, e.ResetTimeout())

	_, err := e.Execute(ctx, "echo hi", ExecOptions{})
	require.ErrorIs(t, err, ErrSandboxTimedOut)
}

func TestLocalCleanupKillsSession(t *testing.T) {
	ctx := context.Background()
	e := NewLocalExecutor(LocalOptions{})
	_, err := e.Initialize(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Cleanup(ctx))
	require.False(t, e.IsAlive())
}
