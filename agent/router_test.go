package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentpad/agentpad/sandbox"
)

// fakeExec is a scripted sandbox.Executor shared by router and loop tests.
type fakeExec struct {
	id       string
	results  map[string]*sandbox.ExecResult
	errs     map[string]error
	files    map[string][]byte
	executed []string
	cleaned  bool
}

func newFakeExec() *fakeExec {
	return &fakeExec{
		id:      "sbx-test",
		results: map[string]*sandbox.ExecResult{},
		errs:    map[string]error{},
		files:   map[string][]byte{},
	}
}

func (f *fakeExec) Initialize(context.Context) (string, error) { return f.id, nil }
func (f *fakeExec) Execute(_ context.Context, command string, _ sandbox.ExecOptions) (*sandbox.ExecResult, error) {
	f.executed = append(f.executed, command)
	if err, ok := f.errs[command]; ok {
		return nil, err
	}
	if res, ok := f.results[command]; ok {
		return res, nil
	}
	return &sandbox.ExecResult{Stdout: "ok"}, nil
}
func (f *fakeExec) WriteFile(_ context.Context, path string, data []byte) error {
	f.files[path] = data
	return nil
}
func (f *fakeExec) ReadFile(_ context.Context, path string) ([]byte, bool, error) {
	data, ok := f.files[path]
	return data, ok, nil
}
func (f *fakeExec) ListFiles(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeExec) Cleanup(context.Context) error                      { f.cleaned = true; return nil }
func (f *fakeExec) IsAlive() bool                                      { return !f.cleaned }
func (f *fakeExec) ResetTimeout() bool                                 { return !f.cleaned }
func (f *fakeExec) SandboxID() string                                  { return f.id }

func lazyFor(exec *fakeExec) *LazySandbox {
	return NewLazySandbox(func(context.Context) (sandbox.Executor, bool, error) {
		return exec, true, nil
	})
}

// fakeSkillStore is an in-memory SkillStore.
type fakeSkillStore struct {
	skills     map[string]string
	skillFiles map[string][]byte // "name/file" -> content
	searches   []string
	hits       []SkillHit
}

func newFakeSkillStore() *fakeSkillStore {
	return &fakeSkillStore{skills: map[string]string{}, skillFiles: map[string][]byte{}}
}

func (f *fakeSkillStore) ListSkillNames(context.Context) ([]string, error) {
	names := make([]string, 0, len(f.skills))
	for name := range f.skills {
		names = append(names, name)
	}
	return names, nil
}
func (f *fakeSkillStore) GetSkill(_ context.Context, name string) (*SkillRecord, error) {
	content, ok := f.skills[name]
	if !ok {
		return nil, nil
	}
	return &SkillRecord{UID: "uid-" + name, Name: name, Content: content}, nil
}
func (f *fakeSkillStore) SaveSkill(_ context.Context, name, content string) (*SkillRecord, bool, error) {
	_, existed := f.skills[name]
	f.skills[name] = content
	return &SkillRecord{UID: "uid-" + name, Name: name, Content: content}, !existed, nil
}
func (f *fakeSkillStore) SearchSkills(_ context.Context, query string, _ int) ([]SkillHit, error) {
	f.searches = append(f.searches, query)
	return f.hits, nil
}
func (f *fakeSkillStore) GetSkillFile(_ context.Context, skillName, fileName string) ([]byte, bool, error) {
	data, ok := f.skillFiles[skillName+"/"+fileName]
	return data, ok, nil
}
func (f *fakeSkillStore) AddSkillFile(_ context.Context, skillName, fileName string, content []byte) error {
	f.skillFiles[skillName+"/"+fileName] = content
	return nil
}

func newTestRouter(exec *fakeExec, skills *fakeSkillStore) *Router {
	sb := lazyFor(exec)
	return NewRouter(sb, NewSkillHandler(skills, sb))
}

func TestRouterRoutingLaw(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExec()
	skills := newFakeSkillStore()
	router := newTestRouter(exec, skills)

	// Bare token and token plus space go to the skill handler.
	out, err := router.Execute(ctx, "skill", ExecOptions{})
	require.NoError(t, err)
	require.Contains(t, out, "Skill commands:")
	require.Empty(t, exec.executed)

	out, err = router.Execute(ctx, "skill list", ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, "No skills saved yet.", out)
	require.Empty(t, exec.executed)

	// A shared prefix without the space boundary is a shell command.
	exec.results["skillful --version"] = &sandbox.ExecResult{Stdout: "skillful 1.0"}
	out, err = router.Execute(ctx, "skillful --version", ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, "skillful 1.0", out)
	require.Equal(t, []string{"skillful --version"}, exec.executed)
}

func TestRouterShellErrorShaping(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExec()
	router := newTestRouter(exec, newFakeSkillStore())

	exec.results["cat missing"] = &sandbox.ExecResult{ExitCode: 1, Stderr: "file not found"}
	out, err := router.Execute(ctx, "cat missing", ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, "Error: file not found", out)

	exec.results["false"] = &sandbox.ExecResult{ExitCode: 3}
	out, err = router.Execute(ctx, "false", ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, "Command failed with exit code 3", out)
}

func TestRouterNoOutputSentinel(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExec()
	router := newTestRouter(exec, newFakeSkillStore())

	exec.results["true"] = &sandbox.ExecResult{}
	out, err := router.Execute(ctx, "true", ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, "(no output)", out)
}

func TestRouterMergesStderrOnSuccess(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExec()
	router := newTestRouter(exec, newFakeSkillStore())

	exec.results["build"] = &sandbox.ExecResult{Stdout: "done", Stderr: "warning: deprecated"}
	out, err := router.Execute(ctx, "build", ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, "done\nwarning: deprecated", out)
}

func TestRouterCommandTimeoutIsRecoverable(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExec()
	router := newTestRouter(exec, newFakeSkillStore())

	exec.errs["sleep 999"] = sandbox.ErrCommandTimeout
	out, err := router.Execute(ctx, "sleep 999", ExecOptions{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Error:"))
}

func TestRouterSandboxTimeoutEscapes(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExec()
	router := newTestRouter(exec, newFakeSkillStore())

	exec.errs["ls"] = sandbox.ErrSandboxTimedOut
	_, err := router.Execute(ctx, "ls", ExecOptions{})
	require.ErrorIs(t, err, sandbox.ErrSandboxTimedOut)
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", 5000)
	require.Equal(t, short, Truncate(short, 5000))

	long := strings.Repeat("b", 5001)
	got := Truncate(long, 5000)
	require.Equal(t, long[:5000]+"\n... (output truncated)", got)
	// The first 5000 characters pass through exactly.
	require.Equal(t, long[:5000], got[:5000])
}

func TestRouterTruncatesLongOutput(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExec()
	router := newTestRouter(exec, newFakeSkillStore())

	exec.results["bigcat"] = &sandbox.ExecResult{Stdout: strings.Repeat("x", 6000)}
	out, err := router.Execute(ctx, "bigcat", ExecOptions{})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, "... (output truncated)"))
	require.Equal(t, strings.Repeat("x", 5000), out[:5000])
}
