package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSkillHandlerLongestPrefixDispatch(t *testing.T) {
	ctx := context.Background()
	skills := newFakeSkillStore()
	skills.skills["deploy"] = "how to deploy"
	skills.skillFiles["deploy/notes.md"] = []byte("release checklist")
	h := NewSkillHandler(skills, lazyFor(newFakeExec()))

	// "get-file" must not dispatch to "get".
	out, err := h.Handle(ctx, "get-file deploy notes.md")
	require.NoError(t, err)
	require.Equal(t, "release checklist", out)

	out, err = h.Handle(ctx, "get deploy")
	require.NoError(t, err)
	require.Equal(t, "how to deploy", out)
}

func TestSkillHandlerSearchQuotedPhrase(t *testing.T) {
	ctx := context.Background()
	skills := newFakeSkillStore()
	skills.hits = []SkillHit{{Name: "foo-bar", Snippet: "does foo bar"}}
	h := NewSkillHandler(skills, lazyFor(newFakeExec()))

	out, err := h.Handle(ctx, `search "foo bar"`)
	require.NoError(t, err)
	require.Contains(t, out, "foo-bar")
	// The quoted argument reaches the store as one phrase.
	require.Equal(t, []string{"foo bar"}, skills.searches)
}

func TestSkillHandlerUnknownCommand(t *testing.T) {
	ctx := context.Background()
	h := NewSkillHandler(newFakeSkillStore(), lazyFor(newFakeExec()))

	out, err := h.Handle(ctx, "frobnicate now")
	require.NoError(t, err)
	require.Equal(t, "Unknown skill command: frobnicate. Run 'skill help' to see available commands.", out)
}

func TestSkillHandlerSetAndList(t *testing.T) {
	ctx := context.Background()
	skills := newFakeSkillStore()
	h := NewSkillHandler(skills, lazyFor(newFakeExec()))

	out, err := h.Handle(ctx, `set deploy "run make release"`)
	require.NoError(t, err)
	require.Equal(t, "Created skill 'deploy'.", out)
	require.Equal(t, "run make release", skills.skills["deploy"])

	out, err = h.Handle(ctx, `set deploy "run make release twice"`)
	require.NoError(t, err)
	require.Equal(t, "Updated skill 'deploy'.", out)

	out, err = h.Handle(ctx, "list")
	require.NoError(t, err)
	require.Equal(t, "deploy", out)
}

func TestSkillHandlerGetMissing(t *testing.T) {
	ctx := context.Background()
	h := NewSkillHandler(newFakeSkillStore(), lazyFor(newFakeExec()))

	out, err := h.Handle(ctx, "get nope")
	require.NoError(t, err)
	require.Equal(t, "Skill not found: nope", out)
}

func TestSkillHandlerCopyToSandbox(t *testing.T) {
	ctx := context.Background()
	skills := newFakeSkillStore()
	skills.skillFiles["deploy/run.sh"] = []byte("#!/bin/sh\nmake release\n")
	exec := newFakeExec()
	h := NewSkillHandler(skills, lazyFor(exec))

	out, err := h.Handle(ctx, "copy-to-sandbox deploy run.sh")
	require.NoError(t, err)
	require.Equal(t, "Copied run.sh to sandbox.", out)
	require.Equal(t, []byte("#!/bin/sh\nmake release\n"), exec.files["run.sh"])
}

func TestSkillHandlerAddFileFromSandbox(t *testing.T) {
	ctx := context.Background()
	skills := newFakeSkillStore()
	skills.skills["deploy"] = "how to deploy"
	exec := newFakeExec()
	exec.files["output.log"] = []byte("build ok")
	h := NewSkillHandler(skills, lazyFor(exec))

	out, err := h.Handle(ctx, "add-file output.log deploy")
	require.NoError(t, err)
	require.Equal(t, "Added output.log to skill 'deploy'.", out)
	require.Equal(t, []byte("build ok"), skills.skillFiles["deploy/output.log"])

	out, err = h.Handle(ctx, "add-file missing.log deploy")
	require.NoError(t, err)
	require.Equal(t, "File not found in sandbox: missing.log", out)
}

func TestSkillHandlerSuggest(t *testing.T) {
	ctx := context.Background()
	skills := newFakeSkillStore()
	h := NewSkillHandler(skills, lazyFor(newFakeExec()))

	out, err := h.Handle(ctx, `suggest "always pin versions" --name="pin-versions"`)
	require.NoError(t, err)
	var result struct {
		Status  string `json:"status"`
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, "created", result.Status)
	require.Equal(t, "pin-versions", result.Name)
	require.Equal(t, "always pin versions", skills.skills["pin-versions"])

	// Existing skill without --force is refused.
	out, err = h.Handle(ctx, `suggest "something else" --name="pin-versions"`)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, "exists", result.Status)
	require.Equal(t, "always pin versions", skills.skills["pin-versions"])

	// --force overwrites.
	out, err = h.Handle(ctx, `suggest "something else" --name="pin-versions" --force`)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, "updated", result.Status)
	require.Equal(t, "something else", skills.skills["pin-versions"])
}

func TestSkillHandlerSuggestUsage(t *testing.T) {
	ctx := context.Background()
	h := NewSkillHandler(newFakeSkillStore(), lazyFor(newFakeExec()))

	out, err := h.Handle(ctx, `suggest "text without a name"`)
	require.NoError(t, err)
	require.Contains(t, out, "Usage: skill suggest")
}

func TestSplitArgs(t *testing.T) {
	require.Equal(t, []string{"foo bar"}, splitArgs(`"foo bar"`))
	require.Equal(t, []string{"a", "b c", "d"}, splitArgs(`a "b c" d`))
	require.Equal(t, []string{"--name=deploy app"}, splitArgs(`--name="deploy app"`))
	require.Nil(t, splitArgs(""))
}
