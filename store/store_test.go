package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentpad/agentpad/store"
	"github.com/agentpad/agentpad/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	driver, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	st := store.New(driver)
	require.NoError(t, st.EnsureTables(context.Background()))
	return st
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	conv, err := st.CreateConversation(ctx, &store.Conversation{UID: "conv-1", Title: "New Task"})
	require.NoError(t, err)
	require.Equal(t, store.ModeTask, conv.Mode)
	require.NotZero(t, conv.ID)
	require.NotZero(t, conv.CreatedTs)

	title := "Fix the build"
	sandboxID := "sbx-42"
	updated, err := st.UpdateConversation(ctx, &store.UpdateConversation{
		UID:       "conv-1",
		Title:     &title,
		SandboxID: &sandboxID,
	})
	require.NoError(t, err)
	require.Equal(t, "Fix the build", updated.Title)
	require.Equal(t, "sbx-42", updated.SandboxID)

	uid := "conv-1"
	got, err := st.GetConversation(ctx, &store.FindConversation{UID: &uid})
	require.NoError(t, err)
	require.Equal(t, updated.Title, got.Title)

	require.NoError(t, st.DeleteConversation(ctx, "conv-1"))
	got, err = st.GetConversation(ctx, &store.FindConversation{UID: &uid})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestConversationFilter(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.CreateConversation(ctx, &store.Conversation{UID: "a", Title: "Deploy service", Mode: store.ModeTask})
	require.NoError(t, err)
	_, err = st.CreateConversation(ctx, &store.Conversation{UID: "b", Title: "Distill deploy", Mode: store.ModeCodifySkill})
	require.NoError(t, err)

	list, err := st.ListConversations(ctx, &store.FindConversation{
		Filters: []string{`mode == "codify-skill"`},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "b", list[0].UID)

	list, err = st.ListConversations(ctx, &store.FindConversation{
		Filters: []string{`title.contains("Deploy")`},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "a", list[0].UID)
}

func TestMessagePartsRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	conv, err := st.CreateConversation(ctx, &store.Conversation{UID: "conv-1"})
	require.NoError(t, err)

	inputTokens := 120
	msg, err := st.CreateMessage(ctx, &store.CreateMessage{
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Parts: []store.Part{
			{Type: store.PartTypeText, Content: "Let me check."},
			{
				Type:      store.PartTypeTool,
				CommandID: "cmd-1-0",
				Command:   "ls",
				Output:    "main.go",
				Status:    store.ToolStatusCompleted,
			},
		},
		Stats: &store.MessageStats{InputTokens: &inputTokens, Iterations: 2},
		Raw:   "raw payload",
	})
	require.NoError(t, err)
	require.NotZero(t, msg.ID)

	msgs, err := st.ListMessages(ctx, &store.FindMessage{ConversationID: conv.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 2)
	require.Equal(t, "cmd-1-0", msgs[0].Parts[1].CommandID)
	require.Equal(t, store.ToolStatusCompleted, msgs[0].Parts[1].Status)
	require.NotNil(t, msgs[0].Stats)
	require.Equal(t, 120, *msgs[0].Stats.InputTokens)
	require.Equal(t, 2, msgs[0].Stats.Iterations)
}

func TestDeleteMessagesForCompaction(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	conv, err := st.CreateConversation(ctx, &store.Conversation{UID: "conv-1"})
	require.NoError(t, err)
	for range 3 {
		_, err := st.CreateMessage(ctx, &store.CreateMessage{
			ConversationID: conv.ID,
			Role:           store.RoleUser,
			Parts:          []store.Part{{Type: store.PartTypeText, Content: "hi"}},
		})
		require.NoError(t, err)
	}
	require.NoError(t, st.DeleteMessages(ctx, conv.ID))
	msgs, err := st.ListMessages(ctx, &store.FindMessage{ConversationID: conv.ID})
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestSkillLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	created, err := st.CreateSkill(ctx, &store.Skill{UID: "sk-1", Name: "deploy", Content: "run make release"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	content := "run make release twice"
	updated, err := st.UpdateSkill(ctx, &store.UpdateSkill{UID: "sk-1", Content: &content})
	require.NoError(t, err)
	require.Equal(t, content, updated.Content)

	name := "deploy"
	got, err := st.GetSkill(ctx, &store.FindSkill{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "sk-1", got.UID)

	list, err := st.ListSkills(ctx, &store.FindSkill{Filters: []string{`content.contains("twice")`}})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, st.DeleteSkill(ctx, "sk-1"))
	got, err = st.GetSkill(ctx, &store.FindSkill{Name: &name})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSkillFileUpsert(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	skill, err := st.CreateSkill(ctx, &store.Skill{UID: "sk-1", Name: "deploy"})
	require.NoError(t, err)

	_, err = st.CreateSkillFile(ctx, &store.CreateSkillFile{
		SkillID:    skill.ID,
		Name:       "run.sh",
		StorageKey: "skills/sk-1/run.sh",
		Size:       10,
	})
	require.NoError(t, err)

	// Re-adding the same file name replaces the record.
	_, err = st.CreateSkillFile(ctx, &store.CreateSkillFile{
		SkillID:    skill.ID,
		Name:       "run.sh",
		StorageKey: "skills/sk-1/run.sh",
		Size:       20,
	})
	require.NoError(t, err)

	files, err := st.ListSkillFiles(ctx, &store.FindSkillFile{SkillID: skill.ID})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, int64(20), files[0].Size)
}
