package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agentpad/agentpad/store"
	"github.com/agentpad/agentpad/store/db/postgres"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("agentpad"),
		tcpostgres.WithUsername("agentpad"),
		tcpostgres.WithPassword("agentpad"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	driver, err := postgres.New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	st := store.New(driver)
	require.NoError(t, st.EnsureTables(ctx))
	return st
}

func TestPostgresConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	conv, err := st.CreateConversation(ctx, &store.Conversation{UID: "conv-1", Title: "New Task"})
	require.NoError(t, err)
	require.NotZero(t, conv.ID)

	msg, err := st.CreateMessage(ctx, &store.CreateMessage{
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Parts: []store.Part{
			{Type: store.PartTypeText, Content: "hello"},
			{Type: store.PartTypeTool, CommandID: "cmd-1-0", Command: "ls", Output: "main.go", Status: store.ToolStatusCompleted},
		},
	})
	require.NoError(t, err)
	require.NotZero(t, msg.ID)

	msgs, err := st.ListMessages(ctx, &store.FindMessage{ConversationID: conv.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 2)

	require.NoError(t, st.DeleteConversation(ctx, "conv-1"))
	// Messages cascade with their conversation.
	msgs, err = st.ListMessages(ctx, &store.FindMessage{ConversationID: conv.ID})
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestPostgresSkillRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	skill, err := st.CreateSkill(ctx, &store.Skill{UID: "sk-1", Name: "deploy", Content: "run make release"})
	require.NoError(t, err)

	content := "run make release twice"
	updated, err := st.UpdateSkill(ctx, &store.UpdateSkill{UID: "sk-1", Content: &content})
	require.NoError(t, err)
	require.Equal(t, content, updated.Content)

	_, err = st.CreateSkillFile(ctx, &store.CreateSkillFile{
		SkillID:    skill.ID,
		Name:       "run.sh",
		StorageKey: "skills/sk-1/run.sh",
		Size:       10,
	})
	require.NoError(t, err)

	files, err := st.ListSkillFiles(ctx, &store.FindSkillFile{SkillID: skill.ID})
	require.NoError(t, err)
	require.Len(t, files, 1)
}
