package skills

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentpad/agentpad/plugin/storage"
	"github.com/agentpad/agentpad/store"
	"github.com/agentpad/agentpad/store/db/sqlite"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	driver, err := sqlite.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	st := store.New(driver)
	require.NoError(t, st.EnsureTables(context.Background()))
	files, err := storage.NewLocalDriver(dir)
	require.NoError(t, err)
	// No vector index; search exercises the keyword fallback.
	return NewService(st, nil, files)
}

func TestSaveAndGetSkill(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	record, created, err := svc.SaveSkill(ctx, "deploy", "run make release")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, record.UID)

	record2, created, err := svc.SaveSkill(ctx, "deploy", "run make release twice")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, record.UID, record2.UID)

	got, err := svc.GetSkill(ctx, "deploy")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "run make release twice", got.Content)

	missing, err := svc.GetSkill(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestKeywordSearchFoldsCase(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, _, err := svc.SaveSkill(ctx, "deploy-app", "How to DEPLOY the Application safely")
	require.NoError(t, err)
	_, _, err = svc.SaveSkill(ctx, "unrelated", "notes about databases")
	require.NoError(t, err)

	hits, err := svc.SearchSkills(ctx, "deploy", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "deploy-app", hits[0].Name)
}

func TestSkillFilesThroughStorage(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, _, err := svc.SaveSkill(ctx, "deploy", "content")
	require.NoError(t, err)

	require.NoError(t, svc.AddSkillFile(ctx, "deploy", "run.sh", []byte("make release")))

	data, found, err := svc.GetSkillFile(ctx, "deploy", "run.sh")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("make release"), data)

	_, found, err = svc.GetSkillFile(ctx, "deploy", "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.Error(t, svc.AddSkillFile(ctx, "ghost", "x", nil))
}

func TestDeleteSkillRemovesFileBodies(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	record, _, err := svc.SaveSkill(ctx, "deploy", "content")
	require.NoError(t, err)
	require.NoError(t, svc.AddSkillFile(ctx, "deploy", "run.sh", []byte("x")))

	require.NoError(t, svc.DeleteSkill(ctx, record.UID))

	got, err := svc.GetSkill(ctx, "deploy")
	require.NoError(t, err)
	require.Nil(t, got)

	names, err := svc.ListSkillNames(ctx)
	require.NoError(t, err)
	require.Empty(t, names)
}
