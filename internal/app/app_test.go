package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accord/internal/config"
	"accord/internal/db"
	"accord/internal/domain"
	"accord/internal/engine"
	"accord/internal/migrate"
)

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return engine.New(conn, config.Default())
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	first, err := SeedDemo(ctx, e, true)
	require.NoError(t, err)
	assert.True(t, first.Created)
	require.Len(t, first.Goals, 2)
	require.Len(t, first.Conflicts, 1)
	assert.Equal(t, domain.ConflictDirect, first.Conflicts[0].Type)

	second, err := SeedDemo(ctx, e, true)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Family.ID, second.Family.ID)

	goals, err := e.ListGoals(ctx, engine.GoalListOptions{FamilyID: DemoFamilyID, ActorID: DemoPartner})
	require.NoError(t, err)
	assert.Len(t, goals, 2)
}

func TestResolveFamily(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := ResolveFamily(ctx, e.Repo, "", "alice")
	require.Error(t, err)

	f, err := e.CreateFamily(ctx, engine.FamilyCreateOptions{ID: "fam-1", Name: "Karimovs", ActorID: "alice"})
	require.NoError(t, err)

	got, err := ResolveFamily(ctx, e.Repo, "", "alice")
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)

	got, err = ResolveFamily(ctx, e.Repo, "Karimovs", "")
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)

	_, err = ResolveFamily(ctx, e.Repo, "nobody", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnvFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, LoadEnv(ws), "missing .env is fine")
	require.NoError(t, SetEnvValue(ws, "ACCORD_FAMILY", "fam-1"))
	require.NoError(t, SetEnvValue(ws, "ACCORD_ACTOR_ID", "alice"))
	require.NoError(t, SetEnvValue(ws, "ACCORD_FAMILY", "fam-2"))

	t.Setenv("ACCORD_ACTOR_ID", "preset")
	t.Setenv("ACCORD_FAMILY", "")
	os.Unsetenv("ACCORD_FAMILY")
	require.NoError(t, LoadEnv(ws))
	assert.Equal(t, "fam-2", os.Getenv("ACCORD_FAMILY"))
	assert.Equal(t, "preset", os.Getenv("ACCORD_ACTOR_ID"), "existing variables win")
}
