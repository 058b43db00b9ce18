package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accord/internal/app"
	"accord/internal/config"
	"accord/internal/db"
	"accord/internal/domain"
	"accord/internal/engine"
	"accord/internal/repo"
)

var setupOnce sync.Once

func run(t *testing.T, workspace string, args ...string) error {
	t.Helper()
	setupOnce.Do(func() {
		initConfig()
		addPersistentFlags()
		registerCommands()
	})
	viper.Set("json", true)
	rootCmd.SetArgs(append([]string{"--workspace", workspace}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

func TestSeedResolveFlow(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("ACCORD_FAMILY", "")
	require.NoError(t, run(t, ws, "family", "seed", "--with-goals"))
	require.NoError(t, run(t, ws, "family", "use", app.DemoFamilyID))

	conn, err := db.Open(db.Config{Workspace: ws})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	e := engine.New(conn, config.Default())
	conflicts, err := e.Repo.ListConflicts(context.Background(), repo.ConflictFilters{FamilyID: app.DemoFamilyID})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	require.NoError(t, run(t, ws, "--actor-id", app.DemoAdult, "conflict", "resolve", conflicts[0].ID,
		"--strategy", "SEQUENCE", "--cost", "Samarkand waits a year", "--compensation", "summer there"))

	c, err := e.Repo.GetConflict(context.Background(), conflicts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConflictResolved, c.Status)
	agreements, err := e.Repo.ListAgreements(context.Background(), app.DemoFamilyID)
	require.NoError(t, err)
	assert.Len(t, agreements, 1)

	data, err := os.ReadFile(filepath.Join(ws, ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ACCORD_FAMILY")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, run(t, ws, "config", "init"))
	_, err := os.Stat(config.Path(ws))
	require.NoError(t, err)
	assert.Error(t, run(t, ws, "config", "init"))
	require.NoError(t, run(t, ws, "config", "validate"))
}

func TestServeRequiresSecret(t *testing.T) {
	t.Setenv("ACCORD_JWT_SECRET", "")
	err := run(t, t.TempDir(), "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCORD_JWT_SECRET")
}
