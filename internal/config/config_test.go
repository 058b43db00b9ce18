package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 14, cfg.ReviewWindow())
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, Duration(2*time.Second), cfg.Notifications.PollInterval)
	assert.True(t, cfg.Notifications.LogEvents)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
agreements:
  review_window_days: 7
notifications:
  poll_interval: 250ms
  webhooks:
    - url: https://hooks.example.com/accord
      events: [conflict.detected, conflict.resolved]
      secret: s3cret
`))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.ReviewWindow())
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Notifications.PollInterval)
	require.Len(t, cfg.Notifications.Webhooks, 1)
	assert.True(t, cfg.Notifications.Webhooks[0].IsEnabled())
}

func TestValidateRejectsBadWebhooks(t *testing.T) {
	_, err := FromYAML([]byte(`
notifications:
  webhooks:
    - url: ftp://example.com
`))
	assert.Error(t, err)

	_, err = FromYAML([]byte(`
notifications:
  webhooks:
    - url: https://example.com
      events: [task.created]
`))
	assert.ErrorContains(t, err, "unknown event")

	_, err = FromYAML([]byte(`
agreements:
  review_window_days: -1
`))
	assert.Error(t, err)
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.ReviewWindow())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "accord.yml"), []byte("agreements:\n  review_window_days: 30\n"), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.ReviewWindow())

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "not found")
}
