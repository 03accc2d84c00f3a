package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestManagerInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	writeConfig(t, path, "server:\n  port: 9100\n")
	t.Setenv("CONFIG_PATH", path)

	m, err := NewManager(zap.NewNop())
	require.NoError(t, err)
	defer m.Stop()

	assert.Equal(t, 9100, m.Current().Server.Port)
}

func TestManagerHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	writeConfig(t, path, "server:\n  port: 9100\n")
	t.Setenv("CONFIG_PATH", path)

	m, err := NewManager(zap.NewNop())
	require.NoError(t, err)
	defer m.Stop()

	changed := make(chan *Config, 1)
	m.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	require.NoError(t, m.Start(context.Background()))

	writeConfig(t, path, "server:\n  port: 9200\n")

	select {
	case cfg := <-changed:
		assert.Equal(t, 9200, cfg.Server.Port)
		assert.Equal(t, 9200, m.Current().Server.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestManagerKeepsPreviousConfigOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	writeConfig(t, path, "server:\n  port: 9100\n")
	t.Setenv("CONFIG_PATH", path)

	m, err := NewManager(zap.NewNop())
	require.NoError(t, err)
	defer m.Stop()
	require.NoError(t, m.Start(context.Background()))

	writeConfig(t, path, "server: [broken")

	// The malformed file is rejected and the last good config stays.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 9100, m.Current().Server.Port)
}
