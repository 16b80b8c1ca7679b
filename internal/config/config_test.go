package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critpath/internal/criticalpath"
	"github.com/roach88/critpath/internal/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "critpath.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, criticalpath.BackendDefault, cfg.Backend)
	assert.Equal(t, engine.DefaultQueueSize, cfg.QueueSize)
	assert.Empty(t, cfg.ClientID)
	assert.Empty(t, cfg.Target)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
build:
  critical_path_backend: longest-path-graph
  target: root//:step_3
client:
  id: myclient
engine:
  queue_size: 16
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, criticalpath.BackendLongestPathGraph, cfg.Backend)
	assert.Equal(t, "root//:step_3", cfg.Target)
	assert.Equal(t, "myclient", cfg.ClientID)
	assert.Equal(t, 16, cfg.QueueSize)
	assert.Len(t, cfg.EngineOptions(), 3)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""), nil)
	require.NoError(t, err)
	assert.Equal(t, criticalpath.BackendDefault, cfg.Backend)
}

func TestLoad_OverridesWin(t *testing.T) {
	path := writeConfig(t, "client:\n  id: from-file\n")
	cfg, err := Load(path, []string{"client.id=myclient", "build.critical_path_backend = default"})
	require.NoError(t, err)
	assert.Equal(t, "myclient", cfg.ClientID)
	assert.Equal(t, criticalpath.BackendDefault, cfg.Backend)
}

func TestLoad_LegacyBackendKey(t *testing.T) {
	cfg, err := Load("", []string{"buck2.critical_path_backend2=longest-path-graph"})
	require.NoError(t, err)
	assert.Equal(t, criticalpath.BackendLongestPathGraph, cfg.Backend)
	assert.Equal(t, "longest-path-graph", cfg.Settings.Get(KeyBackend))

	path := writeConfig(t, "buck2:\n  critical_path_backend2: longest-path-graph\n")
	cfg, err = Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, criticalpath.BackendLongestPathGraph, cfg.Backend)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		overrides []string
	}{
		{"unknown backend", "", []string{"build.critical_path_backend=fastest"}},
		{"unknown section", "", []string{"cache.dir=/tmp"}},
		{"unknown key", "", []string{"build.jobs=4"}},
		{"override without value", "", []string{"client.id"}},
		{"override without section", "", []string{"id=x"}},
		{"bad queue size", "", []string{"engine.queue_size=0"}},
		{"non-numeric queue size", "", []string{"engine.queue_size=many"}},
		{"malformed yaml", "build: [oops", nil},
		{"scalar section", "build: longest-path-graph\n", nil},
		{"nested value", "build:\n  target:\n    a: b\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			_, err := Load(path, tt.overrides)
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "got %T: %v", err, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseOverride(t *testing.T) {
	key, value, err := ParseOverride("client.id=a=b")
	require.NoError(t, err)
	assert.Equal(t, "client.id", key)
	assert.Equal(t, "a=b", value)

	_, _, err = ParseOverride("=x")
	assert.Error(t, err)
}

func TestSettings_Keys(t *testing.T) {
	s := Settings{}
	require.NoError(t, s.Set("client.id", "c"))
	require.NoError(t, s.Set("build.target", "t"))
	assert.Equal(t, []string{"build.target", "client.id"}, s.Keys())
	assert.Equal(t, "", s.Get("engine.queue_size"))
	assert.Error(t, s.Set("a.b.c", "x"))
}
