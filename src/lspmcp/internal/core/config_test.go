package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDir(t *testing.T) {
	tempDir := t.TempDir()

	meta := "files:\n  - base.yaml\n  - development.yaml\n  - local.yaml\n"
	base := `service:
  name: lsp-mcp
logging:
  level: info
analyzer:
  command: ${TEST_ANALYZER:rust-analyzer}
`
	dev := `logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "meta.yaml"), []byte(meta), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "base.yaml"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "development.yaml"), []byte(dev), 0o644))

	provider, err := LoadDir(tempDir)
	require.NoError(t, err)

	cfg := provider.(Config)
	assert.Equal(t, "config", cfg.Name())
	assert.Equal(t, "lsp-mcp", cfg.Get("service.name").String())
	assert.Equal(t, "debug", cfg.Get("logging.level").String())
	assert.Equal(t, "rust-analyzer", cfg.Get("analyzer.command").String())
	assert.False(t, cfg.Get("nonexistent.path").HasValue())
}

func TestLoadDir_EnvExpansion(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "meta.yaml"), []byte("files: [base.yaml]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "base.yaml"), []byte("analyzer:\n  command: ${TEST_ANALYZER:rust-analyzer}\n"), 0o644))
	t.Setenv("TEST_ANALYZER", "gopls")

	provider, err := LoadDir(tempDir)
	require.NoError(t, err)
	assert.Equal(t, "gopls", provider.Get("analyzer.command").String())
}

func TestLoadDir_Errors(t *testing.T) {
	t.Run("missing meta", func(t *testing.T) {
		_, err := LoadDir(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("no listed file exists", func(t *testing.T) {
		tempDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, "meta.yaml"), []byte("files: [base.yaml]\n"), 0o644))
		_, err := LoadDir(tempDir)
		assert.ErrorContains(t, err, "no configuration files found")
	})
}

func TestConfigDir(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		expected string
	}{
		{
			name:     "returns environment variable when set",
			env:      "/custom/config/path",
			expected: "/custom/config/path",
		},
		{
			name:     "returns default path when environment variable not set",
			expected: _defaultConfigDir,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigDir, tt.env)
			assert.Equal(t, tt.expected, ConfigDir())
		})
	}
}
