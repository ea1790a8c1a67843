package core

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
)

func TestNewSugaredLogger(t *testing.T) {
	tests := []struct {
		name          string
		loggingConfig string
		expectError   bool
	}{
		{
			name: "info level json encoding",
			loggingConfig: `
logging:
  level: info
  development: false
  encoding: json
  outputPaths:
    - stderr
`,
		},
		{
			name: "debug level console encoding",
			loggingConfig: `
logging:
  level: debug
  development: true
  encoding: console
`,
		},
		{
			name: "invalid level",
			loggingConfig: `
logging:
  level: invalid
`,
			expectError: true,
		},
		{
			name: "unreachable output",
			loggingConfig: `
logging:
  level: info
  outputPaths:
    - /nonexistent/dir/for/sure/out.log
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := config.NewYAML(config.Source(strings.NewReader(tt.loggingConfig)))
			require.NoError(t, err)

			lc := fxtest.NewLifecycle(t)
			sugared, err := NewSugaredLogger(LoggerParams{Config: provider, Lifecycle: lc})
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger := NewLogger(sugared)
			require.NotNil(t, logger)
			logger.Info("test message")
			lc.RequireStart().RequireStop()
		})
	}
}

func TestNewSugaredLogger_FileOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bridge.log")
	provider, err := config.NewStaticProvider(map[string]interface{}{
		"logging": map[string]interface{}{
			"level":       "debug",
			"encoding":    "json",
			"outputPaths": []string{out},
		},
	})
	require.NoError(t, err)

	logger, err := NewSugaredLogger(LoggerParams{Config: provider})
	require.NoError(t, err)
	logger.Infow("structured message", "project", "/repo")
	require.NoError(t, logger.Sync())
	assert.FileExists(t, out)
}
