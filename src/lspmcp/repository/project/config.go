package project

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs"
	"go.uber.org/config"
	"gopkg.in/yaml.v3"
)

const (
	// OverrideFileName is the optional per-project settings file at a project root.
	OverrideFileName = ".lsp-mcp.yaml"

	_respawnConfigKey = "analyzer.respawn"
	_checkConfigKey   = "check"

	_defaultAnalyzerCommand = "rust-analyzer"
	_defaultCheckCommand    = "cargo"
	_defaultRespawnInterval = 10 * time.Second
	_defaultRespawnBurst    = 3
)

var _defaultCheckArgs = []string{"check", "--message-format=short"}

// RespawnConfig bounds how often a crashed analyzer is restarted.
// Burst restarts are allowed at once, refilled at one per Interval.
type RespawnConfig struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

func loadRespawnConfig(cfg config.Provider) (RespawnConfig, error) {
	var c RespawnConfig
	if err := cfg.Get(_respawnConfigKey).Populate(&c); err != nil {
		return RespawnConfig{}, fmt.Errorf("getting %q config: %w", _respawnConfigKey, err)
	}
	if c.Interval <= 0 {
		c.Interval = _defaultRespawnInterval
	}
	if c.Burst <= 0 {
		c.Burst = _defaultRespawnBurst
	}
	return c, nil
}

// loadProjects builds the canonical project list from configuration and each root's override file.
// Projects sharing a canonical root are merged into the first one listed.
func loadProjects(cfg config.Provider, fileSystem fs.BridgeFS) ([]entity.Project, error) {
	var entries []entity.ProjectConfig
	if err := cfg.Get(entity.ProjectsConfigKey).Populate(&entries); err != nil {
		return nil, fmt.Errorf("getting %q config: %w", entity.ProjectsConfigKey, err)
	}

	analyzerCfg, err := analyzer.LoadConfig(cfg)
	if err != nil {
		return nil, err
	}
	defaultAnalyzer := entity.AnalyzerConfig{Command: analyzerCfg.Command, Args: analyzerCfg.Args}
	if defaultAnalyzer.IsZero() {
		defaultAnalyzer.Command = _defaultAnalyzerCommand
	}

	var defaultCheck entity.CheckConfig
	if err := cfg.Get(_checkConfigKey).Populate(&defaultCheck); err != nil {
		return nil, fmt.Errorf("getting %q config: %w", _checkConfigKey, err)
	}
	if defaultCheck.IsZero() {
		defaultCheck = entity.CheckConfig{Command: _defaultCheckCommand, Args: _defaultCheckArgs}
	}

	seen := make(map[string]bool)
	var projects []entity.Project
	for _, entry := range entries {
		if entry.Root == "" {
			return nil, fmt.Errorf("project entry without root")
		}
		root, err := fileSystem.Canonicalize(entry.Root)
		if err != nil {
			return nil, fmt.Errorf("project root %q: %w", entry.Root, err)
		}
		if seen[root] {
			continue
		}
		seen[root] = true

		override, err := readOverride(fileSystem, root)
		if err != nil {
			return nil, err
		}
		projects = append(projects, merge(root, defaultAnalyzer, defaultCheck, entry, override))
	}

	sortProjects(projects)
	return projects, nil
}

func sortProjects(projects []entity.Project) {
	sort.Slice(projects, func(i, j int) bool { return projects[i].Root < projects[j].Root })
}

func readOverride(fileSystem fs.BridgeFS, root string) (entity.ProjectConfig, error) {
	path := filepath.Join(root, OverrideFileName)
	exists, err := fileSystem.FileExists(path)
	if err != nil || !exists {
		return entity.ProjectConfig{}, err
	}

	data, err := fileSystem.ReadFile(path)
	if err != nil {
		return entity.ProjectConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var override entity.ProjectConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return entity.ProjectConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return override, nil
}

// merge layers the defaults, the configured entry and the override file, in increasing precedence.
// Exclusion lists accumulate instead of replacing each other.
func merge(root string, analyzerCfg entity.AnalyzerConfig, check entity.CheckConfig, layers ...entity.ProjectConfig) entity.Project {
	p := entity.Project{Root: root, Analyzer: analyzerCfg, Check: check}
	for _, l := range layers {
		p.Exclude = append(p.Exclude, l.Exclude...)
		p.IgnoreCrates = append(p.IgnoreCrates, l.IgnoreCrates...)
		if !l.Analyzer.IsZero() {
			p.Analyzer = l.Analyzer
		}
		if !l.Check.IsZero() {
			p.Check = l.Check
		}
	}
	return p
}
