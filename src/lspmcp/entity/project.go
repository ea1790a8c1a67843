// Package entity contains the domain types shared by the lsp-mcp bridge.
package entity

import (
	"path/filepath"
	"strings"

	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"go.lsp.dev/uri"
)

// ProjectsConfigKey is the key that lists the bridged projects.
const ProjectsConfigKey = "projects"

// Project is a root directory bridged to the assistant. Its identity is the canonical absolute Root.
type Project struct {
	Root         string         `json:"root" zap:"root"`
	Exclude      []string       `json:"exclude,omitempty" zap:"-"`
	IgnoreCrates []string       `json:"ignoreCrates,omitempty" zap:"-"`
	Analyzer     AnalyzerConfig `json:"analyzer" zap:"-"`
	Check        CheckConfig    `json:"check" zap:"-"`
}

// ProjectConfig is a single entry of the "projects" configuration list,
// also used for the optional override file at the project root.
type ProjectConfig struct {
	Root         string         `yaml:"root"`
	Exclude      []string       `yaml:"exclude"`
	IgnoreCrates []string       `yaml:"ignoreCrates"`
	Analyzer     AnalyzerConfig `yaml:"analyzer"`
	Check        CheckConfig    `yaml:"check"`
}

// AnalyzerConfig describes how to launch the analysis server for a project.
type AnalyzerConfig struct {
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args,omitempty"`
	Env     []string `yaml:"env" json:"-"`
}

// CheckConfig describes the command run by the check tool.
type CheckConfig struct {
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args,omitempty"`
}

// IsZero reports whether no command was configured.
func (a AnalyzerConfig) IsZero() bool { return a.Command == "" }

// IsZero reports whether no command was configured.
func (c CheckConfig) IsZero() bool { return c.Command == "" }

// URI returns the file URI of the project root.
func (p Project) URI() uri.URI {
	return uri.File(p.Root)
}

// Name returns the last path element of the root.
func (p Project) Name() string {
	return filepath.Base(p.Root)
}

// Contains reports whether the absolute path lies inside the project root.
func (p Project) Contains(absolutePath string) bool {
	_, err := p.RelativePath(absolutePath)
	return err == nil
}

// RelativePath returns the path relative to the project root.
// It fails when the path is not within the project root.
func (p Project) RelativePath(absolutePath string) (string, error) {
	clean := filepath.Clean(absolutePath)
	rel, err := filepath.Rel(p.Root, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", &bridgeerrors.OutsideProjectError{Path: absolutePath, Root: p.Root}
	}
	if rel == "." {
		return "", nil
	}
	return rel, nil
}

// AbsolutePath resolves a path given by a caller against the project root.
// Absolute paths are returned cleaned; relative paths are joined to the root.
func (p Project) AbsolutePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.Root, path)
}
