// Package analyzer supervises analyzer subprocesses and multiplexes requests over their stdio stream.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/clock"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey   = "analyzer"
	_configKey = "analyzer"

	_defaultRequestTimeout        = 30 * time.Second
	_defaultLateResponseRetention = time.Minute
	_defaultShutdownTimeout       = 5 * time.Second
)

// Module provides the session Factory and the subprocess Launcher.
var Module = fx.Options(
	fx.Provide(NewLauncher),
	fx.Provide(New),
)

// Config holds the analyzer settings shared by all projects.
type Config struct {
	Command               string        `yaml:"command"`
	Args                  []string      `yaml:"args"`
	RequestTimeout        time.Duration `yaml:"requestTimeout"`
	LateResponseRetention time.Duration `yaml:"lateResponseRetention"`
	ShutdownTimeout       time.Duration `yaml:"shutdownTimeout"`
}

// LoadConfig reads the analyzer settings, filling in defaults for unset durations.
func LoadConfig(cfg config.Provider) (Config, error) {
	var c Config
	if err := cfg.Get(_configKey).Populate(&c); err != nil {
		return Config{}, fmt.Errorf("getting %q config: %w", _configKey, err)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = _defaultRequestTimeout
	}
	if c.LateResponseRetention <= 0 {
		c.LateResponseRetention = _defaultLateResponseRetention
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = _defaultShutdownTimeout
	}
	return c, nil
}

// Factory starts analyzer sessions.
type Factory interface {
	// Start launches the project's analyzer and begins the initialize handshake in the background.
	// It fails with a SpawnFailedError when the analyzer cannot be run.
	Start(ctx context.Context, project entity.Project) (Session, error)
}

// Params are the dependencies of the Factory.
type Params struct {
	fx.In

	Config   config.Provider
	Logger   *zap.SugaredLogger
	Stats    tally.Scope
	Clock    clock.Clock
	Launcher Launcher
}

type factory struct {
	cfg      Config
	logger   *zap.SugaredLogger
	stats    tally.Scope
	clock    clock.Clock
	launcher Launcher
}

// New creates a Factory.
func New(p Params) (Factory, error) {
	cfg, err := LoadConfig(p.Config)
	if err != nil {
		return nil, err
	}
	return &factory{
		cfg:      cfg,
		logger:   p.Logger.With("component", _nameKey),
		stats:    p.Stats.SubScope(_nameKey),
		clock:    p.Clock,
		launcher: p.Launcher,
	}, nil
}

func (f *factory) Start(ctx context.Context, project entity.Project) (Session, error) {
	proc, err := f.launcher.Launch(project)
	if err != nil {
		f.stats.Counter("spawn_failures").Inc(1)
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		proc.Kill()
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	s := newSession(id, project, proc, f.cfg, f.logger, f.stats, f.clock)
	s.run()
	f.stats.Counter("spawns").Inc(1)
	f.logger.Infow("started analyzer", "project", project.Root, "session", id.String(), "command", project.Analyzer.Command)
	return s, nil
}
