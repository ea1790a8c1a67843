// Package watcher forwards external file changes under each project root to the document store.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/controller/documents"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/clock"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs"
	"github.com/uber/lsp-mcp/src/lspmcp/repository/project"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	_nameKey       = "watcher"
	_configKey     = "watcher"
	_gitignoreName = ".gitignore"

	_defaultDebounce = 200 * time.Millisecond
)

var _alwaysIgnored = []string{".git/"}

// Config controls event coalescing and which paths are ignored.
type Config struct {
	Debounce     time.Duration `yaml:"debounce"`
	Exclude      []string      `yaml:"exclude"`
	UseGitignore bool          `yaml:"useGitignore"`
}

// Controller watches every registered project root.
type Controller interface {
	// Degraded reports whether changes under the project root may go unnoticed.
	Degraded(root string) bool
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Projects  project.Repository
	Documents documents.Controller
	FS        fs.BridgeFS
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Clock     clock.Clock
}

type watch struct {
	project entity.Project
	rules   *ignore.GitIgnore
	fsw     *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
}

type controller struct {
	cfg       Config
	projects  project.Repository
	documents documents.Controller
	fs        fs.BridgeFS
	logger    *zap.SugaredLogger
	stats     tally.Scope
	clock     clock.Clock

	newWatcher func() (*fsnotify.Watcher, error)

	mu       sync.Mutex
	watches  map[string]*watch
	degraded map[string]bool
	pending  map[string]*pendingChange
}

// LoadConfig reads the watcher configuration and fills in defaults.
func LoadConfig(cfg config.Provider) (Config, error) {
	c := Config{UseGitignore: true}
	if err := cfg.Get(_configKey).Populate(&c); err != nil {
		return Config{}, fmt.Errorf("getting %q config: %w", _configKey, err)
	}
	if c.Debounce <= 0 {
		c.Debounce = _defaultDebounce
	}
	return c, nil
}

// New creates the watcher. Roots are watched once the application starts.
func New(p Params) (Controller, error) {
	cfg, err := LoadConfig(p.Config)
	if err != nil {
		return nil, err
	}
	c := &controller{
		cfg:        cfg,
		projects:   p.Projects,
		documents:  p.Documents,
		fs:         p.FS,
		logger:     p.Logger.With("component", _nameKey),
		stats:      p.Stats.SubScope(_nameKey),
		clock:      p.Clock,
		newWatcher: fsnotify.NewWatcher,
		watches:    make(map[string]*watch),
		degraded:   make(map[string]bool),
		pending:    make(map[string]*pendingChange),
	}
	p.Projects.OnUnregister(func(_ context.Context, p entity.Project) error {
		return c.unwatch(p.Root)
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.start()
			return nil
		},
		OnStop: func(context.Context) error {
			return c.stop()
		},
	})
	return c, nil
}

// start watches every project in parallel. A root that cannot be watched degrades only its project.
func (c *controller) start() {
	var g errgroup.Group
	for _, p := range c.projects.Projects() {
		p := p
		g.Go(func() error {
			c.watch(p)
			return nil
		})
	}
	g.Wait()
}

func (c *controller) watch(p entity.Project) {
	fsw, err := c.newWatcher()
	if err != nil {
		c.degrade(p.Root, fmt.Errorf("creating watcher: %w", err))
		return
	}
	w := &watch{
		project: p,
		rules:   c.rules(p),
		fsw:     fsw,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if err := fsw.Add(p.Root); err != nil {
		fsw.Close()
		c.degrade(p.Root, fmt.Errorf("watching %s: %w", p.Root, err))
		return
	}
	c.addTree(w, p.Root)

	c.mu.Lock()
	c.watches[p.Root] = w
	c.mu.Unlock()

	go c.run(w)
	c.logger.Infow("watching project", "project", p.Root)
}

// addTree watches every directory below dir that is not ignored.
func (c *controller) addTree(w *watch, dir string) {
	entries, err := c.fs.ReadDir(dir)
	if err != nil {
		c.degrade(w.project.Root, fmt.Errorf("listing %s: %w", dir, err))
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		if w.ignoresDir(sub) {
			continue
		}
		if err := w.fsw.Add(sub); err != nil {
			c.degrade(w.project.Root, fmt.Errorf("watching %s: %w", sub, err))
			continue
		}
		c.addTree(w, sub)
	}
}

func (c *controller) run(w *watch) {
	defer close(w.stopped)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			c.handle(w, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				c.stats.Counter("overflows").Inc(1)
				c.logger.Warnw("watch events were dropped", "project", w.project.Root)
				continue
			}
			c.degrade(w.project.Root, err)
		case <-w.done:
			return
		}
	}
}

func (c *controller) handle(w *watch, event fsnotify.Event) {
	rel, err := w.project.RelativePath(event.Name)
	if err != nil {
		return
	}
	if rel == "" {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			c.degrade(w.project.Root, fmt.Errorf("project root %s was removed", w.project.Root))
		}
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := c.fs.Stat(event.Name); err == nil && info.IsDir() {
			if !w.ignoresDir(event.Name) {
				if err := w.fsw.Add(event.Name); err != nil {
					c.degrade(w.project.Root, fmt.Errorf("watching %s: %w", event.Name, err))
					return
				}
				c.addTree(w, event.Name)
			}
			return
		}
	}

	if w.ignores(rel) {
		c.stats.Counter("ignored").Inc(1)
		return
	}

	change, ok := changeType(event)
	if !ok {
		return
	}
	c.debounce(w.project, event.Name, change)
}

func (c *controller) Degraded(root string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded[root]
}

// degrade marks the project as partially watched. Only the first failure is reported.
func (c *controller) degrade(root string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded[root] {
		return
	}
	c.degraded[root] = true
	c.stats.Counter("degraded").Inc(1)
	c.logger.Warnw("project is not fully watched, external changes may be missed", "project", root, "error", err)
}

func (c *controller) unwatch(root string) error {
	c.mu.Lock()
	w, ok := c.watches[root]
	delete(c.watches, root)
	for path, pc := range c.pending {
		if pc.project.Root == root {
			pc.timer.Stop()
			delete(c.pending, path)
		}
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	close(w.done)
	err := w.fsw.Close()
	<-w.stopped
	return err
}

func (c *controller) stop() error {
	c.mu.Lock()
	roots := make([]string, 0, len(c.watches))
	for root := range c.watches {
		roots = append(roots, root)
	}
	c.mu.Unlock()

	var err error
	for _, root := range roots {
		err = multierr.Append(err, c.unwatch(root))
	}
	return err
}

// rules compiles the ignore patterns of a project from its .gitignore and the configured exclusions.
func (c *controller) rules(p entity.Project) *ignore.GitIgnore {
	lines := append([]string{}, _alwaysIgnored...)
	if c.cfg.UseGitignore {
		path := filepath.Join(p.Root, _gitignoreName)
		if exists, _ := c.fs.FileExists(path); exists {
			data, err := c.fs.ReadFile(path)
			if err != nil {
				c.logger.Warnw("failed to read ignore file", "project", p.Root, "error", err)
			} else {
				lines = append(lines, strings.Split(string(data), "\n")...)
			}
		}
	}
	lines = append(lines, c.cfg.Exclude...)
	lines = append(lines, p.Exclude...)
	lines = append(lines, p.IgnoreCrates...)
	return ignore.CompileIgnoreLines(lines...)
}

func (w *watch) ignores(rel string) bool {
	return w.rules.MatchesPath(filepath.ToSlash(rel))
}

func (w *watch) ignoresDir(abs string) bool {
	rel, err := w.project.RelativePath(abs)
	if err != nil {
		return true
	}
	return w.ignores(rel + "/")
}
