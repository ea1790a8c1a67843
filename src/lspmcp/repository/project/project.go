// Package project keeps the registry of bridged projects and their analyzer sessions.
package project

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const _nameKey = "projects"

// Module provides the project Repository.
var Module = fx.Provide(New)

// SpawnHook runs for every new session before it is handed to any caller.
type SpawnHook func(s analyzer.Session)

// UnregisterHook runs when a project is torn down, before its session is shut down.
type UnregisterHook func(ctx context.Context, p entity.Project) error

// Repository holds the bridged projects. Each project has at most one live analyzer session.
type Repository interface {
	// Projects returns the registered projects ordered by root.
	Projects() []entity.Project
	// Resolve returns the project with the longest root containing path.
	// A relative path is accepted when exactly one project is registered.
	Resolve(path string) (entity.Project, error)
	// Session returns the live session of the project, starting one if there is none.
	// Concurrent callers share a single start.
	Session(ctx context.Context, root string) (analyzer.Session, error)
	// Current returns the live session of the project without starting one.
	Current(root string) (analyzer.Session, bool)
	// OnSpawn registers a hook for new sessions.
	OnSpawn(hook SpawnHook)
	// OnUnregister registers a hook for project teardown.
	OnUnregister(hook UnregisterHook)
	// Unregister tears the project down and shuts its session down.
	Unregister(ctx context.Context, root string) error
}

// Params are the dependencies of the Repository.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	FS        fs.BridgeFS
	Factory   analyzer.Factory
}

// handle supervises the single session of one project.
type handle struct {
	project entity.Project
	limiter *rate.Limiter

	mu       sync.Mutex
	session  analyzer.Session
	spawnErr error
	// closing is set once teardown starts. No session is started after it.
	closing bool
}

func (h *handle) live() analyzer.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session != nil && h.session.Err() == nil {
		return h.session
	}
	return nil
}

type repository struct {
	factory analyzer.Factory
	logger  *zap.SugaredLogger
	stats   tally.Scope
	respawn RespawnConfig

	group singleflight.Group

	mu           sync.RWMutex
	handles      map[string]*handle
	spawnHooks   []SpawnHook
	unregisterFn []UnregisterHook
}

// New loads the configured projects. It fails when none are configured.
func New(p Params) (Repository, error) {
	projects, err := loadProjects(p.Config, p.FS)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, bridgeerrors.ErrNoProjects
	}
	respawn, err := loadRespawnConfig(p.Config)
	if err != nil {
		return nil, err
	}

	r := newRepository(projects, respawn, p.Factory, p.Logger, p.Stats)
	p.Lifecycle.Append(fx.Hook{
		OnStop: r.shutdownAll,
	})
	return r, nil
}

func newRepository(projects []entity.Project, respawn RespawnConfig, factory analyzer.Factory, logger *zap.SugaredLogger, stats tally.Scope) *repository {
	r := &repository{
		factory: factory,
		logger:  logger.With("component", _nameKey),
		stats:   stats.SubScope(_nameKey),
		respawn: respawn,
		handles: make(map[string]*handle, len(projects)),
	}
	for _, project := range projects {
		r.handles[project.Root] = &handle{
			project: project,
			limiter: rate.NewLimiter(rate.Every(respawn.Interval), respawn.Burst),
		}
		r.logger.Infow("registered project", "root", project.Root, "analyzer", project.Analyzer.Command)
	}
	r.stats.Gauge("registered").Update(float64(len(r.handles)))
	return r
}

func (r *repository) Projects() []entity.Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	projects := make([]entity.Project, 0, len(r.handles))
	for _, h := range r.handles {
		projects = append(projects, h.project)
	}
	sortProjects(projects)
	return projects
}

func (r *repository) Resolve(path string) (entity.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !filepath.IsAbs(path) {
		if len(r.handles) != 1 {
			return entity.Project{}, &bridgeerrors.ProjectNotFoundError{Path: path}
		}
		for _, h := range r.handles {
			path = h.project.AbsolutePath(path)
		}
	}

	var (
		best  entity.Project
		found bool
	)
	for _, h := range r.handles {
		if h.project.Contains(path) && len(h.project.Root) > len(best.Root) {
			best, found = h.project, true
		}
	}
	if !found {
		return entity.Project{}, &bridgeerrors.ProjectNotFoundError{Path: path}
	}
	return best, nil
}

func (r *repository) handle(root string) (*handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[root]
	if !ok {
		return nil, &bridgeerrors.ProjectNotFoundError{Path: root}
	}
	return h, nil
}

func (r *repository) Current(root string) (analyzer.Session, bool) {
	h, err := r.handle(root)
	if err != nil {
		return nil, false
	}
	s := h.live()
	return s, s != nil
}

func (r *repository) Session(ctx context.Context, root string) (analyzer.Session, error) {
	h, err := r.handle(root)
	if err != nil {
		return nil, err
	}
	if s := h.live(); s != nil {
		return s, nil
	}

	result := r.group.DoChan(root, func() (interface{}, error) {
		return r.spawn(h)
	})
	select {
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(analyzer.Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// spawn starts a replacement session. A spawn failure sticks to the project: the analyzer is not retried.
func (r *repository) spawn(h *handle) (analyzer.Session, error) {
	if s := h.live(); s != nil {
		return s, nil
	}

	h.mu.Lock()
	spawnErr, previous, closing := h.spawnErr, h.session, h.closing
	h.mu.Unlock()
	if closing {
		return nil, &bridgeerrors.SessionDeadError{Project: h.project.Root, Reason: bridgeerrors.ErrSessionClosed}
	}
	if spawnErr != nil {
		return nil, spawnErr
	}
	if !h.limiter.Allow() {
		r.stats.Counter("respawn_throttled").Inc(1)
		return nil, &bridgeerrors.SessionDeadError{
			Project: h.project.Root,
			Reason:  fmt.Errorf("analyzer restarted too often, next restart allowed within %v", r.respawn.Interval),
		}
	}

	s, err := r.factory.Start(context.Background(), h.project)
	if err != nil {
		if bridgeerrors.IsSpawnFailed(err) {
			h.mu.Lock()
			h.spawnErr = err
			h.mu.Unlock()
		}
		r.logger.Errorw("failed to start analyzer", "project", h.project.Root, "error", err)
		return nil, err
	}

	if previous != nil {
		r.stats.Counter("respawns").Inc(1)
		r.logger.Infow("respawned analyzer", "project", h.project.Root, "previous", previous.ID().String(), "reason", previous.Err())
	}

	r.mu.RLock()
	hooks := append([]SpawnHook(nil), r.spawnHooks...)
	r.mu.RUnlock()
	for _, hook := range hooks {
		hook(s)
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		if err := s.Shutdown(context.Background()); err != nil {
			r.logger.Warnw("failed to shut down analyzer started during teardown", "project", h.project.Root, "error", err)
		}
		return nil, &bridgeerrors.SessionDeadError{Project: h.project.Root, Reason: bridgeerrors.ErrSessionClosed}
	}
	h.session = s
	h.mu.Unlock()
	return s, nil
}

func (r *repository) OnSpawn(hook SpawnHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawnHooks = append(r.spawnHooks, hook)
}

func (r *repository) OnUnregister(hook UnregisterHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterFn = append(r.unregisterFn, hook)
}

// Unregister runs the hooks while the project is still registered, so they can reach its
// session through Current. The project is removed and its session shut down afterwards.
func (r *repository) Unregister(ctx context.Context, root string) error {
	h, err := r.handle(root)
	if err != nil {
		return err
	}
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return &bridgeerrors.ProjectNotFoundError{Path: root}
	}
	h.closing = true
	h.mu.Unlock()

	r.mu.RLock()
	hooks := append([]UnregisterHook(nil), r.unregisterFn...)
	r.mu.RUnlock()
	for _, hook := range hooks {
		err = multierr.Append(err, hook(ctx, h.project))
	}

	r.mu.Lock()
	delete(r.handles, root)
	r.stats.Gauge("registered").Update(float64(len(r.handles)))
	r.mu.Unlock()

	h.mu.Lock()
	s := h.session
	h.session = nil
	h.mu.Unlock()
	if s != nil {
		err = multierr.Append(err, s.Shutdown(ctx))
	}
	r.logger.Infow("unregistered project", "root", root)
	return err
}

// shutdownAll unregisters every project in parallel.
func (r *repository) shutdownAll(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for _, p := range r.Projects() {
		root := p.Root
		g.Go(func() error {
			if err := r.Unregister(ctx, root); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("shutting down %s: %w", root, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errs
}
