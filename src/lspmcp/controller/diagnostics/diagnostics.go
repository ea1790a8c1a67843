package diagnostics

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/clock"
	"github.com/uber/lsp-mcp/src/lspmcp/mapper"
	"github.com/uber/lsp-mcp/src/lspmcp/repository/project"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _nameKey = "diagnostics"

// Controller keeps the latest diagnostic set published by each project's analyzer.
type Controller interface {
	// Record replaces the stored set for the document. Identical input leaves the state unchanged.
	Record(root string, set entity.DiagnosticSet)
	// Get returns the stored set for the document, if the analyzer has published one.
	Get(root string, docURI uri.URI) (entity.DiagnosticSet, bool)
	// Await returns the stored set, waiting for the first one to arrive until ctx is done.
	Await(ctx context.Context, root string, docURI uri.URI) (entity.DiagnosticSet, bool)
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Projects project.Repository
	Logger   *zap.SugaredLogger
	Stats    tally.Scope
	Clock    clock.Clock
}

type diagnosticStore map[string]map[uri.URI]entity.DiagnosticSet

type controller struct {
	logger *zap.SugaredLogger
	stats  tally.Scope
	clock  clock.Clock

	mu          sync.RWMutex
	diagnostics diagnosticStore
	waiters     map[string]map[uri.URI][]chan struct{}
}

// New creates the diagnostics controller and subscribes it to every analyzer session.
func New(p Params) Controller {
	c := &controller{
		logger:      p.Logger.With("component", _nameKey),
		stats:       p.Stats.SubScope(_nameKey),
		clock:       p.Clock,
		diagnostics: make(diagnosticStore),
		waiters:     make(map[string]map[uri.URI][]chan struct{}),
	}
	p.Projects.OnSpawn(c.attach)
	p.Projects.OnUnregister(func(_ context.Context, p entity.Project) error {
		c.dispose(p.Root)
		return nil
	})
	return c
}

// attach drops what the previous session published and listens to the new one.
func (c *controller) attach(s analyzer.Session) {
	root := s.Project().Root
	c.dispose(root)
	s.Subscribe(protocol.MethodTextDocumentPublishDiagnostics, func(params json.RawMessage) {
		set, err := mapper.ParamsToDiagnosticSet(params, c.clock.Now())
		if err != nil {
			c.stats.Counter("malformed").Inc(1)
			c.logger.Warnw("dropping malformed diagnostics", "project", root, "session", s.ID().String(), "error", err)
			return
		}
		c.Record(root, set)
	})
}

func (c *controller) Record(root string, set entity.DiagnosticSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.diagnostics[root]; !ok {
		c.diagnostics[root] = make(map[uri.URI]entity.DiagnosticSet)
	}
	c.diagnostics[root][set.URI] = set

	for _, w := range c.waiters[root][set.URI] {
		close(w)
	}
	delete(c.waiters[root], set.URI)

	c.stats.Counter("records").Inc(1)
	c.logger.Debugw("recorded diagnostics", "project", root, "uri", set.URI, "count", len(set.Diagnostics))
}

func (c *controller) Get(root string, docURI uri.URI) (entity.DiagnosticSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.diagnostics[root][docURI]
	return set, ok
}

func (c *controller) Await(ctx context.Context, root string, docURI uri.URI) (entity.DiagnosticSet, bool) {
	c.mu.Lock()
	if set, ok := c.diagnostics[root][docURI]; ok {
		c.mu.Unlock()
		return set, true
	}
	w := make(chan struct{})
	if _, ok := c.waiters[root]; !ok {
		c.waiters[root] = make(map[uri.URI][]chan struct{})
	}
	c.waiters[root][docURI] = append(c.waiters[root][docURI], w)
	c.mu.Unlock()

	select {
	case <-w:
		return c.Get(root, docURI)
	case <-ctx.Done():
		c.forget(root, docURI, w)
		return entity.DiagnosticSet{}, false
	}
}

func (c *controller) forget(root string, docURI uri.URI, w chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.waiters[root][docURI]
	for i, other := range waiters {
		if other == w {
			c.waiters[root][docURI] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(c.waiters[root][docURI]) == 0 {
		delete(c.waiters[root], docURI)
	}
}

// dispose forgets every set stored for the project. Waiters stay registered for the next session.
func (c *controller) dispose(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.diagnostics, root)
}
