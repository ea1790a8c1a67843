// Package documents keeps the analyzer's view of open files in sync with disk.
package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/clock"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs"
	"github.com/uber/lsp-mcp/src/lspmcp/repository/project"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_nameKey        = "documents"
	_configKey      = "documents"
	_languageIDsKey = "analyzer.languageIDs"

	_defaultMaxFileSizeBytes = 4 << 20
	_defaultSweepInterval    = time.Minute
)

var _defaultLanguageIDs = entity.LanguageIDs{
	".rs":   "rust",
	".toml": "toml",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
}

// Config bounds what the store keeps open.
type Config struct {
	MaxFileSizeBytes int64 `yaml:"maxFileSizeBytes"`
	// IdleTimeout closes documents not referenced for this long. Zero keeps them open.
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// Controller tracks the documents open in each project's analyzer session.
// Mutations of one document are serialized, so versions reach the analyzer in order and without gaps.
type Controller interface {
	// EnsureOpen opens the document with the project's session at version 1, unless it is already open there.
	EnsureOpen(ctx context.Context, p entity.Project, path string) (entity.Document, error)
	// ApplyExternalChange resynchronizes a document after it changed on disk.
	// Open documents get didChange only when their content differs, or didClose when deleted.
	// Other files are reported with didChangeWatchedFiles when the session is live.
	ApplyExternalChange(ctx context.Context, p entity.Project, path string, change protocol.FileChangeType) error
	// ApplyLocalEdit writes new content for the file and advances the open document to it.
	ApplyLocalEdit(ctx context.Context, p entity.Project, path string, text string) (entity.Document, error)
	// Close sends didClose for an open document and stops tracking it.
	Close(ctx context.Context, p entity.Project, path string) error
	// Lines returns the document's lines from the store when it is open, otherwise from disk.
	Lines(p entity.Project, path string) ([]string, error)
	// OpenCount returns how many documents are open in the project's live session.
	OpenCount(root string) int
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Projects  project.Repository
	FS        fs.BridgeFS
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Clock     clock.Clock
}

// entry serializes every mutation of one path. An entry leaves the store when it is released
// without a document, after which removed is set and callers look the path up again.
type entry struct {
	root string
	abs  string

	mu      sync.Mutex
	doc     *entity.Document
	removed bool
}

type controller struct {
	projects    project.Repository
	fs          fs.BridgeFS
	logger      *zap.SugaredLogger
	stats       tally.Scope
	clock       clock.Clock
	cfg         Config
	languageIDs entity.LanguageIDs

	mu        sync.Mutex
	documents map[string]map[string]*entry
	open      atomic.Int64

	sweepMu sync.Mutex
	sweeper clock.Timer
	stopped bool
}

// didChangeParams carries a full-text change. protocol.TextDocumentContentChangeEvent always
// serializes a range, which analyzers read as an incremental edit.
type didChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []fullTextChange                         `json:"contentChanges"`
}

type fullTextChange struct {
	Text string `json:"text"`
}

// LoadConfig reads the store configuration and fills in defaults.
func LoadConfig(cfg config.Provider) (Config, error) {
	var c Config
	if err := cfg.Get(_configKey).Populate(&c); err != nil {
		return Config{}, fmt.Errorf("getting %q config: %w", _configKey, err)
	}
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = _defaultMaxFileSizeBytes
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = _defaultSweepInterval
	}
	return c, nil
}

func loadLanguageIDs(cfg config.Provider) (entity.LanguageIDs, error) {
	configured := make(map[string]string)
	if err := cfg.Get(_languageIDsKey).Populate(&configured); err != nil {
		return nil, fmt.Errorf("getting %q config: %w", _languageIDsKey, err)
	}
	ids := make(entity.LanguageIDs, len(_defaultLanguageIDs)+len(configured))
	for ext, id := range _defaultLanguageIDs {
		ids[ext] = id
	}
	for ext, id := range configured {
		ids[ext] = protocol.LanguageIdentifier(id)
	}
	return ids, nil
}

// New creates the document store and registers its project teardown.
func New(p Params) (Controller, error) {
	cfg, err := LoadConfig(p.Config)
	if err != nil {
		return nil, err
	}
	languageIDs, err := loadLanguageIDs(p.Config)
	if err != nil {
		return nil, err
	}

	c := &controller{
		projects:    p.Projects,
		fs:          p.FS,
		logger:      p.Logger.With("component", _nameKey),
		stats:       p.Stats.SubScope(_nameKey),
		clock:       p.Clock,
		cfg:         cfg,
		languageIDs: languageIDs,
		documents:   make(map[string]map[string]*entry),
	}
	p.Projects.OnUnregister(c.closeProject)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.scheduleSweep()
			return nil
		},
		OnStop: func(context.Context) error {
			c.stopSweep()
			return nil
		},
	})
	return c, nil
}

func (c *controller) EnsureOpen(ctx context.Context, p entity.Project, path string) (entity.Document, error) {
	abs, err := c.resolve(p, path)
	if err != nil {
		return entity.Document{}, err
	}
	s, err := c.projects.Session(ctx, p.Root)
	if err != nil {
		return entity.Document{}, err
	}

	e := c.acquire(p.Root, abs)
	defer c.release(e)

	if e.doc != nil {
		if e.doc.Session == s.ID() {
			e.doc.LastUsed = c.clock.Now()
			return *e.doc, nil
		}
		// Opened in a session that has since been replaced.
		c.drop(e)
	}

	text, exists, err := c.read(abs)
	if err != nil {
		return entity.Document{}, err
	}
	if !exists {
		return entity.Document{}, fmt.Errorf("opening %s: %w", abs, os.ErrNotExist)
	}

	doc := entity.Document{
		Project:    p.Root,
		Path:       abs,
		URI:        uri.File(abs),
		LanguageID: c.languageIDs.For(abs),
		Version:    1,
		Text:       text,
		Session:    s.ID(),
		LastUsed:   c.clock.Now(),
	}
	if err := s.Notify(ctx, protocol.MethodTextDocumentDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        doc.URI,
			LanguageID: doc.LanguageID,
			Version:    doc.Version,
			Text:       doc.Text,
		},
	}); err != nil {
		return entity.Document{}, err
	}

	e.doc = &doc
	c.open.Add(1)
	c.stats.Counter("opens").Inc(1)
	c.stats.Gauge("open").Update(float64(c.open.Load()))
	c.logger.Debugw("opened document", "project", p.Root, "path", abs, "session", s.ID().String())
	return doc, nil
}

func (c *controller) ApplyExternalChange(ctx context.Context, p entity.Project, path string, change protocol.FileChangeType) error {
	abs, err := c.resolve(p, path)
	if err != nil {
		return err
	}

	if e := c.lookup(p.Root, abs); e != nil {
		e.mu.Lock()
		if e.doc != nil {
			defer c.release(e)
			return c.resync(ctx, p, e)
		}
		e.mu.Unlock()
	}

	s, ok := c.projects.Current(p.Root)
	if !ok {
		return nil
	}
	c.stats.Counter("watched_changes").Inc(1)
	return s.Notify(ctx, protocol.MethodWorkspaceDidChangeWatchedFiles, &protocol.DidChangeWatchedFilesParams{
		Changes: []*protocol.FileEvent{{URI: uri.File(abs), Type: change}},
	})
}

// resync brings an open document up to date with disk. Callers hold e.mu.
func (c *controller) resync(ctx context.Context, p entity.Project, e *entry) error {
	s, live := c.liveSession(p.Root, e.doc)
	if !live {
		c.drop(e)
		return nil
	}

	text, exists, err := c.read(e.doc.Path)
	if err != nil && !bridgeerrors.IsDocumentSizeLimit(err) {
		return err
	}
	if !exists || err != nil {
		closeErr := c.sendClose(ctx, s, e)
		c.drop(e)
		return closeErr
	}
	return c.advance(ctx, s, e, text)
}

// advance sends the next version of the document. A failed notification leaves the analyzer's
// view unknown, so the document is dropped and reopened on next use.
func (c *controller) advance(ctx context.Context, s analyzer.Session, e *entry, text string) error {
	if text == e.doc.Text {
		c.stats.Counter("unchanged").Inc(1)
		return nil
	}

	next := *e.doc
	next.Version++
	next.Text = text
	if err := s.Notify(ctx, protocol.MethodTextDocumentDidChange, &didChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: next.Identifier(),
			Version:                next.Version,
		},
		ContentChanges: []fullTextChange{{Text: next.Text}},
	}); err != nil {
		c.drop(e)
		return err
	}

	*e.doc = next
	c.stats.Counter("changes").Inc(1)
	c.logger.Debugw("changed document", "project", next.Project, "path", next.Path, "version", next.Version)
	return nil
}

func (c *controller) ApplyLocalEdit(ctx context.Context, p entity.Project, path string, text string) (entity.Document, error) {
	abs, err := c.resolve(p, path)
	if err != nil {
		return entity.Document{}, err
	}

	e := c.acquire(p.Root, abs)
	defer c.release(e)

	if err := c.fs.WriteFile(abs, []byte(text)); err != nil {
		return entity.Document{}, fmt.Errorf("writing %s: %w", abs, err)
	}
	if e.doc == nil {
		return entity.Document{Project: p.Root, Path: abs, URI: uri.File(abs), Text: text}, nil
	}

	s, live := c.liveSession(p.Root, e.doc)
	if !live {
		c.drop(e)
		return entity.Document{Project: p.Root, Path: abs, URI: uri.File(abs), Text: text}, nil
	}
	if err := c.advance(ctx, s, e, text); err != nil {
		return entity.Document{}, err
	}
	e.doc.LastUsed = c.clock.Now()
	return *e.doc, nil
}

func (c *controller) Close(ctx context.Context, p entity.Project, path string) error {
	abs, err := c.resolve(p, path)
	if err != nil {
		return err
	}
	e := c.lookup(p.Root, abs)
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer c.release(e)
	return c.closeEntry(ctx, p.Root, e)
}

// closeEntry notifies the session the document was opened in, if it is still live. Callers hold e.mu.
func (c *controller) closeEntry(ctx context.Context, root string, e *entry) error {
	if e.doc == nil {
		return nil
	}
	var err error
	if s, live := c.liveSession(root, e.doc); live {
		err = c.sendClose(ctx, s, e)
	}
	c.drop(e)
	return err
}

func (c *controller) sendClose(ctx context.Context, s analyzer.Session, e *entry) error {
	c.stats.Counter("closes").Inc(1)
	return s.Notify(ctx, protocol.MethodTextDocumentDidClose, &protocol.DidCloseTextDocumentParams{
		TextDocument: e.doc.Identifier(),
	})
}

// closeProject runs on project teardown, while the session can still receive didClose.
func (c *controller) closeProject(ctx context.Context, p entity.Project) error {
	var err error
	for _, e := range c.entries(p.Root) {
		e.mu.Lock()
		err = multierr.Append(err, c.closeEntry(ctx, p.Root, e))
		c.release(e)
	}
	return err
}

func (c *controller) Lines(p entity.Project, path string) ([]string, error) {
	abs, err := c.resolve(p, path)
	if err != nil {
		return nil, err
	}
	if e := c.lookup(p.Root, abs); e != nil {
		e.mu.Lock()
		doc := e.doc
		var text string
		if doc != nil {
			text = doc.Text
		}
		e.mu.Unlock()
		if doc != nil {
			return entity.SplitLines(text), nil
		}
	}

	text, exists, err := c.read(abs)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("reading %s: %w", abs, os.ErrNotExist)
	}
	return entity.SplitLines(text), nil
}

func (c *controller) OpenCount(root string) int {
	s, ok := c.projects.Current(root)
	if !ok {
		return 0
	}

	var count int
	for _, e := range c.entries(root) {
		e.mu.Lock()
		if e.doc != nil && e.doc.Session == s.ID() {
			count++
		}
		e.mu.Unlock()
	}
	return count
}

func (c *controller) resolve(p entity.Project, path string) (string, error) {
	abs := p.AbsolutePath(path)
	if _, err := p.RelativePath(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func (c *controller) entry(root, abs string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.documents[root]; !ok {
		c.documents[root] = make(map[string]*entry)
	}
	e, ok := c.documents[root][abs]
	if !ok {
		e = &entry{root: root, abs: abs}
		c.documents[root][abs] = e
	}
	return e
}

// acquire returns the locked entry for the path, creating it when needed.
func (c *controller) acquire(root, abs string) *entry {
	for {
		e := c.entry(root, abs)
		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// release unlocks the entry and removes it from the store when it holds no document.
func (c *controller) release(e *entry) {
	if e.doc == nil && !e.removed {
		e.removed = true
		c.mu.Lock()
		if docs := c.documents[e.root]; docs[e.abs] == e {
			delete(docs, e.abs)
			if len(docs) == 0 {
				delete(c.documents, e.root)
			}
		}
		c.mu.Unlock()
	}
	e.mu.Unlock()
}

func (c *controller) lookup(root, abs string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.documents[root][abs]
}

// entries returns a snapshot of the project's entries.
func (c *controller) entries(root string) []*entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]*entry, 0, len(c.documents[root]))
	for _, e := range c.documents[root] {
		entries = append(entries, e)
	}
	return entries
}

// liveSession returns the project's session if it is the one the document was opened in.
func (c *controller) liveSession(root string, doc *entity.Document) (analyzer.Session, bool) {
	s, ok := c.projects.Current(root)
	if !ok || s.ID() != doc.Session {
		return nil, false
	}
	return s, true
}

// drop forgets the document. Callers hold e.mu.
func (c *controller) drop(e *entry) {
	if e.doc == nil {
		return
	}
	e.doc = nil
	c.open.Add(-1)
	c.stats.Gauge("open").Update(float64(c.open.Load()))
}

// read returns the file content. A missing file is reported with exists set to false.
func (c *controller) read(abs string) (text string, exists bool, err error) {
	info, err := c.fs.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("%s is a directory", abs)
	}
	if info.Size() > c.cfg.MaxFileSizeBytes {
		return "", true, &bridgeerrors.DocumentSizeLimitError{Path: abs, Size: info.Size()}
	}
	data, err := c.fs.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}
