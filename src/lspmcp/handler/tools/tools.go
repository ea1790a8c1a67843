// Package tools exposes the analyzer as a fixed catalogue of tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/controller/diagnostics"
	"github.com/uber/lsp-mcp/src/lspmcp/controller/documents"
	"github.com/uber/lsp-mcp/src/lspmcp/controller/watcher"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/executor"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/markup"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/mcpfx"
	"github.com/uber/lsp-mcp/src/lspmcp/repository/project"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey        = "tools"
	_checkConfigKey = "check"

	_defaultCheckTimeout = 5 * time.Minute
	_maxDiagnosticsWait  = 10 * time.Second
	_snippetContext      = 1
)

// Handler serves the tool catalogue.
type Handler interface {
	// Definitions lists the catalogue in registration order.
	Definitions() []mcp.Tool
	// Invoke runs the named tool. Failures are returned as errors classified by internal/errors.
	Invoke(ctx context.Context, name string, arguments map[string]any) (interface{}, error)
}

// Params are inbound parameters to initialize the handler.
type Params struct {
	fx.In

	Config      config.Provider
	Projects    project.Repository
	Documents   documents.Controller
	Diagnostics diagnostics.Controller
	Watcher     watcher.Controller
	Executor    executor.Executor
	Presenter   markup.Presenter
	FS          fs.BridgeFS
	Logger      *zap.SugaredLogger
	Stats       tally.Scope
	// Server is resolved last so that it starts after, and stops before, everything it serves.
	Server mcpfx.Server
}

type toolFunc func(ctx context.Context, arguments map[string]any) (interface{}, error)

type tool struct {
	definition mcp.Tool
	run        toolFunc
}

type handler struct {
	projects     project.Repository
	documents    documents.Controller
	diagnostics  diagnostics.Controller
	watcher      watcher.Controller
	executor     executor.Executor
	presenter    markup.Presenter
	fs           fs.BridgeFS
	logger       *zap.SugaredLogger
	stats        tally.Scope
	checkTimeout time.Duration

	order   []string
	catalog map[string]tool
}

// errorPayload is the body of a failed tool result.
type errorPayload struct {
	Kind      string `json:"kind"`
	Cause     string `json:"cause,omitempty"`
	Tool      string `json:"tool"`
	Project   string `json:"project,omitempty"`
	Path      string `json:"path,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// New creates the handler and registers every tool with the server.
func New(p Params) (Handler, error) {
	var check struct {
		Timeout time.Duration `yaml:"timeout"`
	}
	if err := p.Config.Get(_checkConfigKey).Populate(&check); err != nil {
		return nil, fmt.Errorf("getting %q config: %w", _checkConfigKey, err)
	}
	if check.Timeout <= 0 {
		check.Timeout = _defaultCheckTimeout
	}

	h := &handler{
		projects:     p.Projects,
		documents:    p.Documents,
		diagnostics:  p.Diagnostics,
		watcher:      p.Watcher,
		executor:     p.Executor,
		presenter:    p.Presenter,
		fs:           p.FS,
		logger:       p.Logger.With("component", _nameKey),
		stats:        p.Stats.SubScope(_nameKey),
		checkTimeout: check.Timeout,
		catalog:      make(map[string]tool),
	}
	h.build()

	for _, name := range h.order {
		name := name
		p.Server.AddTool(h.catalog[name].definition, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return h.serve(ctx, name, req.GetArguments()), nil
		})
	}
	return h, nil
}

func (h *handler) add(definition mcp.Tool, run toolFunc) {
	h.order = append(h.order, definition.Name)
	h.catalog[definition.Name] = tool{definition: definition, run: run}
}

// build assembles the catalogue. It is read-only afterwards.
func (h *handler) build() {
	h.add(locationTool(_toolDefinition, "Find where the symbol at a position is defined."), h.definition)
	h.add(locationTool(_toolTypeDefinition, "Find where the type of the symbol at a position is defined."), h.typeDefinition)
	h.add(referencesTool(), h.references)
	h.add(hoverTool(), h.hover)
	h.add(documentSymbolsTool(), h.documentSymbols)
	h.add(diagnosticsTool(), h.fileDiagnostics)
	h.add(renameTool(), h.rename)
	h.add(checkTool(), h.check)
	h.add(fileLinesTool(), h.fileLines)
	h.add(projectsTool(), h.listProjects)
}

func (h *handler) Definitions() []mcp.Tool {
	defs := make([]mcp.Tool, 0, len(h.order))
	for _, name := range h.order {
		defs = append(defs, h.catalog[name].definition)
	}
	return defs
}

func (h *handler) Invoke(ctx context.Context, name string, arguments map[string]any) (interface{}, error) {
	t, ok := h.catalog[name]
	if !ok {
		return nil, &bridgeerrors.UnknownToolError{Name: name}
	}

	scope := h.stats.Tagged(map[string]string{"tool": name})
	scope.Counter("invocations").Inc(1)
	sw := scope.Timer("latency").Start()
	defer sw.Stop()

	result, err := t.run(ctx, arguments)
	if err != nil {
		err = h.upstream(name, arguments, err)
		scope.Tagged(map[string]string{
			"kind":  bridgeerrors.Kind(err),
			"cause": bridgeerrors.Cause(err),
		}).Counter("errors").Inc(1)
		return nil, err
	}
	return result, nil
}

// upstream wraps any failure that is not the caller's fault with the tool and file it concerned.
// A file that belongs to no project is reported back as an invalid argument.
func (h *handler) upstream(name string, arguments map[string]any, err error) error {
	if bridgeerrors.IsBadRequest(err) || bridgeerrors.IsUpstream(err) {
		return err
	}
	file, _ := withFileAlias(arguments)[_argFile].(string)
	e := &bridgeerrors.UpstreamError{Tool: name, Path: file, Err: err}
	if file == "" {
		return e
	}
	p, rerr := h.projects.Resolve(file)
	if rerr != nil {
		// The caller named a file no project owns.
		if bridgeerrors.IsProjectNotFound(err) || bridgeerrors.IsOutsideProject(err) {
			return &bridgeerrors.InvalidArgumentsError{Tool: name, Problems: []string{rerr.Error()}}
		}
		return e
	}
	e.Project = p.Root
	e.Path = p.AbsolutePath(file)
	return e
}

// serve runs a tool on behalf of the client and encodes the outcome as a tool result.
func (h *handler) serve(ctx context.Context, name string, arguments map[string]any) *mcp.CallToolResult {
	result, err := h.Invoke(ctx, name, arguments)
	if err != nil {
		h.logger.Infow("tool call failed", "tool", name, "error", err)
		return mcp.NewToolResultError(encode(describe(name, err)))
	}
	return mcp.NewToolResultText(encode(result))
}

func describe(name string, err error) errorPayload {
	payload := errorPayload{
		Kind:      bridgeerrors.Kind(err),
		Tool:      name,
		Message:   err.Error(),
		Retryable: bridgeerrors.Retryable(err),
	}
	var upstream *bridgeerrors.UpstreamError
	if bridgeerrors.As(err, &upstream) {
		payload.Cause = bridgeerrors.Cause(upstream.Err)
		payload.Project = upstream.Project
		payload.Path = upstream.Path
		payload.Message = upstream.Err.Error()
	}
	return payload
}

func encode(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"kind":%q,"message":%q}`, bridgeerrors.KindUpstream, err.Error())
	}
	return string(data)
}
