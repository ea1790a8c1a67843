package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/mapper"
	"go.lsp.dev/protocol"
)

// target is an open document in a live session.
type target struct {
	project entity.Project
	doc     entity.Document
	session analyzer.Session
}

// position is a target plus the protocol position a tool call points at.
type position struct {
	target
	pos protocol.Position
}

func (t target) identifier() protocol.TextDocumentIdentifier {
	return t.doc.Identifier()
}

func (p position) params() protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{TextDocument: p.identifier(), Position: p.pos}
}

// open resolves the file to its project and makes sure the analyzer has it open.
// The document and the session it returns belong to the same analyzer process.
func (h *handler) open(ctx context.Context, file string) (target, error) {
	p, err := h.projects.Resolve(file)
	if err != nil {
		return target{}, err
	}
	path := p.AbsolutePath(file)
	for attempt := 0; ; attempt++ {
		doc, err := h.documents.EnsureOpen(ctx, p, path)
		if err != nil {
			return target{}, err
		}
		session, err := h.projects.Session(ctx, p.Root)
		if err != nil {
			return target{}, err
		}
		if session.ID() == doc.Session {
			return target{project: p, doc: doc, session: session}, nil
		}
		// The session was replaced between the two calls. Opening again sends didOpen to the new one.
		if attempt > 0 {
			return target{}, &bridgeerrors.SessionDeadError{Project: p.Root, Reason: session.Err()}
		}
		h.logger.Debugw("session replaced while opening document", "path", path, "session", session.ID())
	}
}

// locate opens the file and converts the tool's line and column, or line and symbol, to a protocol position.
func (h *handler) locate(ctx context.Context, tool string, a positionArgs) (position, error) {
	t, err := h.open(ctx, a.File)
	if err != nil {
		return position{}, err
	}

	m := mapper.NewTextMapper(t.doc.Text)
	if a.Column != nil {
		pos, err := m.ToolPosition(a.Line, *a.Column)
		if err != nil {
			return position{}, &bridgeerrors.InvalidArgumentsError{Tool: tool, Problems: []string{err.Error()}}
		}
		return position{target: t, pos: pos}, nil
	}

	if a.Line > m.LineCount() {
		return position{}, &bridgeerrors.InvalidArgumentsError{
			Tool:     tool,
			Problems: []string{fmt.Sprintf("line %d is out of range 1-%d", a.Line, m.LineCount())},
		}
	}
	if pos, ok := h.symbolStart(ctx, t, a.Line, a.Symbol); ok {
		return position{target: t, pos: pos}, nil
	}
	// An empty file has one line and no text.
	var text string
	if lines := t.doc.Lines(); a.Line <= len(lines) {
		text = lines[a.Line-1]
	}
	column, ok := mapper.SymbolColumn(text, a.Symbol)
	if !ok {
		return position{}, &bridgeerrors.InvalidArgumentsError{
			Tool:     tool,
			Problems: []string{fmt.Sprintf("symbol %q does not appear on line %d", a.Symbol, a.Line)},
		}
	}
	pos, err := m.ToolPosition(a.Line, column)
	if err != nil {
		return position{}, &bridgeerrors.InvalidArgumentsError{Tool: tool, Problems: []string{err.Error()}}
	}
	return position{target: t, pos: pos}, nil
}

// symbolStart looks the symbol up in the document outline. The analyzer's own symbol ranges
// are preferred over a text search, which can hit a same-named identifier earlier on the line.
func (h *handler) symbolStart(ctx context.Context, t target, line int, name string) (protocol.Position, bool) {
	symbols, err := h.symbols(ctx, t)
	if err != nil {
		h.logger.Debugw("falling back to a text search for the symbol", "path", t.doc.Path, "error", err)
		return protocol.Position{}, false
	}
	for _, s := range symbols {
		if s.Name == name && int(s.SelectionRange.Start.Line) == line-1 {
			return s.SelectionRange.Start, true
		}
	}
	return protocol.Position{}, false
}

func (h *handler) symbols(ctx context.Context, t target) ([]mapper.Symbol, error) {
	var raw json.RawMessage
	params := protocol.DocumentSymbolParams{TextDocument: t.identifier()}
	if err := t.session.Call(ctx, protocol.MethodTextDocumentDocumentSymbol, params, &raw); err != nil {
		return nil, err
	}
	symbols, err := mapper.ResultToSymbols(raw)
	if err != nil {
		return nil, bridgeerrors.NewProtocolError(protocol.MethodTextDocumentDocumentSymbol, err)
	}
	return symbols, nil
}
