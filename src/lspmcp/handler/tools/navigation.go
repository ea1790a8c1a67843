package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/markup"
	"github.com/uber/lsp-mcp/src/lspmcp/mapper"
	"go.lsp.dev/protocol"
)

// Span is a 1-based, rune-column range.
type Span struct {
	Line      int `json:"line"`
	Column    int `json:"column"`
	EndLine   int `json:"end_line"`
	EndColumn int `json:"end_column"`
}

// Location is a place in a file, with the surrounding lines.
type Location struct {
	File string `json:"file"`
	Span
	Snippet string `json:"snippet,omitempty"`
}

// LocationsResult is returned by the definition, type_definition and references tools.
type LocationsResult struct {
	Locations []Location `json:"locations"`
}

// HoverResult is returned by the hover tool.
type HoverResult struct {
	Contents string `json:"contents"`
	Range    *Span  `json:"range,omitempty"`
}

// SymbolEntry is one declaration listed by the document_symbols tool.
type SymbolEntry struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Container string `json:"container,omitempty"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
}

// SymbolsResult is returned by the document_symbols tool.
type SymbolsResult struct {
	Symbols []SymbolEntry `json:"symbols"`
}

func span(m *mapper.TextMapper, r protocol.Range) Span {
	var s Span
	s.Line, s.Column = m.FromPosition(r.Start)
	s.EndLine, s.EndColumn = m.FromPosition(r.End)
	return s
}

// fileTexts reads each file a result points into at most once.
// Files in a project come from the document store so that positions match what the analyzer saw.
type fileTexts struct {
	h     *handler
	lines map[string][]string
}

func (h *handler) newFileTexts() *fileTexts {
	return &fileTexts{h: h, lines: make(map[string][]string)}
}

func (f *fileTexts) get(path string) []string {
	if lines, ok := f.lines[path]; ok {
		return lines
	}
	var lines []string
	if p, err := f.h.projects.Resolve(path); err == nil {
		lines, err = f.h.documents.Lines(p, path)
		if err != nil {
			lines = nil
		}
	} else if data, err := f.h.fs.ReadFile(path); err == nil {
		lines = entity.SplitLines(string(data))
	}
	f.lines[path] = lines
	return lines
}

func (f *fileTexts) location(loc protocol.Location) Location {
	path := loc.URI.Filename()
	lines := f.get(path)
	s := span(mapper.NewTextMapper(strings.Join(lines, "\n")), loc.Range)
	return Location{
		File:    path,
		Span:    s,
		Snippet: mapper.Snippet(lines, s.Line, s.EndLine, _snippetContext),
	}
}

func (h *handler) locations(ctx context.Context, method string, pos position, params interface{}) (interface{}, error) {
	var raw json.RawMessage
	if err := pos.session.Call(ctx, method, params, &raw); err != nil {
		return nil, err
	}
	locs, err := mapper.ResultToLocations(raw)
	if err != nil {
		return nil, bridgeerrors.NewProtocolError(method, err)
	}

	texts := h.newFileTexts()
	result := LocationsResult{Locations: make([]Location, 0, len(locs))}
	for _, loc := range locs {
		result.Locations = append(result.Locations, texts.location(loc))
	}
	return result, nil
}

func (h *handler) definition(ctx context.Context, arguments map[string]any) (interface{}, error) {
	var a positionArgs
	if err := decode(_toolDefinition, arguments, &a); err != nil {
		return nil, err
	}
	pos, err := h.locate(ctx, _toolDefinition, a)
	if err != nil {
		return nil, err
	}
	return h.locations(ctx, protocol.MethodTextDocumentDefinition, pos,
		protocol.DefinitionParams{TextDocumentPositionParams: pos.params()})
}

func (h *handler) typeDefinition(ctx context.Context, arguments map[string]any) (interface{}, error) {
	var a positionArgs
	if err := decode(_toolTypeDefinition, arguments, &a); err != nil {
		return nil, err
	}
	pos, err := h.locate(ctx, _toolTypeDefinition, a)
	if err != nil {
		return nil, err
	}
	return h.locations(ctx, protocol.MethodTextDocumentTypeDefinition, pos,
		protocol.TypeDefinitionParams{TextDocumentPositionParams: pos.params()})
}

func (h *handler) references(ctx context.Context, arguments map[string]any) (interface{}, error) {
	var a referencesArgs
	if err := decode(_toolReferences, arguments, &a); err != nil {
		return nil, err
	}
	pos, err := h.locate(ctx, _toolReferences, a.positionArgs)
	if err != nil {
		return nil, err
	}
	includeDeclaration := a.IncludeDeclaration == nil || *a.IncludeDeclaration
	return h.locations(ctx, protocol.MethodTextDocumentReferences, pos, protocol.ReferenceParams{
		TextDocumentPositionParams: pos.params(),
		Context:                    protocol.ReferenceContext{IncludeDeclaration: includeDeclaration},
	})
}

func (h *handler) hover(ctx context.Context, arguments map[string]any) (interface{}, error) {
	var a positionArgs
	if err := decode(_toolHover, arguments, &a); err != nil {
		return nil, err
	}
	pos, err := h.locate(ctx, _toolHover, a)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	params := protocol.HoverParams{TextDocumentPositionParams: pos.params()}
	if err := pos.session.Call(ctx, protocol.MethodTextDocumentHover, params, &raw); err != nil {
		return nil, err
	}
	content, err := mapper.ResultToHover(raw)
	if err != nil {
		return nil, bridgeerrors.NewProtocolError(protocol.MethodTextDocumentHover, err)
	}
	if content == nil {
		return HoverResult{}, nil
	}

	presented, err := h.presenter.Present(markup.Kind(content.Kind), content.Value)
	if err != nil {
		h.logger.Warnw("failed to present hover markup, returning it raw", "path", pos.doc.Path, "error", err)
		presented = content.Value
	}
	result := HoverResult{Contents: presented}
	if content.Range != nil {
		s := span(mapper.NewTextMapper(pos.doc.Text), *content.Range)
		result.Range = &s
	}
	return result, nil
}

func (h *handler) documentSymbols(ctx context.Context, arguments map[string]any) (interface{}, error) {
	var a fileArgs
	if err := decode(_toolDocumentSymbols, arguments, &a); err != nil {
		return nil, err
	}
	t, err := h.open(ctx, a.File)
	if err != nil {
		return nil, err
	}
	symbols, err := h.symbols(ctx, t)
	if err != nil {
		return nil, err
	}

	m := mapper.NewTextMapper(t.doc.Text)
	result := SymbolsResult{Symbols: make([]SymbolEntry, 0, len(symbols))}
	for _, s := range symbols {
		line, column := m.FromPosition(s.SelectionRange.Start)
		result.Symbols = append(result.Symbols, SymbolEntry{
			Name:      s.Name,
			Kind:      s.Kind.String(),
			Container: s.Container,
			Line:      line,
			Column:    column,
		})
	}
	return result, nil
}
