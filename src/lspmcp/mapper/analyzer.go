package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"go.lsp.dev/protocol"
)

var _null = []byte("null")

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, _null)
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// locationOrLink decodes both Location and LocationLink.
type locationOrLink struct {
	URI                  protocol.DocumentURI `json:"uri"`
	Range                protocol.Range       `json:"range"`
	TargetURI            protocol.DocumentURI `json:"targetUri"`
	TargetSelectionRange protocol.Range       `json:"targetSelectionRange"`
}

func (l locationOrLink) location() protocol.Location {
	if l.TargetURI != "" {
		return protocol.Location{URI: l.TargetURI, Range: l.TargetSelectionRange}
	}
	return protocol.Location{URI: l.URI, Range: l.Range}
}

// ResultToLocations decodes the result of a definition, typeDefinition or references request.
// The analyzer may answer with null, a single Location, a list of Locations or a list of LocationLinks.
func ResultToLocations(raw json.RawMessage) ([]protocol.Location, error) {
	if isNull(raw) {
		return nil, nil
	}

	var items []locationOrLink
	if isArray(raw) {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, wrapErrParse(err)
		}
	} else {
		var single locationOrLink
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, wrapErrParse(err)
		}
		items = append(items, single)
	}

	locations := make([]protocol.Location, 0, len(items))
	for _, item := range items {
		loc := item.location()
		if loc.URI == "" {
			return nil, fmt.Errorf("location without uri")
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// HoverContent is hover documentation normalized to a single markup value.
type HoverContent struct {
	Kind  protocol.MarkupKind
	Value string
	Range *protocol.Range
}

type markedString struct {
	Language string `json:"language"`
	Kind     string `json:"kind"`
	Value    string `json:"value"`
}

func (m markedString) markdown() string {
	if m.Language != "" {
		return "```" + m.Language + "\n" + m.Value + "\n```"
	}
	return m.Value
}

// ResultToHover decodes a hover result. Contents may be MarkupContent, a MarkedString or a list of MarkedStrings.
// It returns nil when the analyzer has nothing to show.
func ResultToHover(raw json.RawMessage) (*HoverContent, error) {
	if isNull(raw) {
		return nil, nil
	}

	var hover struct {
		Contents json.RawMessage `json:"contents"`
		Range    *protocol.Range `json:"range"`
	}
	if err := json.Unmarshal(raw, &hover); err != nil {
		return nil, wrapErrParse(err)
	}

	kind, value, err := decodeHoverContents(hover.Contents)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return &HoverContent{Kind: kind, Value: value, Range: hover.Range}, nil
}

func decodeHoverContents(raw json.RawMessage) (protocol.MarkupKind, string, error) {
	if isNull(raw) {
		return protocol.PlainText, "", nil
	}

	if isArray(raw) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", "", wrapErrParse(err)
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			_, value, err := decodeHoverContents(item)
			if err != nil {
				return "", "", err
			}
			if value != "" {
				parts = append(parts, value)
			}
		}
		return protocol.Markdown, strings.Join(parts, "\n\n"), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return protocol.Markdown, s, nil
	}

	var m markedString
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", "", wrapErrParse(err)
	}
	switch protocol.MarkupKind(m.Kind) {
	case protocol.PlainText:
		return protocol.PlainText, m.Value, nil
	case protocol.Markdown:
		return protocol.Markdown, m.Value, nil
	}
	return protocol.Markdown, m.markdown(), nil
}

// Symbol is one entry of a flattened document outline.
type Symbol struct {
	Name           string
	Kind           protocol.SymbolKind
	Container      string
	Range          protocol.Range
	SelectionRange protocol.Range
}

type symbolNode struct {
	Name           string              `json:"name"`
	Kind           protocol.SymbolKind `json:"kind"`
	ContainerName  string              `json:"containerName"`
	Location       *protocol.Location  `json:"location"`
	Range          protocol.Range      `json:"range"`
	SelectionRange protocol.Range      `json:"selectionRange"`
	Children       []symbolNode        `json:"children"`
}

// ResultToSymbols decodes a documentSymbol result, accepting both the flat SymbolInformation form
// and the nested DocumentSymbol form. Nested symbols are flattened depth first with their parent as container.
func ResultToSymbols(raw json.RawMessage) ([]Symbol, error) {
	if isNull(raw) {
		return nil, nil
	}
	var nodes []symbolNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, wrapErrParse(err)
	}

	var symbols []Symbol
	var walk func(nodes []symbolNode, container string)
	walk = func(nodes []symbolNode, container string) {
		for _, n := range nodes {
			s := Symbol{Name: n.Name, Kind: n.Kind, Container: container, Range: n.Range, SelectionRange: n.SelectionRange}
			if n.Location != nil {
				s.Range = n.Location.Range
				s.SelectionRange = n.Location.Range
				s.Container = n.ContainerName
			}
			symbols = append(symbols, s)
			walk(n.Children, n.Name)
		}
	}
	walk(nodes, "")
	return symbols, nil
}

// FileEdits are the text edits a workspace edit makes to one file.
type FileEdits struct {
	URI   protocol.DocumentURI
	Edits []protocol.TextEdit
}

// WorkspaceChanges is a decoded workspace edit.
// ResourceOperations lists file creations, renames and deletions, which the bridge reports but does not perform.
type WorkspaceChanges struct {
	Files              []FileEdits
	ResourceOperations []string
}

// ResultToWorkspaceChanges decodes a rename result. Edits for the same file are merged, in order of appearance.
func ResultToWorkspaceChanges(raw json.RawMessage) (*WorkspaceChanges, error) {
	if isNull(raw) {
		return nil, nil
	}

	var edit struct {
		Changes         map[protocol.DocumentURI][]protocol.TextEdit `json:"changes"`
		DocumentChanges []json.RawMessage                            `json:"documentChanges"`
	}
	if err := json.Unmarshal(raw, &edit); err != nil {
		return nil, wrapErrParse(err)
	}

	result := &WorkspaceChanges{}
	index := make(map[protocol.DocumentURI]int)
	add := func(uri protocol.DocumentURI, edits []protocol.TextEdit) {
		i, ok := index[uri]
		if !ok {
			i = len(result.Files)
			index[uri] = i
			result.Files = append(result.Files, FileEdits{URI: uri})
		}
		result.Files[i].Edits = append(result.Files[i].Edits, edits...)
	}

	for _, change := range edit.DocumentChanges {
		var op struct {
			Kind   string               `json:"kind"`
			URI    protocol.DocumentURI `json:"uri"`
			OldURI protocol.DocumentURI `json:"oldUri"`
			NewURI protocol.DocumentURI `json:"newUri"`
		}
		if err := json.Unmarshal(change, &op); err != nil {
			return nil, wrapErrParse(err)
		}
		switch op.Kind {
		case "":
		case "rename":
			result.ResourceOperations = append(result.ResourceOperations, fmt.Sprintf("rename %s -> %s", op.OldURI.Filename(), op.NewURI.Filename()))
			continue
		default:
			result.ResourceOperations = append(result.ResourceOperations, fmt.Sprintf("%s %s", op.Kind, op.URI.Filename()))
			continue
		}

		var docEdit protocol.TextDocumentEdit
		if err := json.Unmarshal(change, &docEdit); err != nil {
			return nil, wrapErrParse(err)
		}
		add(docEdit.TextDocument.URI, docEdit.Edits)
	}

	// changes is ignored by analyzers that send documentChanges, but merge it in any case.
	if len(edit.DocumentChanges) == 0 {
		uris := make([]protocol.DocumentURI, 0, len(edit.Changes))
		for uri := range edit.Changes {
			uris = append(uris, uri)
		}
		sortURIs(uris)
		for _, uri := range uris {
			add(uri, edit.Changes[uri])
		}
	}
	return result, nil
}

// ParamsToDiagnosticSet decodes a publishDiagnostics notification.
func ParamsToDiagnosticSet(raw json.RawMessage, received time.Time) (entity.DiagnosticSet, error) {
	var params protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return entity.DiagnosticSet{}, wrapErrParse(err)
	}
	if params.URI == "" {
		return entity.DiagnosticSet{}, fmt.Errorf("diagnostics without uri")
	}
	diagnostics := params.Diagnostics
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	return entity.DiagnosticSet{
		URI:         params.URI,
		Version:     params.Version,
		Diagnostics: diagnostics,
		Received:    received,
	}, nil
}

func wrapErrParse(err error) error {
	return fmt.Errorf("unexpected result shape: %w", err)
}
