package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/controller/diagnostics/diagnosticsmock"
	"github.com/uber/lsp-mcp/src/lspmcp/controller/documents/documentsmock"
	"github.com/uber/lsp-mcp/src/lspmcp/controller/watcher/watchermock"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer/analyzermock"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/executor/executormock"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/markup"
	"github.com/uber/lsp-mcp/src/lspmcp/repository/project/projectmock"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const _libText = "fn main() {\n    let c = '🦀'; helper(1);\n}\nfn helper(x: u32) -> u32 { x }\n"

type fakeServer struct {
	tools []mcp.Tool
}

func (s *fakeServer) AddTool(tool mcp.Tool, _ server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool)
}

func (s *fakeServer) Transport() string { return "stdio" }

type fixture struct {
	root    string
	lib     string
	project entity.Project
	doc     entity.Document

	projects    *projectmock.MockRepository
	documents   *documentsmock.MockController
	diagnostics *diagnosticsmock.MockController
	watcher     *watchermock.MockController
	executor    *executormock.MockExecutor
	session     *analyzermock.MockSession
	server      *fakeServer
	stats       tally.TestScope
	h           *handler
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	root := t.TempDir()
	lib := filepath.Join(root, "src", "lib.rs")
	require.NoError(t, os.MkdirAll(filepath.Dir(lib), 0o755))
	require.NoError(t, os.WriteFile(lib, []byte(_libText), 0o644))

	f := &fixture{
		root:        root,
		lib:         lib,
		project:     entity.Project{Root: root, Check: entity.CheckConfig{Command: "cargo", Args: []string{"check"}}},
		projects:    projectmock.NewMockRepository(ctrl),
		documents:   documentsmock.NewMockController(ctrl),
		diagnostics: diagnosticsmock.NewMockController(ctrl),
		watcher:     watchermock.NewMockController(ctrl),
		executor:    executormock.NewMockExecutor(ctrl),
		session:     analyzermock.NewMockSession(ctrl),
		server:      &fakeServer{},
		stats:       tally.NewTestScope("testing", make(map[string]string, 0)),
	}
	f.doc = entity.Document{
		Project: root,
		Path:    lib,
		URI:     uri.File(lib),
		Version: 1,
		Text:    _libText,
		Session: uuid.Must(uuid.NewV4()),
	}

	provider, err := config.NewStaticProvider(map[string]interface{}{
		"check": map[string]interface{}{"timeout": "2s"},
	})
	require.NoError(t, err)
	presenter, err := markup.NewWithConfig(markup.Config{Style: markup.StyleRaw})
	require.NoError(t, err)

	h, err := New(Params{
		Config:      provider,
		Server:      f.server,
		Projects:    f.projects,
		Documents:   f.documents,
		Diagnostics: f.diagnostics,
		Watcher:     f.watcher,
		Executor:    f.executor,
		Presenter:   presenter,
		FS:          fs.New(),
		Logger:      zap.NewNop().Sugar(),
		Stats:       f.stats,
	})
	require.NoError(t, err)
	f.h = h.(*handler)

	f.projects.EXPECT().Resolve(gomock.Any()).DoAndReturn(func(path string) (entity.Project, error) {
		if f.project.Contains(f.project.AbsolutePath(path)) {
			return f.project, nil
		}
		return entity.Project{}, &bridgeerrors.ProjectNotFoundError{Path: path}
	}).AnyTimes()
	return f
}

// expectOpen sets up the document store and session lookups a position tool performs.
func (f *fixture) expectOpen() {
	f.documents.EXPECT().EnsureOpen(gomock.Any(), f.project, f.lib).Return(f.doc, nil).AnyTimes()
	f.projects.EXPECT().Session(gomock.Any(), f.root).Return(f.session, nil).AnyTimes()
	f.session.EXPECT().ID().Return(f.doc.Session).AnyTimes()
}

// respond answers one analyzer request with a raw JSON result and records its params.
func (f *fixture) respond(method, result string, params *interface{}) *gomock.Call {
	return f.session.EXPECT().Call(gomock.Any(), method, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, p, out interface{}) error {
			if params != nil {
				*params = p
			}
			*out.(*json.RawMessage) = json.RawMessage(result)
			return nil
		})
}

func (f *fixture) call(name string, arguments map[string]any) (map[string]interface{}, bool) {
	res := f.h.serve(context.Background(), name, arguments)
	var body map[string]interface{}
	text := res.Content[0].(mcp.TextContent).Text
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		body = map[string]interface{}{"raw": text}
	}
	return body, res.IsError
}

func locationJSON(path string, line, start, end int) string {
	return fmt.Sprintf(`{"uri":%q,"range":{"start":{"line":%d,"character":%d},"end":{"line":%d,"character":%d}}}`,
		uri.File(path), line, start, line, end)
}

func TestNew(t *testing.T) {
	f := newFixture(t)

	var names []string
	for _, tool := range f.server.tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"definition", "type_definition", "references", "hover", "document_symbols",
		"diagnostics", "rename", "check", "file_lines", "projects",
	}, names)
	assert.Equal(t, f.server.tools, f.h.Definitions())
	assert.Equal(t, 2*time.Second, f.h.checkTimeout)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		problems []string
	}{
		{
			name: "column",
			args: map[string]any{"file": "a.rs", "line": 3, "column": 1},
		},
		{
			name: "path for file",
			args: map[string]any{"path": "src/lib.rs", "line": 10, "column": 4},
		},
		{
			name:     "path and file",
			args:     map[string]any{"path": "src/lib.rs", "file": "src/lib.rs", "line": 10, "column": 4},
			problems: []string{`unknown field "path"`},
		},
		{
			name: "symbol instead of column",
			args: map[string]any{"file": "a.rs", "line": 3, "symbol": "helper"},
		},
		{
			name:     "missing file and line",
			args:     map[string]any{"column": 2},
			problems: []string{"file is required", "line is required"},
		},
		{
			name:     "neither column nor symbol",
			args:     map[string]any{"file": "a.rs", "line": 3},
			problems: []string{"symbol is required when column is not given"},
		},
		{
			name:     "column below one",
			args:     map[string]any{"file": "a.rs", "line": 3, "column": 0},
			problems: []string{"column must be at least 1"},
		},
		{
			name:     "negative column",
			args:     map[string]any{"file": "a.rs", "line": 3, "column": -2, "symbol": "helper"},
			problems: []string{"column must be at least 1"},
		},
		{
			name:     "line below one",
			args:     map[string]any{"file": "a.rs", "line": -1, "column": 1},
			problems: []string{"line must be at least 1"},
		},
		{
			name:     "unknown field",
			args:     map[string]any{"file": "a.rs", "line": 3, "column": 1, "col": 1},
			problems: []string{`unknown field "col"`},
		},
		{
			name:     "wrong type",
			args:     map[string]any{"file": "a.rs", "line": "three", "column": 1},
			problems: []string{"cannot unmarshal string into Go struct field positionArgs.line of type int"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var a positionArgs
			err := decode("definition", tt.args, &a)
			if tt.problems == nil {
				assert.NoError(t, err)
				return
			}
			var invalid *bridgeerrors.InvalidArgumentsError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, "definition", invalid.Tool)
			for _, want := range tt.problems {
				assert.Contains(t, strings.Join(invalid.Problems, "; "), want)
			}
			assert.Len(t, invalid.Problems, len(tt.problems))
		})
	}
}

func TestDefinition(t *testing.T) {
	f := newFixture(t)
	f.expectOpen()
	f.documents.EXPECT().Lines(f.project, f.lib).Return(entity.SplitLines(_libText), nil)

	var params interface{}
	f.respond(protocol.MethodTextDocumentDefinition, "["+locationJSON(f.lib, 3, 3, 9)+"]", &params)

	body, isErr := f.call("definition", map[string]any{"file": "src/lib.rs", "line": 2, "column": 18})
	require.False(t, isErr, body)

	// The crab is two UTF-16 code units, so rune column 18 lands on character 18 rather than 17.
	sent := params.(protocol.DefinitionParams)
	assert.Equal(t, protocol.Position{Line: 1, Character: 18}, sent.Position)
	assert.Equal(t, uri.File(f.lib), sent.TextDocument.URI)

	locations := body["locations"].([]interface{})
	require.Len(t, locations, 1)
	loc := locations[0].(map[string]interface{})
	assert.Equal(t, f.lib, loc["file"])
	assert.EqualValues(t, 4, loc["line"])
	assert.EqualValues(t, 4, loc["column"])
	assert.EqualValues(t, 10, loc["end_column"])
	assert.Contains(t, loc["snippet"], "4| fn helper(x: u32) -> u32 { x }")
	assert.Contains(t, loc["snippet"], "3| }")
}

func TestLocationOutsideProjects(t *testing.T) {
	f := newFixture(t)
	f.expectOpen()

	external := filepath.Join(t.TempDir(), "core.rs")
	require.NoError(t, os.WriteFile(external, []byte("pub struct u32;\n"), 0o644))
	f.respond(protocol.MethodTextDocumentTypeDefinition, locationJSON(external, 0, 11, 14), nil)

	body, isErr := f.call("type_definition", map[string]any{"file": f.lib, "line": 4, "column": 14})
	require.False(t, isErr, body)
	loc := body["locations"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, external, loc["file"])
	assert.EqualValues(t, 12, loc["column"])
	assert.Contains(t, loc["snippet"], "pub struct u32;")
}

func TestSymbolAnchoring(t *testing.T) {
	t.Run("outline", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.respond(protocol.MethodTextDocumentDocumentSymbol,
			`[{"name":"helper","kind":12,"location":{"uri":"file:///x","range":{"start":{"line":3,"character":3},"end":{"line":3,"character":9}}}}]`, nil)

		var params interface{}
		f.respond(protocol.MethodTextDocumentReferences, "[]", &params)

		body, isErr := f.call("references", map[string]any{"file": "src/lib.rs", "line": 4, "symbol": "helper"})
		require.False(t, isErr, body)
		sent := params.(protocol.ReferenceParams)
		assert.Equal(t, protocol.Position{Line: 3, Character: 3}, sent.Position)
		assert.True(t, sent.Context.IncludeDeclaration)
		assert.Empty(t, body["locations"])
	})

	t.Run("text search when the outline has no match", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.session.EXPECT().Call(gomock.Any(), protocol.MethodTextDocumentDocumentSymbol, gomock.Any(), gomock.Any()).
			Return(&bridgeerrors.TimeoutError{Method: protocol.MethodTextDocumentDocumentSymbol, After: time.Second})

		var params interface{}
		f.respond(protocol.MethodTextDocumentReferences, "null", &params)

		body, isErr := f.call("references", map[string]any{
			"file": "src/lib.rs", "line": 2, "symbol": "helper", "include_declaration": false,
		})
		require.False(t, isErr, body)
		sent := params.(protocol.ReferenceParams)
		assert.Equal(t, protocol.Position{Line: 1, Character: 18}, sent.Position)
		assert.False(t, sent.Context.IncludeDeclaration)
	})

	t.Run("symbol not on the line", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.respond(protocol.MethodTextDocumentDocumentSymbol, "[]", nil)

		body, isErr := f.call("hover", map[string]any{"file": "src/lib.rs", "line": 1, "symbol": "helper"})
		require.True(t, isErr)
		assert.Equal(t, bridgeerrors.KindInvalidArguments, body["kind"])
		assert.Contains(t, body["message"], `symbol "helper" does not appear on line 1`)
	})

	t.Run("line past the end", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()

		body, isErr := f.call("hover", map[string]any{"file": "src/lib.rs", "line": 40, "symbol": "helper"})
		require.True(t, isErr)
		assert.Equal(t, bridgeerrors.KindInvalidArguments, body["kind"])
	})
}

func TestHover(t *testing.T) {
	f := newFixture(t)
	f.expectOpen()
	f.respond(protocol.MethodTextDocumentHover,
		`{"contents":{"kind":"markdown","value":"fn helper(x: u32) -> u32"},"range":{"start":{"line":1,"character":18},"end":{"line":1,"character":24}}}`, nil)

	body, isErr := f.call("hover", map[string]any{"file": "src/lib.rs", "line": 2, "column": 18})
	require.False(t, isErr, body)
	assert.Equal(t, "fn helper(x: u32) -> u32", body["contents"])
	r := body["range"].(map[string]interface{})
	assert.EqualValues(t, 2, r["line"])
	assert.EqualValues(t, 18, r["column"])
	assert.EqualValues(t, 24, r["end_column"])
}

func TestHoverNothing(t *testing.T) {
	f := newFixture(t)
	f.expectOpen()
	f.respond(protocol.MethodTextDocumentHover, "null", nil)

	body, isErr := f.call("hover", map[string]any{"file": "src/lib.rs", "line": 1, "column": 1})
	require.False(t, isErr, body)
	assert.Equal(t, "", body["contents"])
	assert.NotContains(t, body, "range")
}

func TestDocumentSymbols(t *testing.T) {
	f := newFixture(t)
	f.expectOpen()
	f.respond(protocol.MethodTextDocumentDocumentSymbol, `[
		{"name":"main","kind":12,"range":{"start":{"line":0,"character":0},"end":{"line":2,"character":1}},
		 "selectionRange":{"start":{"line":0,"character":3},"end":{"line":0,"character":7}},
		 "children":[{"name":"c","kind":13,"range":{"start":{"line":1,"character":8},"end":{"line":1,"character":9}},
		              "selectionRange":{"start":{"line":1,"character":8},"end":{"line":1,"character":9}}}]}
	]`, nil)

	body, isErr := f.call("document_symbols", map[string]any{"file": "src/lib.rs"})
	require.False(t, isErr, body)
	symbols := body["symbols"].([]interface{})
	require.Len(t, symbols, 2)
	assert.Equal(t, map[string]interface{}{"name": "main", "kind": "Function", "line": float64(1), "column": float64(4)}, symbols[0])
	assert.Equal(t, map[string]interface{}{"name": "c", "kind": "Variable", "container": "main", "line": float64(2), "column": float64(9)}, symbols[1])
}

func TestRename(t *testing.T) {
	renameResult := func(path string) string {
		return fmt.Sprintf(`{"changes":{%q:[
			{"range":{"start":{"line":1,"character":18},"end":{"line":1,"character":24}},"newText":"assist"},
			{"range":{"start":{"line":3,"character":3},"end":{"line":3,"character":9}},"newText":"assist"}]}}`, uri.File(path))
	}
	renamed := "fn main() {\n    let c = '🦀'; assist(1);\n}\nfn assist(x: u32) -> u32 { x }\n"

	t.Run("preview", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.respond(protocol.MethodTextDocumentPrepareRename, `{"start":{"line":1,"character":18},"end":{"line":1,"character":24}}`, nil)
		var params interface{}
		f.respond(protocol.MethodTextDocumentRename, renameResult(f.lib), &params)

		body, isErr := f.call("rename", map[string]any{"file": "src/lib.rs", "line": 2, "column": 18, "new_name": "assist"})
		require.False(t, isErr, body)
		assert.Equal(t, "assist", params.(protocol.RenameParams).NewName)
		assert.Equal(t, false, body["applied"])

		changes := body["changes"].([]interface{})
		require.Len(t, changes, 1)
		change := changes[0].(map[string]interface{})
		assert.Equal(t, f.lib, change["file"])
		assert.Len(t, change["edits"], 2)
		assert.Contains(t, change["diff"], "+fn assist(x: u32) -> u32 { x }")
		assert.Contains(t, change["diff"], "-fn helper(x: u32) -> u32 { x }")
	})

	t.Run("apply", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.respond(protocol.MethodTextDocumentPrepareRename, `{"start":{"line":1,"character":18},"end":{"line":1,"character":24}}`, nil)
		f.respond(protocol.MethodTextDocumentRename, renameResult(f.lib), nil)
		f.documents.EXPECT().ApplyLocalEdit(gomock.Any(), f.project, f.lib, renamed).Return(f.doc, nil)

		body, isErr := f.call("rename", map[string]any{"file": "src/lib.rs", "line": 2, "column": 18, "new_name": "assist", "apply": true})
		require.False(t, isErr, body)
		assert.Equal(t, true, body["applied"])
	})

	t.Run("nothing to rename", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.respond(protocol.MethodTextDocumentPrepareRename, "null", nil)

		body, isErr := f.call("rename", map[string]any{"file": "src/lib.rs", "line": 1, "column": 1, "new_name": "x"})
		require.True(t, isErr)
		assert.Equal(t, bridgeerrors.KindInvalidArguments, body["kind"])
		assert.Contains(t, body["message"], "nothing can be renamed at line 1 column 1")
	})

	t.Run("prepare fails", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.session.EXPECT().Call(gomock.Any(), protocol.MethodTextDocumentPrepareRename, gomock.Any(), gomock.Any()).
			Return(&bridgeerrors.ProtocolError{Method: protocol.MethodTextDocumentPrepareRename, Code: -32602, Message: "No references found at position"})

		body, isErr := f.call("rename", map[string]any{"file": "src/lib.rs", "line": 1, "column": 1, "new_name": "x"})
		require.True(t, isErr)
		assert.Equal(t, bridgeerrors.KindUpstream, body["kind"])
		assert.Equal(t, bridgeerrors.CauseProtocol, body["cause"])
		assert.Equal(t, false, body["retryable"])
	})

	t.Run("apply refuses edits outside projects", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		external := filepath.Join(t.TempDir(), "dep.rs")
		require.NoError(t, os.WriteFile(external, []byte("use helper;\n"), 0o644))

		f.respond(protocol.MethodTextDocumentPrepareRename, `{"start":{"line":1,"character":18},"end":{"line":1,"character":24}}`, nil)
		f.respond(protocol.MethodTextDocumentRename, fmt.Sprintf(`{"changes":{%q:[
			{"range":{"start":{"line":0,"character":4},"end":{"line":0,"character":10}},"newText":"assist"}]}}`, uri.File(external)), nil)

		body, isErr := f.call("rename", map[string]any{"file": "src/lib.rs", "line": 2, "column": 18, "new_name": "assist", "apply": true})
		require.True(t, isErr)
		assert.Equal(t, bridgeerrors.CauseNotFound, body["cause"])

		data, err := os.ReadFile(external)
		require.NoError(t, err)
		assert.Equal(t, "use helper;\n", string(data))
	})
}

func TestDiagnostics(t *testing.T) {
	set := entity.DiagnosticSet{
		URI: uri.File("LIB"),
		Diagnostics: []protocol.Diagnostic{{
			Range:    protocol.Range{Start: protocol.Position{Line: 1, Character: 18}, End: protocol.Position{Line: 1, Character: 24}},
			Severity: protocol.DiagnosticSeverityError,
			Code:     "E0425",
			Source:   "rustc",
			Message:  "cannot find function `helper`",
		}},
	}

	t.Run("already reported", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.diagnostics.EXPECT().Get(f.root, f.doc.URI).Return(set, true)

		body, isErr := f.call("diagnostics", map[string]any{"file": "src/lib.rs"})
		require.False(t, isErr, body)
		assert.EqualValues(t, 1, body["version"])
		assert.Equal(t, true, body["reported"])
		d := body["diagnostics"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, "Error", d["severity"])
		assert.Equal(t, "E0425", d["code"])
		assert.EqualValues(t, 2, d["line"])
		assert.EqualValues(t, 18, d["column"])
	})

	t.Run("waits for the first report", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.diagnostics.EXPECT().Get(f.root, f.doc.URI).Return(entity.DiagnosticSet{}, false)
		f.diagnostics.EXPECT().Await(gomock.Any(), f.root, f.doc.URI).
			DoAndReturn(func(ctx context.Context, _ string, _ uri.URI) (entity.DiagnosticSet, bool) {
				deadline, ok := ctx.Deadline()
				assert.True(t, ok)
				assert.WithinDuration(t, time.Now().Add(_maxDiagnosticsWait), deadline, time.Second)
				return entity.DiagnosticSet{Diagnostics: []protocol.Diagnostic{}}, true
			})

		body, isErr := f.call("diagnostics", map[string]any{"file": "src/lib.rs", "wait_ms": 60000})
		require.False(t, isErr, body)
		assert.Equal(t, true, body["reported"])
		assert.Empty(t, body["diagnostics"])
	})

	t.Run("nothing reported", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		f.diagnostics.EXPECT().Get(f.root, f.doc.URI).Return(entity.DiagnosticSet{}, false)

		body, isErr := f.call("diagnostics", map[string]any{"file": "src/lib.rs"})
		require.False(t, isErr, body)
		assert.Equal(t, false, body["reported"])
	})
}

func TestCheck(t *testing.T) {
	output := "src/lib.rs:2:23: error[E0425]: cannot find function `helpr`\nsrc/lib.rs:4:11: warning: unused variable: `x`\nerror: could not compile `demo`"

	tests := []struct {
		name       string
		onlyErrors bool
		want       string
	}{
		{name: "full output", want: "Checking demo\n" + output},
		{
			name:       "only errors",
			onlyErrors: true,
			want:       "src/lib.rs:2:23: error[E0425]: cannot find function `helpr`\nerror: could not compile `demo`",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.executor.EXPECT().Run(gomock.Any()).DoAndReturn(func(cmd *exec.Cmd) (string, string, int, error) {
				assert.Equal(t, f.root, cmd.Dir)
				assert.Equal(t, []string{"cargo", "check"}, cmd.Args)
				return "Checking demo\n", output + "\n", 101, nil
			})

			body, isErr := f.call("check", map[string]any{"file": "src/lib.rs", "only_errors": tt.onlyErrors})
			require.False(t, isErr, body)
			assert.EqualValues(t, 101, body["exit_code"])
			assert.Equal(t, tt.want, body["output"])
		})
	}
}

func TestCheckCannotRun(t *testing.T) {
	f := newFixture(t)
	f.executor.EXPECT().Run(gomock.Any()).Return("", "", -1, exec.ErrNotFound)

	body, isErr := f.call("check", map[string]any{"file": "src/lib.rs"})
	require.True(t, isErr)
	assert.Equal(t, bridgeerrors.KindUpstream, body["kind"])
	assert.Equal(t, f.root, body["project"])
	assert.Contains(t, body["message"], "running cargo")
}

func TestFileLines(t *testing.T) {
	f := newFixture(t)
	f.documents.EXPECT().Lines(f.project, f.lib).Return(entity.SplitLines(_libText), nil).Times(2)

	body, isErr := f.call("file_lines", map[string]any{"file": "src/lib.rs", "start_line": 2, "end_line": 2, "prefix": 1})
	require.False(t, isErr, body)
	assert.Equal(t, "fn main() {\n    let c = '🦀'; helper(1);", body["text"])

	body, isErr = f.call("file_lines", map[string]any{"file": "src/lib.rs", "start_line": 9, "end_line": 9})
	require.True(t, isErr)
	assert.Equal(t, bridgeerrors.KindInvalidArguments, body["kind"])

	body, isErr = f.call("file_lines", map[string]any{"file": "src/lib.rs", "start_line": 3, "end_line": 2})
	require.True(t, isErr)
	assert.Contains(t, body["message"], "end_line must not be less than start_line")
}

func TestProjects(t *testing.T) {
	f := newFixture(t)
	other := entity.Project{Root: filepath.Join(f.root, "..", "other")}
	f.projects.EXPECT().Projects().Return([]entity.Project{f.project, other})

	id := uuid.Must(uuid.NewV4())
	f.session.EXPECT().ID().Return(id)
	f.session.EXPECT().State().Return(analyzer.StateReady)
	f.session.EXPECT().Progress().Return([]string{"Indexing"})
	f.projects.EXPECT().Current(f.root).Return(f.session, true)
	f.projects.EXPECT().Current(other.Root).Return(nil, false)
	f.watcher.EXPECT().Degraded(f.root).Return(false)
	f.watcher.EXPECT().Degraded(other.Root).Return(true)
	f.documents.EXPECT().OpenCount(f.root).Return(2)
	f.documents.EXPECT().OpenCount(other.Root).Return(0)

	result, err := f.h.Invoke(context.Background(), "projects", nil)
	require.NoError(t, err)
	assert.Equal(t, []entity.ProjectStatus{
		{Root: f.root, Session: id.String(), State: "ready", Indexing: []string{"Indexing"}, OpenDocuments: 2},
		{Root: other.Root, State: "stopped", WatchDegraded: true},
	}, result)

	_, err = f.h.Invoke(context.Background(), "projects", map[string]any{"verbose": true})
	assert.True(t, bridgeerrors.IsInvalidArguments(err))
}

func TestErrors(t *testing.T) {
	t.Run("unknown tool", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.h.Invoke(context.Background(), "format", nil)
		assert.True(t, bridgeerrors.IsUnknownTool(err))

		body, isErr := f.call("format", nil)
		assert.True(t, isErr)
		assert.Equal(t, bridgeerrors.KindUnknownTool, body["kind"])
	})

	t.Run("invalid arguments never reach the analyzer", func(t *testing.T) {
		f := newFixture(t)
		body, isErr := f.call("definition", map[string]any{"file": "src/lib.rs"})
		assert.True(t, isErr)
		assert.Equal(t, bridgeerrors.KindInvalidArguments, body["kind"])
		assert.Equal(t, false, body["retryable"])
	})

	t.Run("dead session is retryable", func(t *testing.T) {
		f := newFixture(t)
		f.documents.EXPECT().EnsureOpen(gomock.Any(), f.project, f.lib).
			Return(entity.Document{}, &bridgeerrors.SessionDeadError{Project: f.root, Reason: errors.New("exit status 1")})

		body, isErr := f.call("hover", map[string]any{"file": "src/lib.rs", "line": 1, "column": 1})
		assert.True(t, isErr)
		assert.Equal(t, map[string]interface{}{
			"kind":      bridgeerrors.KindUpstream,
			"cause":     bridgeerrors.CauseSessionDead,
			"tool":      "hover",
			"project":   f.root,
			"path":      f.lib,
			"message":   (&bridgeerrors.SessionDeadError{Project: f.root, Reason: errors.New("exit status 1")}).Error(),
			"retryable": true,
		}, body)

		var found bool
		for _, c := range f.stats.Snapshot().Counters() {
			if c.Name() == "testing.tools.errors" && c.Tags()["tool"] == "hover" {
				assert.Equal(t, bridgeerrors.CauseSessionDead, c.Tags()["cause"])
				assert.EqualValues(t, 1, c.Value())
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("file outside every project", func(t *testing.T) {
		f := newFixture(t)
		body, isErr := f.call("hover", map[string]any{"file": "/elsewhere/x.rs", "line": 1, "column": 1})
		assert.True(t, isErr)
		assert.Equal(t, bridgeerrors.KindInvalidArguments, body["kind"])
		assert.Contains(t, body["message"], "/elsewhere/x.rs")
		assert.Equal(t, false, body["retryable"])
		assert.NotContains(t, body, "cause")
	})

	t.Run("path alias is reported with its project", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen()
		timeout := &bridgeerrors.TimeoutError{Method: protocol.MethodTextDocumentDefinition, After: time.Second}
		f.session.EXPECT().Call(gomock.Any(), protocol.MethodTextDocumentDefinition, gomock.Any(), gomock.Any()).Return(timeout)

		body, isErr := f.call("definition", map[string]any{"path": "src/lib.rs", "line": 2, "column": 18})
		assert.True(t, isErr)
		assert.Equal(t, bridgeerrors.KindUpstream, body["kind"])
		assert.Equal(t, bridgeerrors.CauseTimeout, body["cause"])
		assert.Equal(t, f.root, body["project"])
		assert.Equal(t, f.lib, body["path"])
		assert.Equal(t, true, body["retryable"])
	})
}

func TestEmptyDocument(t *testing.T) {
	f := newFixture(t)
	f.doc.Text = ""
	f.expectOpen()
	f.respond(protocol.MethodTextDocumentDocumentSymbol, "[]", nil)

	body, isErr := f.call("hover", map[string]any{"file": "src/lib.rs", "line": 1, "symbol": "foo"})
	require.True(t, isErr)
	assert.Equal(t, bridgeerrors.KindInvalidArguments, body["kind"])
	assert.Contains(t, body["message"], `symbol "foo" does not appear on line 1`)

	body, isErr = f.call("hover", map[string]any{"file": "src/lib.rs", "line": 2, "symbol": "foo"})
	require.True(t, isErr)
	assert.Contains(t, body["message"], "line 2 is out of range 1-1")
}

func TestOpenAcrossRespawn(t *testing.T) {
	stale := uuid.Must(uuid.NewV4())

	t.Run("reopens in the replacement session", func(t *testing.T) {
		f := newFixture(t)
		old := f.doc
		old.Session = stale
		gomock.InOrder(
			f.documents.EXPECT().EnsureOpen(gomock.Any(), f.project, f.lib).Return(old, nil),
			f.documents.EXPECT().EnsureOpen(gomock.Any(), f.project, f.lib).Return(f.doc, nil),
		)
		f.projects.EXPECT().Session(gomock.Any(), f.root).Return(f.session, nil).Times(2)
		f.session.EXPECT().ID().Return(f.doc.Session).AnyTimes()
		f.respond(protocol.MethodTextDocumentHover, `{"contents":"fn main()"}`, nil)

		body, isErr := f.call("hover", map[string]any{"file": "src/lib.rs", "line": 1, "column": 4})
		require.False(t, isErr, body)
		assert.Equal(t, "fn main()", body["contents"])
	})

	t.Run("gives up when the session keeps changing", func(t *testing.T) {
		f := newFixture(t)
		old := f.doc
		old.Session = stale
		f.documents.EXPECT().EnsureOpen(gomock.Any(), f.project, f.lib).Return(old, nil).Times(2)
		f.projects.EXPECT().Session(gomock.Any(), f.root).Return(f.session, nil).Times(2)
		f.session.EXPECT().ID().Return(f.doc.Session).AnyTimes()
		f.session.EXPECT().Err().Return(nil)

		body, isErr := f.call("hover", map[string]any{"file": "src/lib.rs", "line": 1, "column": 4})
		require.True(t, isErr)
		assert.Equal(t, bridgeerrors.CauseSessionDead, body["cause"])
		assert.Equal(t, true, body["retryable"])
	})
}
