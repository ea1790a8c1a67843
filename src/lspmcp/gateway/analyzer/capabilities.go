package analyzer

import (
	"os"

	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"go.lsp.dev/protocol"
)

const (
	_clientName    = "lsp-mcp"
	_clientVersion = "0.1.0"
)

func workspaceFolder(project entity.Project) protocol.WorkspaceFolder {
	return protocol.WorkspaceFolder{URI: string(project.URI()), Name: project.Name()}
}

// initializeParams describes what the bridge can consume.
// Symbols are requested flat, locations may come back as links, and diagnostics may carry a version.
func initializeParams(project entity.Project) *protocol.InitializeParams {
	return &protocol.InitializeParams{
		ProcessID:  int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{Name: _clientName, Version: _clientVersion},
		RootPath:   project.Root,
		RootURI:    project.URI(),
		Capabilities: protocol.ClientCapabilities{
			Workspace: &protocol.WorkspaceClientCapabilities{
				ApplyEdit:             false,
				DidChangeWatchedFiles: &protocol.DidChangeWatchedFilesWorkspaceClientCapabilities{},
				WorkspaceFolders:      true,
				Configuration:         true,
			},
			TextDocument: &protocol.TextDocumentClientCapabilities{
				Synchronization: &protocol.TextDocumentSyncClientCapabilities{},
				Hover: &protocol.HoverTextDocumentClientCapabilities{
					ContentFormat: []protocol.MarkupKind{protocol.Markdown, protocol.PlainText},
				},
				Definition:     &protocol.DefinitionTextDocumentClientCapabilities{LinkSupport: true},
				TypeDefinition: &protocol.TypeDefinitionTextDocumentClientCapabilities{LinkSupport: true},
				References:     &protocol.ReferencesTextDocumentClientCapabilities{},
				DocumentSymbol: &protocol.DocumentSymbolClientCapabilities{HierarchicalDocumentSymbolSupport: false},
				PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{
					RelatedInformation: true,
					VersionSupport:     true,
				},
				Rename: &protocol.RenameClientCapabilities{PrepareSupport: true},
			},
			Window: &protocol.WindowClientCapabilities{WorkDoneProgress: true},
		},
		WorkspaceFolders: []protocol.WorkspaceFolder{workspaceFolder(project)},
	}
}
