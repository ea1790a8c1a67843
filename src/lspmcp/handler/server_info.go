package handler

import (
	"fmt"
	"os"
	"strings"

	"github.com/uber/lsp-mcp/src/lspmcp/internal/mcpfx"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/serverinfofile"
	"github.com/uber/lsp-mcp/src/lspmcp/repository/project"
)

const (
	_fmtInfoFileKey     = "%s-%s"
	_infoFileKeyMCP     = "mcp"
	_infoFileTransport  = "transport"
	_infoFileKeyProject = "projects"
	_infoFileRoots      = "roots"
)

// outputConnectionInfo records the transport and the bridged project roots in the server info file.
func outputConnectionInfo(projects project.Repository, server mcpfx.Server, serverInfoFile serverinfofile.ServerInfoFile) error {
	if err := serverInfoFile.UpdateField(fmt.Sprintf(_fmtInfoFileKey, _infoFileKeyMCP, _infoFileTransport), server.Transport()); err != nil {
		return fmt.Errorf("recording transport: %w", err)
	}

	registered := projects.Projects()
	roots := make([]string, 0, len(registered))
	for _, p := range registered {
		roots = append(roots, p.Root)
	}
	if err := serverInfoFile.UpdateField(fmt.Sprintf(_fmtInfoFileKey, _infoFileKeyProject, _infoFileRoots), strings.Join(roots, string(os.PathListSeparator))); err != nil {
		return fmt.Errorf("recording project roots: %w", err)
	}
	return nil
}
