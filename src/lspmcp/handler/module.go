package handler

import (
	"github.com/uber/lsp-mcp/src/lspmcp/controller"
	"github.com/uber/lsp-mcp/src/lspmcp/handler/tools"
	"github.com/uber/lsp-mcp/src/lspmcp/repository/project"
	"go.uber.org/fx"
)

// Module registers the tools with the MCP server and starts the controllers behind them.
var Module = fx.Options(
	controller.Module,
	project.Module,
	fx.Provide(tools.New),
	fx.Invoke(func(tools.Handler) {}),
	fx.Invoke(outputConnectionInfo),
)
