package controller

import (
	"github.com/uber/lsp-mcp/src/lspmcp/controller/diagnostics"
	"github.com/uber/lsp-mcp/src/lspmcp/controller/documents"
	"github.com/uber/lsp-mcp/src/lspmcp/controller/watcher"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(diagnostics.New),
	fx.Provide(documents.New),
	fx.Provide(watcher.New),
)
