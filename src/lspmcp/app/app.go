package app

import (
	"context"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer"
	"github.com/uber/lsp-mcp/src/lspmcp/handler"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/clock"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/core"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/executor"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/logfilewriter"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/markup"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/mcpfx"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/serverinfofile"
	"go.uber.org/fx"
)

// Module defines the lsp-mcp application module.
var Module = fx.Options(
	analyzer.Module, // outbounds
	handler.Module,  // inbounds
	mcpfx.Module,
	fs.Module,
	clock.Module,
	executor.Module,
	serverinfofile.Module,
	logfilewriter.Module,
	markup.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "lsp-mcp",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        EnvLocal,
			RuntimeEnvironment: EnvLocal,
		}
	}),
)
