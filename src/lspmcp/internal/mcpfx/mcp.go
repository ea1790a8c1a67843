package mcpfx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/serverinfofile"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKey = "mcp"
	_outputKey = "mcp-address"

	_defaultName = "lsp-mcp"
)

// Transports the tool endpoint can be served over.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Version is reported to clients during initialization. It is set at build time.
var Version = "dev"

// Module is an fx module serving the tool protocol.
var Module = fx.Provide(New)

// Server is the tool endpoint. Tools must be added before the application starts.
type Server interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
	// Transport returns the configured transport.
	Transport() string
}

// Config selects how the tool endpoint is served.
type Config struct {
	Name         string `yaml:"name"`
	Transport    string `yaml:"transport"`
	Address      string `yaml:"address"`
	BaseURL      string `yaml:"baseURL"`
	Instructions string `yaml:"instructions"`
}

// Params define values to be used by the tool endpoint.
type Params struct {
	fx.In

	Config         config.Provider
	Lifecycle      fx.Lifecycle
	Shutdowner     fx.Shutdowner
	Logger         *zap.SugaredLogger
	ServerInfoFile serverinfofile.ServerInfoFile
}

type module struct {
	cfg            Config
	server         *server.MCPServer
	shutdowner     fx.Shutdowner
	logger         *zap.SugaredLogger
	serverInfoFile serverinfofile.ServerInfoFile

	in  io.Reader
	out io.Writer

	cancel context.CancelFunc
	done   chan struct{}
	sse    *server.SSEServer
}

// New creates the tool endpoint. It starts serving when the application starts.
func New(p Params) (Server, error) {
	if p.Lifecycle == nil || p.Config == nil {
		return nil, errors.New("required parameters are missing")
	}

	cfg, err := LoadConfig(p.Config)
	if err != nil {
		return nil, err
	}

	m := newModule(cfg, p.Shutdowner, p.Logger.With("component", "mcp"), p.ServerInfoFile)
	p.Lifecycle.Append(fx.Hook{
		OnStart: m.OnStart,
		OnStop:  m.OnStop,
	})
	return m, nil
}

func newModule(cfg Config, shutdowner fx.Shutdowner, logger *zap.SugaredLogger, info serverinfofile.ServerInfoFile) *module {
	opts := []server.ServerOption{
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	}
	if cfg.Instructions != "" {
		opts = append(opts, server.WithInstructions(cfg.Instructions))
	}
	return &module{
		cfg:            cfg,
		server:         server.NewMCPServer(cfg.Name, Version, opts...),
		shutdowner:     shutdowner,
		logger:         logger,
		serverInfoFile: info,
		in:             os.Stdin,
		out:            os.Stdout,
	}
}

// LoadConfig reads the "mcp" configuration.
func LoadConfig(cfg config.Provider) (Config, error) {
	c := Config{Name: _defaultName, Transport: TransportStdio}
	if err := cfg.Get(_configKey).Populate(&c); err != nil {
		return Config{}, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}

	switch c.Transport {
	case TransportStdio:
	case TransportSSE:
		if c.Address == "" {
			return Config{}, fmt.Errorf("missing field %q in config", _configKey+".address")
		}
	default:
		return Config{}, fmt.Errorf("unsupported transport %q", c.Transport)
	}
	return c, nil
}

func (m *module) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	m.server.AddTool(tool, handler)
}

func (m *module) Transport() string {
	return m.cfg.Transport
}

// OnStart begins serving the configured transport.
func (m *module) OnStart(ctx context.Context) error {
	if m.cfg.Transport == TransportSSE {
		return m.startSSE()
	}
	m.startStdio()
	return nil
}

// OnStop stops serving and waits for the transport to wind down.
func (m *module) OnStop(ctx context.Context) error {
	if m.sse != nil {
		return m.sse.Shutdown(ctx)
	}
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startStdio serves a single client over standard input and output.
// The application shuts down once the client closes its end.
func (m *module) startStdio() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	stdio := server.NewStdioServer(m.server)
	stdio.SetErrorLogger(zap.NewStdLog(m.logger.Desugar()))

	go func() {
		defer close(m.done)
		err := stdio.Listen(ctx, m.in, m.out)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.logger.Errorw("stdio transport failed", "error", err)
		} else {
			m.logger.Infow("client closed the stdio transport")
		}
		if m.shutdowner != nil {
			if err := m.shutdowner.Shutdown(); err != nil {
				m.logger.Warnw("failed to request shutdown", "error", err)
			}
		}
	}()
	m.logger.Infow("serving tools", "transport", TransportStdio)
}

// startSSE binds the address before returning so that a port conflict fails startup.
func (m *module) startSSE() error {
	ln, err := net.Listen("tcp", m.cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.cfg.Address, err)
	}
	addr := ln.Addr().String()

	baseURL := m.cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://" + addr
	}
	srv := &http.Server{}
	m.sse = server.NewSSEServer(m.server, server.WithBaseURL(baseURL), server.WithHTTPServer(srv))
	srv.Handler = m.sse

	if err := m.serverInfoFile.UpdateField(_outputKey, addr); err != nil {
		ln.Close()
		return err
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Errorw("sse transport failed", "error", err)
		}
	}()
	m.logger.Warnw("serving tools", "transport", TransportSSE, "address", addr)
	return nil
}
