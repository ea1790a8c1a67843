package logfilewriter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/serverinfofile"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	_fmtOutputKey = "output:%s"
	_outputDir    = "lsp-mcp"
)

// Module provides the OutputFactory.
var Module = fx.Provide(New)

// OutputFactory opens human readable output files that are independent of overall server logging,
// such as the stderr stream of an analyzer subprocess.
// Each file path is published in the server info file so the user can tail it.
type OutputFactory interface {
	Open(name string) (io.WriteCloser, error)
}

// Params define the dependencies for the OutputFactory.
type Params struct {
	fx.In

	FS             fs.BridgeFS
	Lifecycle      fx.Lifecycle
	ServerInfoFile serverinfofile.ServerInfoFile
}

type factory struct {
	fs             fs.BridgeFS
	serverInfoFile serverinfofile.ServerInfoFile
	dir            string

	mu    sync.Mutex
	files []string
}

// New creates an OutputFactory. All files it created are removed when the application stops.
func New(p Params) OutputFactory {
	f := &factory{
		fs:             p.FS,
		serverInfoFile: p.ServerInfoFile,
		dir:            filepath.Join(os.TempDir(), _outputDir),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: f.onStop,
	})
	return f
}

// Open creates a new output file for name.
func (f *factory) Open(name string) (io.WriteCloser, error) {
	if err := f.fs.MkdirAll(f.dir); err != nil {
		return nil, err
	}

	logFile, err := f.fs.TempFile(f.dir, "output-*.log")
	if err != nil {
		return nil, err
	}

	if err := f.serverInfoFile.UpdateField(fmt.Sprintf(_fmtOutputKey, name), logFile.Name()); err != nil {
		logFile.Close()
		return nil, err
	}

	f.mu.Lock()
	f.files = append(f.files, logFile.Name())
	f.mu.Unlock()

	// Write via a logger for formatting and timestamps.
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(logFile),
		zap.InfoLevel,
	)

	return &loggerWriter{logger: zap.New(core).Sugar(), file: logFile}, nil
}

func (f *factory) onStop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	for _, name := range f.files {
		if rmErr := f.fs.Remove(name); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
	}
	f.files = nil
	return err
}

type loggerWriter struct {
	logger *zap.SugaredLogger
	file   *os.File

	mu      sync.Mutex
	partial []byte
}

// Write implements the io.Writer interface by sending each complete line to the logger.
// An unterminated trailing line is held until the next write or Close.
func (o *loggerWriter) Write(p []byte) (n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.partial = append(o.partial, p...)
	for {
		idx := bytes.IndexByte(o.partial, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(o.partial[:idx], "\r")
		if len(line) > 0 {
			o.logger.Info(string(line))
		}
		o.partial = o.partial[idx+1:]
	}

	return len(p), nil
}

// Close flushes any partial line and closes the file.
func (o *loggerWriter) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.partial) > 0 {
		o.logger.Info(string(o.partial))
		o.partial = nil
	}
	_ = o.logger.Sync()
	return o.file.Close()
}
