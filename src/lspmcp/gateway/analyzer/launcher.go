package analyzer

import (
	"io"
	"os"
	"os/exec"

	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/executor"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/logfilewriter"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Process is a running analyzer: its stdout is read and its stdin is written through the ReadWriteCloser.
type Process interface {
	io.ReadWriteCloser
	// Wait blocks until the process exits.
	Wait() error
	// Kill terminates the process immediately.
	Kill() error
}

// Launcher starts analyzer processes.
type Launcher interface {
	Launch(project entity.Project) (Process, error)
}

// LauncherParams are the dependencies of the subprocess launcher.
type LauncherParams struct {
	fx.In

	Executor executor.Executor
	Outputs  logfilewriter.OutputFactory
	Logger   *zap.SugaredLogger
}

type execLauncher struct {
	executor executor.Executor
	outputs  logfilewriter.OutputFactory
	logger   *zap.SugaredLogger
}

// NewLauncher returns a Launcher that runs the project's configured analyzer command in the project root.
// The analyzer's stderr is copied to an output file named after the project.
func NewLauncher(p LauncherParams) Launcher {
	return &execLauncher{
		executor: p.Executor,
		outputs:  p.Outputs,
		logger:   p.Logger.With("component", "launcher"),
	}
}

func (l *execLauncher) Launch(project entity.Project) (Process, error) {
	command := project.Analyzer.Command
	if command == "" {
		return nil, &bridgeerrors.SpawnFailedError{Command: command, Err: bridgeerrors.New("no analyzer command configured")}
	}

	cmd := exec.Command(command, project.Analyzer.Args...)
	cmd.Dir = project.Root
	cmd.Env = append(os.Environ(), project.Analyzer.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &bridgeerrors.SpawnFailedError{Command: command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &bridgeerrors.SpawnFailedError{Command: command, Err: err}
	}

	var stderr io.WriteCloser
	if stderr, err = l.outputs.Open(project.Name()); err != nil {
		l.logger.Warnw("analyzer stderr will be discarded", "project", project.Root, "error", err)
		stderr = nopWriteCloser{io.Discard}
	}
	cmd.Stderr = stderr

	if err := l.executor.Start(cmd); err != nil {
		stderr.Close()
		return nil, &bridgeerrors.SpawnFailedError{Command: command, Err: err}
	}
	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.WriteCloser
}

func (p *execProcess) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *execProcess) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *execProcess) Close() error {
	return multierr.Append(p.stdin.Close(), p.stdout.Close())
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	p.stderr.Close()
	return err
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !bridgeerrors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
