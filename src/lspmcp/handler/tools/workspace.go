package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/mapper"
)

// DiagnosticEntry is one issue reported by the diagnostics tool.
type DiagnosticEntry struct {
	Severity string `json:"severity,omitempty"`
	Span
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
	Code    string `json:"code,omitempty"`
}

// DiagnosticsResult is returned by the diagnostics tool.
// Version is the document version the bridge last sent. The analyzer's report may lag behind it.
type DiagnosticsResult struct {
	Version     int32             `json:"version"`
	Reported    bool              `json:"reported"`
	Diagnostics []DiagnosticEntry `json:"diagnostics"`
}

// CheckResult is returned by the check tool.
type CheckResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// FileLinesResult is returned by the file_lines tool.
type FileLinesResult struct {
	Text string `json:"text"`
}

func (h *handler) fileDiagnostics(ctx context.Context, arguments map[string]any) (interface{}, error) {
	var a diagnosticsArgs
	if err := decode(_toolDiagnostics, arguments, &a); err != nil {
		return nil, err
	}
	t, err := h.open(ctx, a.File)
	if err != nil {
		return nil, err
	}

	set, ok := h.diagnostics.Get(t.project.Root, t.doc.URI)
	if !ok && a.WaitMS > 0 {
		wait := min(time.Duration(a.WaitMS)*time.Millisecond, _maxDiagnosticsWait)
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		set, ok = h.diagnostics.Await(waitCtx, t.project.Root, t.doc.URI)
		cancel()
	}

	result := DiagnosticsResult{Version: t.doc.Version, Reported: ok, Diagnostics: []DiagnosticEntry{}}
	m := mapper.NewTextMapper(t.doc.Text)
	for _, d := range set.Diagnostics {
		entry := DiagnosticEntry{
			Span:    span(m, d.Range),
			Message: d.Message,
			Source:  d.Source,
		}
		if d.Severity != 0 {
			entry.Severity = d.Severity.String()
		}
		if d.Code != nil {
			entry.Code = fmt.Sprint(d.Code)
		}
		result.Diagnostics = append(result.Diagnostics, entry)
	}
	return result, nil
}

// check runs the project's check command in its root.
func (h *handler) check(ctx context.Context, arguments map[string]any) (interface{}, error) {
	var a checkArgs
	if err := decode(_toolCheck, arguments, &a); err != nil {
		return nil, err
	}
	p, err := h.projects.Resolve(a.File)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, p.Check.Command, p.Check.Args...)
	cmd.Dir = p.Root

	stdout, stderr, exitCode, err := h.executor.Run(cmd)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &bridgeerrors.TimeoutError{Method: _toolCheck, After: h.checkTimeout}
	}
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", p.Check.Command, err)
	}

	output := joinOutput(stdout, stderr)
	if a.OnlyErrors {
		output = errorLines(output)
	}
	return CheckResult{ExitCode: exitCode, Output: output}, nil
}

func joinOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}

// errorLines keeps the lines that report an error, in either the short or the human-readable format.
func errorLines(output string) string {
	var kept []string
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "error") || strings.Contains(line, ": error") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func (h *handler) fileLines(_ context.Context, arguments map[string]any) (interface{}, error) {
	var a fileLinesArgs
	if err := decode(_toolFileLines, arguments, &a); err != nil {
		return nil, err
	}
	p, err := h.projects.Resolve(a.File)
	if err != nil {
		return nil, err
	}
	lines, err := h.documents.Lines(p, p.AbsolutePath(a.File))
	if err != nil {
		return nil, err
	}
	text, err := mapper.FileLines(lines, a.StartLine, a.EndLine, a.Prefix, a.Suffix)
	if err != nil {
		return nil, &bridgeerrors.InvalidArgumentsError{Tool: _toolFileLines, Problems: []string{err.Error()}}
	}
	return FileLinesResult{Text: text}, nil
}

// listProjects reports every project without starting any analyzer.
func (h *handler) listProjects(_ context.Context, arguments map[string]any) (interface{}, error) {
	if err := decode(_toolProjects, arguments, &noArgs{}); err != nil {
		return nil, err
	}

	projects := h.projects.Projects()
	statuses := make([]entity.ProjectStatus, 0, len(projects))
	for _, p := range projects {
		status := entity.ProjectStatus{
			Root:          p.Root,
			State:         "stopped",
			WatchDegraded: h.watcher.Degraded(p.Root),
			OpenDocuments: h.documents.OpenCount(p.Root),
		}
		if s, ok := h.projects.Current(p.Root); ok {
			status.Session = s.ID().String()
			status.State = string(s.State())
			status.Indexing = s.Progress()
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
