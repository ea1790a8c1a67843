package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/mapper"
	"go.lsp.dev/protocol"
)

// Edit is one replacement within a file.
type Edit struct {
	Span
	NewText string `json:"new_text"`
}

// FileChange is the set of edits a rename makes to one file, with a line diff preview.
type FileChange struct {
	File  string `json:"file"`
	Edits []Edit `json:"edits"`
	Diff  string `json:"diff"`
}

// RenameResult is returned by the rename tool.
type RenameResult struct {
	Changes            []FileChange `json:"changes"`
	ResourceOperations []string     `json:"resource_operations,omitempty"`
	Applied            bool         `json:"applied"`
}

// renamedFile is a file the rename touches, with its content before and after.
type renamedFile struct {
	project *entity.Project
	path    string
	before  string
	after   string
	change  FileChange
}

// rename runs prepareRename, then rename, and previews or applies the resulting edits.
func (h *handler) rename(ctx context.Context, arguments map[string]any) (interface{}, error) {
	var a renameArgs
	if err := decode(_toolRename, arguments, &a); err != nil {
		return nil, err
	}
	pos, err := h.locate(ctx, _toolRename, a.positionArgs)
	if err != nil {
		return nil, err
	}

	var prepared json.RawMessage
	prepare := protocol.PrepareRenameParams{TextDocumentPositionParams: pos.params()}
	if err := pos.session.Call(ctx, protocol.MethodTextDocumentPrepareRename, prepare, &prepared); err != nil {
		return nil, err
	}
	if isNullResult(prepared) {
		line, column := mapper.NewTextMapper(pos.doc.Text).FromPosition(pos.pos)
		return nil, &bridgeerrors.InvalidArgumentsError{
			Tool:     _toolRename,
			Problems: []string{fmt.Sprintf("nothing can be renamed at line %d column %d", line, column)},
		}
	}

	var raw json.RawMessage
	params := protocol.RenameParams{TextDocumentPositionParams: pos.params(), NewName: a.NewName}
	if err := pos.session.Call(ctx, protocol.MethodTextDocumentRename, params, &raw); err != nil {
		return nil, err
	}
	changes, err := mapper.ResultToWorkspaceChanges(raw)
	if err != nil {
		return nil, bridgeerrors.NewProtocolError(protocol.MethodTextDocumentRename, err)
	}

	result := RenameResult{Changes: []FileChange{}}
	if changes == nil {
		return result, nil
	}
	result.ResourceOperations = changes.ResourceOperations

	files := make([]renamedFile, 0, len(changes.Files))
	for _, fe := range changes.Files {
		f, err := h.preview(ctx, fe)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		result.Changes = append(result.Changes, f.change)
	}

	if a.Apply {
		if err := h.apply(ctx, files, changes.ResourceOperations); err != nil {
			return nil, err
		}
		result.Applied = true
	}
	return result, nil
}

// preview computes a file's content after the edits. Files in a project are read through the
// document store so that the edits apply to the text the analyzer computed them against.
func (h *handler) preview(ctx context.Context, fe mapper.FileEdits) (renamedFile, error) {
	f := renamedFile{path: fe.URI.Filename()}
	if p, err := h.projects.Resolve(f.path); err == nil {
		doc, err := h.documents.EnsureOpen(ctx, p, f.path)
		if err != nil {
			return renamedFile{}, err
		}
		f.project = &p
		f.before = doc.Text
	} else {
		data, err := h.fs.ReadFile(f.path)
		if err != nil {
			return renamedFile{}, fmt.Errorf("reading %s: %w", f.path, err)
		}
		f.before = string(data)
	}

	after, err := mapper.ApplyTextEdits(f.before, fe.Edits)
	if err != nil {
		return renamedFile{}, bridgeerrors.NewProtocolError(protocol.MethodTextDocumentRename, err)
	}
	f.after = after

	m := mapper.NewTextMapper(f.before)
	f.change = FileChange{File: f.path, Edits: make([]Edit, 0, len(fe.Edits)), Diff: mapper.LineDiff(f.before, after)}
	for _, e := range fe.Edits {
		f.change.Edits = append(f.change.Edits, Edit{Span: span(m, e.Range), NewText: e.NewText})
	}
	return f, nil
}

// apply writes every file. Nothing is written unless all files are inside a project
// and the rename needs no file operations.
func (h *handler) apply(ctx context.Context, files []renamedFile, operations []string) error {
	if len(operations) > 0 {
		return &bridgeerrors.InvalidArgumentsError{
			Tool:     _toolRename,
			Problems: []string{fmt.Sprintf("the rename also needs %d file operations, which are not performed; rerun without apply", len(operations))},
		}
	}
	for _, f := range files {
		if f.project == nil {
			return &bridgeerrors.ProjectNotFoundError{Path: f.path}
		}
	}
	for _, f := range files {
		if f.before == f.after {
			continue
		}
		if _, err := h.documents.ApplyLocalEdit(ctx, *f.project, f.path, f.after); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
	}
	return nil
}

func isNullResult(raw json.RawMessage) bool {
	s := string(raw)
	return s == "" || s == "null"
}
