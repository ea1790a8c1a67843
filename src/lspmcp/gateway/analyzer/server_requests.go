package analyzer

import (
	"context"
	"encoding/json"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

const (
	_progressBegin = "begin"
	_progressEnd   = "end"
)

// answer replies to a request initiated by the analyzer. It runs off the read loop.
// The bridge has no editor behind it, so every request gets the most neutral valid reply.
func (s *session) answer(ctx context.Context, call *jsonrpc2.Call) {
	var (
		result  interface{}
		callErr error
	)

	switch call.Method() {
	case protocol.MethodWorkDoneProgressCreate,
		protocol.MethodClientRegisterCapability,
		protocol.MethodClientUnregisterCapability,
		protocol.MethodWindowShowMessageRequest:
		result = nil
	case protocol.MethodWorkspaceConfiguration:
		var params protocol.ConfigurationParams
		if err := json.Unmarshal(call.Params(), &params); err != nil {
			callErr = jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
			break
		}
		result = make([]interface{}, len(params.Items))
	case protocol.MethodWorkspaceApplyEdit:
		result = &protocol.ApplyWorkspaceEditResponse{Applied: false}
	case protocol.MethodWorkspaceWorkspaceFolders:
		result = []protocol.WorkspaceFolder{workspaceFolder(s.project)}
	default:
		callErr = jsonrpc2.NewError(jsonrpc2.MethodNotFound, "method not supported: "+call.Method())
	}

	resp, err := jsonrpc2.NewResponse(call.ID(), result, callErr)
	if err != nil {
		s.logger.Errorw("building reply to analyzer", "method", call.Method(), "error", err)
		return
	}
	if err := s.write(ctx, resp); err != nil {
		s.logger.Debugw("replying to analyzer", "method", call.Method(), "error", err)
	}
}

type progressParams struct {
	Token json.RawMessage `json:"token"`
	Value struct {
		Kind  string `json:"kind"`
		Title string `json:"title"`
	} `json:"value"`
}

func (s *session) trackProgress(raw json.RawMessage) {
	var p progressParams
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Debugw("ignoring malformed progress", "error", err)
		return
	}

	token := string(p.Token)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p.Value.Kind {
	case _progressBegin:
		s.progress[token] = p.Value.Title
	case _progressEnd:
		delete(s.progress, token)
	}
}

func (s *session) logAnalyzerMessage(raw json.RawMessage) {
	var p protocol.LogMessageParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.logger.Debugw("analyzer log", "type", p.Type.String(), "message", p.Message)
}
