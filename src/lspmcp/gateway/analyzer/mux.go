package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

const _methodCancelRequest = "$/cancelRequest"

type pendingCall struct {
	method string
	// ch is buffered so the read loop never blocks on a caller that already gave up.
	ch chan *jsonrpc2.Response
}

type subscriber struct {
	id      int
	handler NotificationHandler
}

func (s *session) Call(ctx context.Context, method string, params, result interface{}) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	return s.call(ctx, method, params, result)
}

func (s *session) Notify(ctx context.Context, method string, params interface{}) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	return s.notify(ctx, method, params)
}

func (s *session) call(ctx context.Context, method string, params, result interface{}) error {
	id, pc, err := s.register(method)
	if err != nil {
		return err
	}

	msg, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		s.forget(id)
		return fmt.Errorf("encoding %s params: %w", method, err)
	}

	start := s.clock.Now()
	if err := s.write(ctx, msg); err != nil {
		s.forget(id)
		return err
	}
	s.stats.Counter("requests").Inc(1)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	select {
	case resp := <-pc.ch:
		s.stats.Timer("latency").Record(s.clock.Now().Sub(start))
		return decodeResponse(method, resp, result)
	case <-s.dead:
		return s.deadError()
	case <-ctx.Done():
	}

	if !s.abandon(id) {
		// The response raced the deadline, or the session died meanwhile.
		select {
		case resp := <-pc.ch:
			return decodeResponse(method, resp, result)
		default:
			return s.deadError()
		}
	}
	if err := s.notify(context.Background(), _methodCancelRequest, &protocol.CancelParams{ID: &id}); err != nil {
		s.logger.Debugw("sending cancellation", "method", method, "error", err)
	}

	if ctx.Err() == context.DeadlineExceeded {
		s.stats.Counter("timeouts").Inc(1)
		return &bridgeerrors.TimeoutError{Method: method, After: s.clock.Now().Sub(start)}
	}
	return ctx.Err()
}

func (s *session) notify(ctx context.Context, method string, params interface{}) error {
	msg, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}
	return s.write(ctx, msg)
}

// write sends one framed message. A failed write means the pipe is broken and the session is dead.
func (s *session) write(ctx context.Context, msg jsonrpc2.Message) error {
	select {
	case <-s.dead:
		return s.deadError()
	default:
	}

	s.writeMu.Lock()
	_, err := s.stream.Write(ctx, msg)
	s.writeMu.Unlock()
	if err != nil {
		s.markDead(fmt.Errorf("writing to analyzer: %w", err))
		return s.deadError()
	}
	return nil
}

func (s *session) register(method string) (jsonrpc2.ID, *pendingCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDead {
		return jsonrpc2.ID{}, nil, &bridgeerrors.SessionDeadError{Project: s.project.Root, Reason: s.deadErr}
	}

	s.nextID++
	id := jsonrpc2.NewNumberID(s.nextID)
	pc := &pendingCall{method: method, ch: make(chan *jsonrpc2.Response, 1)}
	s.pending[id] = pc
	return id, pc, nil
}

func (s *session) forget(id jsonrpc2.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// abandon stops waiting for id but remembers it for the retention window so a late response is dropped quietly.
// It returns false if the call is no longer pending.
func (s *session) abandon(id jsonrpc2.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	s.abandoned[id] = s.clock.AfterFunc(s.cfg.LateResponseRetention, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.abandoned, id)
	})
	return true
}

func (s *session) resolve(resp *jsonrpc2.Response) {
	id := resp.ID()

	s.mu.Lock()
	pc, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
		s.mu.Unlock()
		pc.ch <- resp
		return
	}
	timer, late := s.abandoned[id]
	if late {
		timer.Stop()
		delete(s.abandoned, id)
	}
	s.mu.Unlock()

	if late {
		s.stats.Counter("late_responses").Inc(1)
		s.logger.Debugw("discarding late response", "id", fmt.Sprint(id))
		return
	}
	s.stats.Counter("protocol_errors").Inc(1)
	s.logger.Warnw("response for unknown request", "id", fmt.Sprint(id))
}

func (s *session) Subscribe(method string, handler NotificationHandler) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subscribers[method] = append(s.subscribers[method], subscriber{id: id, handler: handler})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[method]
		for i, sub := range subs {
			if sub.id == id {
				s.subscribers[method] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (s *session) dispatch(n *jsonrpc2.Notification) {
	switch n.Method() {
	case protocol.MethodProgress:
		s.trackProgress(n.Params())
	case protocol.MethodWindowLogMessage:
		s.logAnalyzerMessage(n.Params())
	}

	s.mu.Lock()
	subs := append([]subscriber(nil), s.subscribers[n.Method()]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.handler(n.Params())
	}
}

func (s *session) Progress() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	titles := make([]string, 0, len(s.progress))
	for _, title := range s.progress {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

func decodeResponse(method string, resp *jsonrpc2.Response, result interface{}) error {
	if err := resp.Err(); err != nil {
		return bridgeerrors.NewProtocolError(method, err)
	}
	raw := resp.Result()
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &bridgeerrors.ProtocolError{Method: method, Message: fmt.Sprintf("decoding result: %v", err)}
	}
	return nil
}

// isDecodeError reports whether a read failed on a well framed but malformed message.
// Such errors leave the stream aligned, unlike I/O and framing failures.
func isDecodeError(err error) bool {
	return bridgeerrors.Is(err, jsonrpc2.ErrInvalidRequest) || strings.HasPrefix(err.Error(), "unmarshaling jsonrpc message")
}
