package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/clock"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Session.
type State string

const (
	// StateStarting is the state of a session whose initialize handshake has not completed.
	StateStarting State = "starting"
	// StateReady is the state of a session that accepts requests.
	StateReady State = "ready"
	// StateDead is the terminal state. Every further request fails with a SessionDeadError.
	StateDead State = "dead"
)

// NotificationHandler receives the raw params of a server notification.
// Handlers run on the session's read loop and must not block or call back into the session.
type NotificationHandler func(params json.RawMessage)

// Session is a live connection to one analyzer subprocess.
type Session interface {
	// ID uniquely identifies this session. A respawned analyzer gets a new ID.
	ID() uuid.UUID
	// Project returns the project this session analyzes.
	Project() entity.Project
	// State returns the current lifecycle state.
	State() State
	// ServerName returns the name the analyzer reported during initialization, if any.
	ServerName() string

	// Call sends a request and decodes the matching response into result, which may be nil.
	// Requests issued before the handshake completes wait for it.
	Call(ctx context.Context, method string, params, result interface{}) error
	// Notify sends a notification. It waits for the handshake like Call.
	Notify(ctx context.Context, method string, params interface{}) error
	// Subscribe registers a handler for a server notification method and returns a function that removes it.
	Subscribe(method string, handler NotificationHandler) (unsubscribe func())
	// Progress returns the titles of the work-done progress currently reported by the analyzer.
	Progress() []string

	// Done is closed when the session becomes dead.
	Done() <-chan struct{}
	// Err returns a SessionDeadError once the session is dead, nil otherwise.
	Err() error
	// Shutdown asks the analyzer to exit and kills it if it does not within the shutdown timeout.
	Shutdown(ctx context.Context) error
}

type session struct {
	id      uuid.UUID
	project entity.Project
	cfg     Config
	logger  *zap.SugaredLogger
	stats   tally.Scope
	clock   clock.Clock
	proc    Process
	stream  jsonrpc2.Stream

	// writeMu serializes frames on the analyzer's stdin.
	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	closing     bool
	serverName  string
	nextID      int32
	pending     map[jsonrpc2.ID]*pendingCall
	abandoned   map[jsonrpc2.ID]clock.Timer
	subscribers map[string][]subscriber
	nextSub     int
	progress    map[string]string
	deadErr     error

	ready    chan struct{}
	dead     chan struct{}
	exited   chan struct{}
	deadOnce sync.Once
}

func newSession(id uuid.UUID, project entity.Project, proc Process, cfg Config, logger *zap.SugaredLogger, stats tally.Scope, clk clock.Clock) *session {
	return &session{
		id:          id,
		project:     project,
		cfg:         cfg,
		logger:      logger.With("project", project.Root, "session", id.String()),
		stats:       stats,
		clock:       clk,
		proc:        proc,
		stream:      jsonrpc2.NewStream(proc),
		state:       StateStarting,
		pending:     make(map[jsonrpc2.ID]*pendingCall),
		abandoned:   make(map[jsonrpc2.ID]clock.Timer),
		subscribers: make(map[string][]subscriber),
		progress:    make(map[string]string),
		ready:       make(chan struct{}),
		dead:        make(chan struct{}),
		exited:      make(chan struct{}),
	}
}

// run starts the goroutines that own the subprocess and begins the handshake.
func (s *session) run() {
	go s.readLoop()
	go s.waitLoop()
	go s.initialize()
}

func (s *session) ID() uuid.UUID           { return s.id }
func (s *session) Project() entity.Project { return s.project }
func (s *session) Done() <-chan struct{}   { return s.dead }

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) ServerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverName
}

func (s *session) Err() error {
	select {
	case <-s.dead:
		return s.deadError()
	default:
		return nil
	}
}

func (s *session) deadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &bridgeerrors.SessionDeadError{Project: s.project.Root, Reason: s.deadErr}
}

type initializeResult struct {
	ServerInfo *protocol.ServerInfo `json:"serverInfo,omitempty"`
}

func (s *session) initialize() {
	ctx := context.Background()
	var result initializeResult
	if err := s.call(ctx, protocol.MethodInitialize, initializeParams(s.project), &result); err != nil {
		s.markDead(fmt.Errorf("initialize: %w", err))
		return
	}
	if err := s.notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{}); err != nil {
		s.markDead(fmt.Errorf("initialized: %w", err))
		return
	}

	s.mu.Lock()
	if s.state == StateStarting {
		s.state = StateReady
	}
	if result.ServerInfo != nil {
		s.serverName = result.ServerInfo.Name
	}
	s.mu.Unlock()
	close(s.ready)
	s.logger.Infow("analyzer session ready", "server", s.ServerName())
}

// awaitReady blocks until the handshake completed, the session died, or ctx ended.
func (s *session) awaitReady(ctx context.Context) error {
	select {
	case <-s.dead:
		return s.deadError()
	default:
	}

	select {
	case <-s.ready:
		return nil
	case <-s.dead:
		return s.deadError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) readLoop() {
	ctx := context.Background()
	for {
		msg, _, err := s.stream.Read(ctx)
		if err != nil {
			if isDecodeError(err) {
				s.stats.Counter("protocol_errors").Inc(1)
				s.logger.Warnw("discarding malformed message from analyzer", "error", err)
				continue
			}
			s.markDead(fmt.Errorf("reading from analyzer: %w", err))
			return
		}

		switch m := msg.(type) {
		case *jsonrpc2.Response:
			s.resolve(m)
		case *jsonrpc2.Notification:
			s.dispatch(m)
		case *jsonrpc2.Call:
			// A reply blocks while the analyzer is not draining its stdin.
			go s.answer(ctx, m)
		}
	}
}

func (s *session) waitLoop() {
	err := s.proc.Wait()
	close(s.exited)
	if err == nil {
		err = bridgeerrors.New("analyzer exited")
	} else {
		err = fmt.Errorf("analyzer exited: %w", err)
	}
	s.markDead(err)
}

// markDead moves the session to its terminal state exactly once.
// Every outstanding call is released with a SessionDeadError and the subprocess is killed.
func (s *session) markDead(reason error) {
	s.deadOnce.Do(func() {
		s.mu.Lock()
		closing := s.closing
		if closing {
			reason = bridgeerrors.ErrSessionClosed
		}
		s.state = StateDead
		s.deadErr = reason
		outstanding := len(s.pending)
		s.pending = make(map[jsonrpc2.ID]*pendingCall)
		for id, t := range s.abandoned {
			t.Stop()
			delete(s.abandoned, id)
		}
		s.progress = make(map[string]string)
		s.mu.Unlock()

		close(s.dead)
		if err := s.stream.Close(); err != nil {
			s.logger.Debugw("closing analyzer stream", "error", err)
		}
		if err := s.proc.Kill(); err != nil {
			s.logger.Debugw("killing analyzer", "error", err)
		}

		if closing {
			s.logger.Infow("analyzer session closed")
			return
		}
		s.stats.Counter("deaths").Inc(1)
		s.logger.Warnw("analyzer session terminated", "reason", reason, "outstanding", outstanding)
	})
}

func (s *session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateDead {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	ready := s.state == StateReady
	s.mu.Unlock()

	if !ready {
		s.markDead(bridgeerrors.ErrSessionClosed)
		<-s.exited
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	var err error
	if err = s.call(ctx, protocol.MethodShutdown, nil, nil); err == nil {
		err = s.notify(ctx, protocol.MethodExit, nil)
	}
	if err != nil && !bridgeerrors.IsSessionDead(err) {
		s.logger.Warnw("graceful analyzer shutdown failed", "error", err)
	}

	select {
	case <-s.exited:
	case <-ctx.Done():
		s.logger.Warnw("analyzer did not exit in time, killing it", "timeout", s.cfg.ShutdownTimeout)
	}
	s.markDead(bridgeerrors.ErrSessionClosed)
	<-s.exited
	return nil
}
