// Package analyzertest provides an in-memory analyzer process for tests.
package analyzertest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// Process stands in for an analyzer subprocess. The fake analyzer owns the other end of both pipes.
type Process struct {
	stdoutR *io.PipeReader
	stdinW  *io.PipeWriter

	analyzerIn  *io.PipeReader
	analyzerOut *io.PipeWriter

	exited chan struct{}
	once   sync.Once
}

// NewProcess returns a process whose pipes are not yet served by anyone.
func NewProcess() *Process {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	return &Process{
		stdoutR:     stdoutR,
		stdinW:      stdinW,
		analyzerIn:  stdinR,
		analyzerOut: stdoutW,
		exited:      make(chan struct{}),
	}
}

func (p *Process) Read(b []byte) (int, error)  { return p.stdoutR.Read(b) }
func (p *Process) Write(b []byte) (int, error) { return p.stdinW.Write(b) }

func (p *Process) Close() error {
	p.stdinW.Close()
	p.stdoutR.Close()
	return nil
}

func (p *Process) Wait() error {
	<-p.exited
	return nil
}

func (p *Process) Kill() error {
	p.Exit()
	return nil
}

// Exit terminates the process as if it crashed.
func (p *Process) Exit() {
	p.once.Do(func() {
		close(p.exited)
		p.analyzerIn.Close()
		p.analyzerOut.Close()
	})
}

// Exited is closed once the process has terminated.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Stdout is the analyzer's side of the bridge's input.
func (p *Process) Stdout() io.Writer { return p.analyzerOut }

type conn struct {
	io.Reader
	io.Writer
	p *Process
}

func (c conn) Close() error {
	c.p.Exit()
	return nil
}

// Handler answers a call from the bridge.
type Handler func(a *Analyzer, call *jsonrpc2.Call)

// Analyzer answers the handshake and hands every other call to its handler.
// Reading and handling run on separate goroutines so that neither side of the pipes can deadlock the other.
type Analyzer struct {
	// InitFails makes the analyzer reject initialize.
	InitFails bool

	proc    *Process
	stream  jsonrpc2.Stream
	handler Handler
	writeMu sync.Mutex

	mu            sync.Mutex
	calls         []*jsonrpc2.Call
	notifications []*jsonrpc2.Notification
	responses     chan *jsonrpc2.Response
}

// NewAnalyzer serves proc with handler once started.
func NewAnalyzer(proc *Process, handler Handler) *Analyzer {
	return &Analyzer{
		proc:      proc,
		stream:    jsonrpc2.NewStream(conn{Reader: proc.analyzerIn, Writer: proc.analyzerOut, p: proc}),
		handler:   handler,
		responses: make(chan *jsonrpc2.Response, 16),
	}
}

// Start serves the process until it exits.
func (a *Analyzer) Start() *Analyzer {
	inbox := make(chan jsonrpc2.Message, 128)
	go func() {
		defer close(inbox)
		for {
			msg, _, err := a.stream.Read(context.Background())
			if err != nil {
				a.proc.Exit()
				return
			}
			inbox <- msg
		}
	}()
	go func() {
		for msg := range inbox {
			a.handle(msg)
		}
	}()
	return a
}

// Process returns the process the analyzer serves.
func (a *Analyzer) Process() *Process { return a.proc }

func (a *Analyzer) handle(msg jsonrpc2.Message) {
	switch m := msg.(type) {
	case *jsonrpc2.Response:
		a.responses <- m
	case *jsonrpc2.Notification:
		a.mu.Lock()
		a.notifications = append(a.notifications, m)
		a.mu.Unlock()
		if m.Method() == protocol.MethodExit {
			a.proc.Exit()
		}
	case *jsonrpc2.Call:
		a.mu.Lock()
		a.calls = append(a.calls, m)
		a.mu.Unlock()
		switch {
		case m.Method() == protocol.MethodInitialize && a.InitFails:
			a.Reply(m, nil, jsonrpc2.NewError(jsonrpc2.InternalError, "cannot index"))
		case m.Method() == protocol.MethodInitialize:
			a.Reply(m, map[string]interface{}{
				"capabilities": map[string]interface{}{},
				"serverInfo":   map[string]interface{}{"name": "fake-analyzer"},
			}, nil)
		case m.Method() == protocol.MethodShutdown:
			a.Reply(m, nil, nil)
		case a.handler != nil:
			a.handler(a, m)
		default:
			a.Reply(m, nil, jsonrpc2.NewError(jsonrpc2.MethodNotFound, m.Method()))
		}
	}
}

// Reply answers call with a result or an error.
func (a *Analyzer) Reply(call *jsonrpc2.Call, result interface{}, err error) {
	resp, rerr := jsonrpc2.NewResponse(call.ID(), result, err)
	if rerr != nil {
		panic(rerr)
	}
	a.Send(resp)
}

// Send writes one message to the bridge.
func (a *Analyzer) Send(msg jsonrpc2.Message) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	a.stream.Write(context.Background(), msg)
}

// Notify sends a notification to the bridge.
func (a *Analyzer) Notify(method string, params interface{}) {
	n, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		panic(err)
	}
	a.Send(n)
}

// WriteRaw frames body as is, valid or not.
func (a *Analyzer) WriteRaw(body string) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	fmt.Fprintf(a.proc.analyzerOut, "Content-Length: %d\r\n\r\n%s", len(body), body)
}

// Methods lists the calls received in order, followed by the notifications in order.
func (a *Analyzer) Methods() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var methods []string
	for _, c := range a.calls {
		methods = append(methods, c.Method())
	}
	for _, n := range a.notifications {
		methods = append(methods, n.Method())
	}
	return methods
}

// Calls returns the calls received so far.
func (a *Analyzer) Calls() []*jsonrpc2.Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*jsonrpc2.Call(nil), a.calls...)
}

// Notification returns the first notification received for method.
func (a *Analyzer) Notification(method string) *jsonrpc2.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, n := range a.notifications {
		if n.Method() == method {
			return n
		}
	}
	return nil
}

// Notifications returns every notification received for method.
func (a *Analyzer) Notifications(method string) []*jsonrpc2.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*jsonrpc2.Notification
	for _, n := range a.notifications {
		if n.Method() == method {
			out = append(out, n)
		}
	}
	return out
}

// Responses delivers the bridge's replies to calls sent with Send.
func (a *Analyzer) Responses() <-chan *jsonrpc2.Response { return a.responses }

// Echo replies with the call's params.
func Echo(a *Analyzer, call *jsonrpc2.Call) {
	a.Reply(call, call.Params(), nil)
}
