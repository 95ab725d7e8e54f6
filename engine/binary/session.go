package binary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// Session errors.
var (
	ErrNotStarted     = errors.New("engine session not started")
	ErrSessionStopped = errors.New("engine session stopped")
	ErrAlreadyStarted = errors.New("engine session already started")
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stack tags prefixed to panic stacks, telling where the panic was seen.
const (
	TagExitPanic          = "[EXIT_PANIC]"
	TagResponseErrorPanic = "[RESPONSE_ERROR_PANIC]"
)

// maxStderrMessages bounds the stderr lines kept for error reports.
const maxStderrMessages = 200

type rpcRequest struct {
	ID      int    `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		IsPanic   bool   `json:"is_panic"`
		Message   string `json:"message"`
		ErrorCode string `json:"error_code"`
		Error     *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"data"`
}

type pendingCall struct {
	request string
	ch      chan engine.Outcome
}

// Session is a long-lived engine process speaking newline-delimited JSON-RPC
// 2.0 over stdin/stdout. Requests carry strictly increasing ids and replies are
// matched by id, so they may arrive in any order. Stderr is read as JSON log
// records; the last error record is kept to explain a later crash.
type Session struct {
	path    string
	args    []string
	dir     string
	env     []string
	markers engine.Markers

	mu          sync.Mutex
	writeMu     sync.Mutex
	state       State
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	nextID      int
	pending     map[int]pendingCall
	lastError   *LogRecord
	lastRequest string
	messages    []string
	terminal    engine.Outcome
	done        chan struct{}
}

// NewSession creates a session for the engine at path. It is not started.
func NewSession(path string, opts ...Option) *Session {
	o := buildOptions(opts)
	return &Session{
		path:    path,
		args:    o.args,
		dir:     o.dir,
		env:     o.env,
		markers: o.markers,
		pending: make(map[int]pendingCall),
		done:    make(chan struct{}),
	}
}

// Kind implements engine.Transport.
func (s *Session) Kind() engine.Kind {
	return engine.KindBinary
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the engine process has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start spawns the engine process.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state: %s)", ErrAlreadyStarted, state)
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		s.fail(engine.Failure("engine session start cancelled", err))
		return err
	}

	cmd := exec.Command(s.path, s.args...)
	cmd.Dir = s.dir
	cmd.Env = append(os.Environ(), s.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.fail(engine.Failure("could not open engine stdin", err))
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.fail(engine.Failure("could not open engine stdout", err))
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.fail(engine.Failure("could not open engine stderr", err))
		return err
	}

	debug.Debug("starting engine session", "path", s.path, "args", s.args)
	if err := cmd.Start(); err != nil {
		s.fail(engine.Failure(fmt.Sprintf("could not start engine binary %s", s.path), err))
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	stoppedWhileStarting := s.state == StateStopped
	if s.state == StateStarting {
		s.state = StateRunning
	}
	s.mu.Unlock()
	if stoppedWhileStarting {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		if err := scanLines(stdout, s.handleResponse); err != nil {
			debug.Debug("engine stdout closed", "error", err)
		}
	}()
	go func() {
		defer readers.Done()
		if err := scanLines(stderr, s.handleStderr); err != nil {
			debug.Debug("engine stderr closed", "error", err)
		}
	}()
	go func() {
		readers.Wait()
		s.handleExit(cmd.Wait())
	}()
	return nil
}

// Call sends one request and waits for its reply.
func (s *Session) Call(ctx context.Context, method string, params any) engine.Outcome {
	s.mu.Lock()
	switch s.state {
	case StateNotStarted, StateStarting:
		s.mu.Unlock()
		return engine.Failure("engine session is not running", ErrNotStarted)
	case StateStopped:
		s.mu.Unlock()
		return engine.Failure("engine session stopped", ErrSessionStopped)
	case StateFailed:
		terminal := s.terminal
		s.mu.Unlock()
		return terminal
	}

	s.nextID++
	req := rpcRequest{ID: s.nextID, JSONRPC: "2.0", Method: method}
	if params != nil {
		req.Params = []any{params}
	}
	data, err := json.Marshal(req)
	if err != nil {
		s.mu.Unlock()
		return engine.Failure("could not encode engine request", err)
	}
	call := pendingCall{request: string(data), ch: make(chan engine.Outcome, 1)}
	s.pending[req.ID] = call
	s.lastRequest = call.request

	stdin := s.stdin
	// writeMu is taken before mu is released so requests hit stdin in id order.
	s.writeMu.Lock()
	s.mu.Unlock()

	debug.Debug("rpc request", "component", "rpc", "id", req.ID, "method", method)
	_, err = stdin.Write(append(data, '\n'))
	s.writeMu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
		select {
		case outcome := <-call.ch:
			// The engine died first; its exit outcome explains the write error.
			return outcome
		default:
		}
		return engine.Failure("could not write to engine stdin", err)
	}

	select {
	case outcome := <-call.ch:
		return outcome
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
		return engine.Failure("engine request cancelled", ctx.Err())
	}
}

// Invoke implements engine.Transport; the command name is the RPC method.
func (s *Session) Invoke(ctx context.Context, req engine.Request) engine.Outcome {
	return s.Call(ctx, string(req.Command), req.Params)
}

// Stop kills the engine process and rejects every pending call. It waits for
// the process to exit or ctx to be done. Stopping twice is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStopped, StateFailed:
		s.mu.Unlock()
		return nil
	case StateNotStarted:
		s.state = StateStopped
		s.closeDone()
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	s.rejectAll(engine.Failure("engine session stopped", ErrSessionStopped))
	cmd, stdin := s.cmd, s.stdin
	s.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			debug.Warn("could not kill engine process", "error", err)
		}
	}
	if cmd == nil {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements engine.Closer.
func (s *Session) Close(ctx context.Context) error {
	return s.Stop(ctx)
}

// LastError returns the last error record read from stderr.
func (s *Session) LastError() (LogRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastError == nil {
		return LogRecord{}, false
	}
	return *s.lastError, true
}

func (s *Session) fail(o engine.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		s.closeDone()
		return
	}
	s.state = StateFailed
	s.terminal = o
	s.rejectAll(o)
	s.closeDone()
}

// closeDone must be called with mu held.
func (s *Session) closeDone() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// rejectAll must be called with mu held.
func (s *Session) rejectAll(o engine.Outcome) {
	for id, call := range s.pending {
		out := o
		if out.Kind == engine.OutcomePanic && out.RequestEcho == "" {
			out.RequestEcho = call.request
		}
		call.ch <- out
		delete(s.pending, id)
	}
}

func (s *Session) handleResponse(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		debug.Warn("could not parse engine response", "component", "rpc", "response", truncate(line, 200))
		return
	}
	var id int
	if raw, ok := fields["id"]; !ok || json.Unmarshal(raw, &id) != nil {
		debug.Warn("engine response has no id", "component", "rpc", "response", truncate(line, 200))
		return
	}

	s.mu.Lock()
	call, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		debug.Warn("got result for unknown id", "component", "rpc", "id", id)
		return
	}

	debug.Debug("rpc response", "component", "rpc", "id", id)
	call.ch <- s.classifyResponse(call.request, line, fields)
}

func (s *Session) classifyResponse(request, line string, fields map[string]json.RawMessage) engine.Outcome {
	if result, ok := fields["result"]; ok {
		return engine.Success(result)
	}
	var rpcErr rpcError
	if raw, ok := fields["error"]; ok {
		_ = json.Unmarshal(raw, &rpcErr)
	}
	if data := rpcErr.Data; data != nil {
		switch {
		case data.IsPanic:
			message := rpcErr.Message
			if data.Error != nil && data.Error.Message != "" {
				message = data.Error.Message
			} else if data.Message != "" {
				message = data.Message
			}
			return engine.Panic(message, TagResponseErrorPanic+"\n"+message, request)
		case data.ErrorCode != "":
			return engine.ValidationFailure(data.Message, data.ErrorCode, nil)
		case data.Message != "":
			return engine.Failure(data.Message, nil)
		}
	}
	return engine.Failure(fmt.Sprintf("Error in RPC\n Request: %s\nResponse: %s", request, line), nil)
}

func (s *Session) handleStderr(line string) {
	debug.Debug("engine stderr", "component", "stderr", "line", line)
	rec, ok := ParseLogRecord(line)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, line)
	if len(s.messages) > maxStderrMessages {
		s.messages = s.messages[len(s.messages)-maxStderrMessages:]
	}
	if ok && rec.IsError() {
		s.lastError = &rec
	}
}

func (s *Session) handleExit(waitErr error) {
	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	s.mu.Lock()
	stopped := s.state == StateStopped
	messages := strings.Join(s.messages, "\n")
	lastError := s.lastError
	lastRequest := s.lastRequest
	s.mu.Unlock()

	if stopped {
		debug.Debug("engine session exited after stop", "code", code)
		s.mu.Lock()
		s.rejectAll(engine.Failure("engine session stopped", ErrSessionStopped))
		s.closeDone()
		s.mu.Unlock()
		return
	}

	debug.Debug("engine session exited", "code", code)
	s.fail(s.exitOutcome(code, messages, lastError, lastRequest))
}

// exitOutcome classifies an unexpected exit. Known error exits without a crash
// marker are failures; crash codes and unknown codes are panics.
func (s *Session) exitOutcome(code int, messages string, lastError *LogRecord, lastRequest string) engine.Outcome {
	m := s.markers
	crashed := m.IsPanicExitCode(code) || !m.IsKnownExitCode(code) || m.IsPanicText(messages) ||
		(lastError != nil && lastError.IsPanic)
	if !crashed {
		reason := fmt.Sprintf("engine exited with code %d", code)
		if messages != "" {
			reason += ": " + messages
		}
		return engine.Failure(reason, nil)
	}

	message := fmt.Sprintf("engine exited with code %d", code)
	stack := messages
	if lastError != nil {
		if text := lastError.Text(); text != "" {
			message = text
		}
		if lastError.Backtrace != "" {
			stack = lastError.Backtrace
		}
	}
	return engine.Panic(message, TagExitPanic+"\n"+stack, lastRequest)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
