package binary

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

// The test binary doubles as a fake engine when FAKE_ENGINE is set.
func TestMain(m *testing.M) {
	switch os.Getenv("FAKE_ENGINE") {
	case "cli":
		os.Exit(fakeCLI())
	case "session":
		os.Exit(fakeSession())
	}
	os.Exit(m.Run())
}

func fakeCLI() int {
	var command string
	var flags []string
	args := os.Args[1:]
	for i, a := range args {
		if a == "cli" && i+1 < len(args) {
			command = args[i+1]
			break
		}
		flags = append(flags, a)
	}
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')

	switch os.Getenv("FAKE_BEHAVIOR") {
	case "echo":
		schema, _ := os.ReadFile(os.Getenv(EnvSchemaPath))
		out, _ := json.Marshal(map[string]any{
			"command": command,
			"flags":   flags,
			"params":  json.RawMessage(strings.TrimSpace(line)),
			"schema":  string(schema),
		})
		fmt.Println("prisma:engine some startup noise")
		fmt.Println(string(out))
		return 0
	case "empty":
		return 0
	case "bracket-log":
		fmt.Println("[INFO] engine ready")
		fmt.Println(`{"datasources":[],"generators":[],"warnings":[]}`)
		return 0
	case "warming":
		fmt.Println("Please wait until the engine is ready")
		return 1
	case "validation":
		fmt.Println(`{"is_panic":false,"message":"error: The model \"A\" cannot be defined because a model with that name already exists.","error_code":"P1012"}`)
		return 1
	case "panic":
		fmt.Fprintln(os.Stderr, `{"level":"ERROR","fields":{"message":"FORCE_PANIC_GET_CONFIG","is_panic":true,"backtrace":"0: fake::main"}}`)
		return 101
	case "panic-text":
		fmt.Fprintln(os.Stderr, "thread 'main' panicked at 'boom', src/main.rs:1:1")
		return 1
	case "textbusy":
		fmt.Fprintln(os.Stderr, "spawn ETXTBSY")
		return 26
	default:
		fmt.Fprintln(os.Stderr, "unknown behavior")
		return 1
	}
}

type fakeRequest struct {
	ID     int               `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func fakeSession() int {
	out := bufio.NewWriter(os.Stdout)
	write := func(v any) {
		data, _ := json.Marshal(v)
		out.Write(append(data, '\n'))
		out.Flush()
	}
	echo := func(r fakeRequest) {
		var result any = nil
		if len(r.Params) > 0 {
			result = r.Params[0]
		}
		write(map[string]any{"id": r.ID, "jsonrpc": "2.0", "result": result})
	}

	var held []fakeRequest
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		var r fakeRequest
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Method {
		case "pair":
			held = append(held, r)
			if len(held) == 2 {
				echo(held[1])
				echo(held[0])
				held = nil
			}
		case "echo":
			echo(r)
		case "fail":
			write(map[string]any{"id": r.ID, "error": map[string]any{
				"code": 4466, "message": "An error happened.",
				"data": map[string]any{"is_panic": false, "message": "Database does not exist", "error_code": "P1003"},
			}})
		case "panicResponse":
			write(map[string]any{"id": r.ID, "error": map[string]any{
				"code": 4466, "message": "An error happened.",
				"data": map[string]any{"is_panic": true, "message": "FORCE_PANIC_SCHEMA_ENGINE"},
			}})
		case "unknown":
			write(map[string]any{"id": r.ID, "error": map[string]any{"code": -32601, "message": "Method not found"}})
		case "crash":
			fmt.Fprintln(os.Stderr, `{"level":"ERRO","message":"index out of bounds","backtrace":"0: fake::crash"}`)
			return 255
		}
	}
	return 0
}

func selfPath(t *testing.T) string {
	t.Helper()
	path, err := os.Executable()
	require.NoError(t, err)
	return path
}

func newFakeCLI(t *testing.T, behavior string) (*CLI, string) {
	t.Helper()
	tmp := t.TempDir()
	return NewCLI(selfPath(t),
		WithEnv("FAKE_ENGINE=cli", "FAKE_BEHAVIOR="+behavior),
		WithTempDir(tmp),
	), tmp
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestCLI_SuccessRemovesTempFile(t *testing.T) {
	cli, tmp := newFakeCLI(t, "echo")
	req := engine.Request{
		Command: engine.CommandGetDMMF,
		Params:  map[string]any{"previewFeatures": []string{"views"}},
		Schemas: core.MustSchemaFileSet(
			core.NewSchemaFile("a.prisma", "model A { id Int @id }\n"),
			core.NewSchemaFile("b.prisma", "model B { id Int @id }\n"),
		),
		Flags: []string{"--enable-experimental=views"},
	}

	outcome := cli.Invoke(context.Background(), req)
	require.Equal(t, engine.OutcomeSuccess, outcome.Kind, outcome.Message)

	var got struct {
		Command string          `json:"command"`
		Flags   []string        `json:"flags"`
		Params  json.RawMessage `json:"params"`
		Schema  string          `json:"schema"`
	}
	require.NoError(t, outcome.Decode(&got))
	assert.Equal(t, "get-dmmf", got.Command)
	assert.Equal(t, []string{"--enable-experimental=views"}, got.Flags)
	assert.JSONEq(t, `{"previewFeatures":["views"]}`, string(got.Params))
	assert.Equal(t, "model A { id Int @id }\nmodel B { id Int @id }\n", got.Schema)

	assert.Empty(t, outcome.SchemaPath)
	assert.Empty(t, listDir(t, tmp))
}

func TestCLI_ExistingSchemaPathIsUsed(t *testing.T) {
	cli, tmp := newFakeCLI(t, "echo")
	path := filepath.Join(t.TempDir(), "schema.prisma")
	require.NoError(t, os.WriteFile(path, []byte("// on disk"), 0o644))

	outcome := cli.Invoke(context.Background(), engine.Request{
		Command:    engine.CommandGetConfig,
		SchemaPath: path,
		Schemas:    core.SingleFile("// in memory"),
	})
	require.True(t, outcome.OK())

	var got struct {
		Schema string `json:"schema"`
	}
	require.NoError(t, outcome.Decode(&got))
	assert.Equal(t, "// on disk", got.Schema)
	assert.Empty(t, listDir(t, tmp))
}

func TestCLI_EmptyStdoutIsSuccess(t *testing.T) {
	cli, _ := newFakeCLI(t, "empty")
	outcome := cli.Invoke(context.Background(), engine.Request{Command: engine.CommandValidate, Schemas: core.SingleFile("x")})
	assert.Equal(t, engine.OutcomeSuccess, outcome.Kind)
	assert.Empty(t, outcome.Result)
}

func TestCLI_BracketedLogBeforeReply(t *testing.T) {
	cli, _ := newFakeCLI(t, "bracket-log")
	outcome := cli.Invoke(context.Background(), engine.Request{Command: engine.CommandGetConfig, Schemas: core.SingleFile("x")})
	require.Equal(t, engine.OutcomeSuccess, outcome.Kind, outcome.Message)
	assert.JSONEq(t, `{"datasources":[],"generators":[],"warnings":[]}`, string(outcome.Result))
}

func TestCLI_FailureClassification(t *testing.T) {
	tests := []struct {
		behavior  string
		wantKind  engine.OutcomeKind
		wantRetry engine.RetryReason
		wantMsg   string
		wantCode  string
	}{
		{behavior: "warming", wantKind: engine.OutcomeTransportFailure, wantRetry: engine.RetryEngineWarming, wantMsg: "Please wait until the engine is ready"},
		{behavior: "textbusy", wantKind: engine.OutcomeTransportFailure, wantRetry: engine.RetryTextBusy, wantMsg: "spawn ETXTBSY"},
		{behavior: "validation", wantKind: engine.OutcomeValidationError, wantCode: "P1012", wantMsg: `error: The model "A" cannot be defined because a model with that name already exists.`},
		{behavior: "panic", wantKind: engine.OutcomePanic, wantMsg: "FORCE_PANIC_GET_CONFIG"},
		{behavior: "panic-text", wantKind: engine.OutcomePanic, wantMsg: "thread 'main' panicked at 'boom', src/main.rs:1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.behavior, func(t *testing.T) {
			cli, tmp := newFakeCLI(t, tt.behavior)
			outcome := cli.Invoke(context.Background(), engine.Request{
				Command: engine.CommandGetConfig,
				Params:  map[string]bool{"ignoreEnvVarErrors": false},
				Schemas: core.SingleFile("model A { id Int @id }"),
			})

			assert.Equal(t, tt.wantKind, outcome.Kind)
			assert.Equal(t, tt.wantRetry, outcome.Retry)
			assert.Equal(t, tt.wantMsg, outcome.Message)
			assert.Equal(t, tt.wantCode, outcome.ErrorCode)

			// Failed calls keep the temporary schema for panic reports.
			require.NotEmpty(t, outcome.SchemaPath)
			assert.Equal(t, tmp, filepath.Dir(outcome.SchemaPath))
			assert.FileExists(t, outcome.SchemaPath)
		})
	}
}

func TestCLI_PanicCarriesStackAndRequest(t *testing.T) {
	cli, _ := newFakeCLI(t, "panic")
	outcome := cli.Invoke(context.Background(), engine.Request{
		Command: engine.CommandGetConfig,
		Params:  map[string]bool{"ignoreEnvVarErrors": true},
		Schemas: core.SingleFile("x"),
	})
	require.Equal(t, engine.OutcomePanic, outcome.Kind)
	assert.Equal(t, "0: fake::main", outcome.Stack)
	assert.Equal(t, `get-config {"ignoreEnvVarErrors":true}`, outcome.RequestEcho)
}

func TestCLI_SpawnFailure(t *testing.T) {
	cli := NewCLI(filepath.Join(t.TempDir(), "missing-engine"), WithTempDir(t.TempDir()))
	outcome := cli.Invoke(context.Background(), engine.Request{Command: engine.CommandVersion})
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
	assert.Equal(t, engine.RetryNone, outcome.Retry)
	assert.Error(t, outcome.Err)
}

func startFakeSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s := NewSession(selfPath(t), append([]Option{WithEnv("FAKE_ENGINE=session")}, opts...)...)
	require.Equal(t, StateNotStarted, s.State())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestSession_EchoAndIDs(t *testing.T) {
	s := startFakeSession(t)
	assert.Equal(t, StateRunning, s.State())

	for i := 0; i < 3; i++ {
		outcome := s.Call(context.Background(), "echo", map[string]int{"n": i})
		require.True(t, outcome.OK(), outcome.Message)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(outcome.Result))
	}
	assert.Equal(t, 3, s.nextID)
}

func TestSession_OutOfOrderReplies(t *testing.T) {
	s := startFakeSession(t)

	var wg sync.WaitGroup
	results := make([]engine.Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Call(context.Background(), "pair", map[string]int{"caller": i})
		}(i)
	}
	wg.Wait()

	for i, outcome := range results {
		require.True(t, outcome.OK(), outcome.Message)
		assert.JSONEq(t, fmt.Sprintf(`{"caller":%d}`, i), string(outcome.Result))
	}
}

func TestSession_ErrorResponses(t *testing.T) {
	s := startFakeSession(t)

	outcome := s.Call(context.Background(), "fail", nil)
	assert.Equal(t, engine.OutcomeValidationError, outcome.Kind)
	assert.Equal(t, "P1003", outcome.ErrorCode)
	assert.Equal(t, "Database does not exist", outcome.Message)

	outcome = s.Call(context.Background(), "panicResponse", nil)
	assert.Equal(t, engine.OutcomePanic, outcome.Kind)
	assert.Equal(t, "FORCE_PANIC_SCHEMA_ENGINE", outcome.Message)
	assert.True(t, strings.HasPrefix(outcome.Stack, TagResponseErrorPanic))
	assert.Contains(t, outcome.RequestEcho, `"method":"panicResponse"`)

	outcome = s.Call(context.Background(), "unknown", nil)
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
	assert.True(t, strings.HasPrefix(outcome.Message, "Error in RPC\n Request: "))

	assert.Equal(t, StateRunning, s.State())
}

func TestSession_CrashFailsSession(t *testing.T) {
	s := startFakeSession(t)

	outcome := s.Call(context.Background(), "crash", nil)
	require.Equal(t, engine.OutcomePanic, outcome.Kind)
	assert.Equal(t, "index out of bounds", outcome.Message)
	assert.Equal(t, TagExitPanic+"\n0: fake::crash", outcome.Stack)
	assert.Contains(t, outcome.RequestEcho, `"method":"crash"`)

	<-s.Done()
	assert.Equal(t, StateFailed, s.State())

	rec, ok := s.LastError()
	require.True(t, ok)
	assert.Equal(t, "ERRO", rec.Level)

	// No calls are accepted after a crash.
	outcome = s.Call(context.Background(), "echo", nil)
	assert.Equal(t, engine.OutcomePanic, outcome.Kind)
}

func TestSession_StopRejectsPendingAndLaterCalls(t *testing.T) {
	s := startFakeSession(t)

	pending := make(chan engine.Outcome, 1)
	go func() {
		// A lone "pair" request is never answered by the fake engine.
		pending <- s.Call(context.Background(), "pair", nil)
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.pending) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())

	outcome := <-pending
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, ErrSessionStopped)

	outcome = s.Call(context.Background(), "echo", nil)
	assert.ErrorIs(t, outcome.Err, ErrSessionStopped)

	require.NoError(t, s.Stop(context.Background()))
}

func TestSession_CallBeforeStart(t *testing.T) {
	s := NewSession(selfPath(t))
	outcome := s.Call(context.Background(), "echo", nil)
	assert.ErrorIs(t, outcome.Err, ErrNotStarted)
}

func TestSession_StartFailure(t *testing.T) {
	s := NewSession(filepath.Join(t.TempDir(), "missing-engine"))
	require.Error(t, s.Start(context.Background()))
	assert.Equal(t, StateFailed, s.State())

	outcome := s.Call(context.Background(), "echo", nil)
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)

	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
}

func TestParseLogRecord(t *testing.T) {
	rec, ok := ParseLogRecord(`{"level":"ERROR","fields":{"message":"boom","backtrace":"bt","is_panic":true}}`)
	require.True(t, ok)
	assert.Equal(t, "boom", rec.Text())
	assert.Equal(t, "bt", rec.Backtrace)
	assert.True(t, rec.IsPanic)
	assert.True(t, rec.IsError())

	rec, ok = ParseLogRecord(`{"level":"INFO","message":"listening"}`)
	require.True(t, ok)
	assert.False(t, rec.IsError())

	rec, ok = ParseLogRecord(`{"msg":"PANIC","level":"ERRO"}`)
	require.True(t, ok)
	assert.True(t, rec.IsPanic)

	_, ok = ParseLogRecord("plain text")
	assert.False(t, ok)
}
