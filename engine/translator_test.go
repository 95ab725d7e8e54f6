package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

func newTestTranslator() *Translator {
	return &Translator{CLIVersion: "0.0.0", Cwd: "/work/app", NoColor: true}
}

func validateContext() ErrorContext {
	return ErrorContext{Name: "validate", Command: CommandValidate, Area: AreaQueryCLI, Transport: KindWasm}
}

func TestTranslate_Success(t *testing.T) {
	assert.NoError(t, newTestTranslator().Translate(validateContext(), Success(nil)))
}

func TestTranslate_ValidationError(t *testing.T) {
	outcome := ValidationFailure("\x1b[1;91merror\x1b[0m: The model \"A\" cannot be defined because a model with that name already exists.\n  -->  /work/app/b.prisma:1", "P1012", nil)

	err := newTestTranslator().Translate(validateContext(), outcome)
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
	assert.False(t, IsPanic(err))

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "P1012", schemaErr.ErrorCode)

	want := "Prisma schema validation - (validate wasm)\n" +
		"Error code: P1012\n" +
		"error: The model \"A\" cannot be defined because a model with that name already exists.\n" +
		"  -->  b.prisma:1\n" +
		"[Context: validate]\n\n" +
		"Prisma CLI Version : 0.0.0"
	assert.Equal(t, want, err.Error())
}

func TestTranslate_Panic(t *testing.T) {
	set := core.SingleFile("model A { id Int @id }")
	ec := ErrorContext{
		Name:       "getConfig",
		Command:    CommandGetConfig,
		Area:       AreaQueryCLI,
		Transport:  KindLibrary,
		Request:    "get-config {}",
		SchemaPath: "/work/app/schema.prisma",
		Schemas:    set,
	}

	err := newTestTranslator().Translate(ec, Panic("FORCE_PANIC_QUERY_ENGINE_GET_CONFIG", "backtrace", ""))
	require.Error(t, err)
	assert.True(t, IsPanic(err))
	assert.False(t, IsSchemaError(err))

	p, ok := AsPanic(err)
	require.True(t, ok)
	assert.Equal(t, "FORCE_PANIC_QUERY_ENGINE_GET_CONFIG", p.Message)
	assert.Equal(t, "backtrace", p.Stack)
	assert.Equal(t, "get-config {}", p.Request)
	assert.Equal(t, AreaQueryCLI, p.Area)
	assert.Equal(t, "/work/app/schema.prisma", p.SchemaPath)
	assert.Equal(t, 1, p.Schemas.Len())
	assert.Contains(t, err.Error(), "[Context: getConfig]")
	assert.Contains(t, err.Error(), "Prisma CLI Version : 0.0.0")
}

func TestTranslate_TransportFailure(t *testing.T) {
	cause := errors.New("exec: no such file")
	outcome := Failure("could not spawn engine", cause)

	err := newTestTranslator().Translate(validateContext(), outcome)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngine)
	assert.ErrorIs(t, err, cause)

	var engineErr *EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "could not spawn engine: exec: no such file", engineErr.Message)
	assert.NotContains(t, err.Error(), "Error code:")
}

func TestTranslate_OpenSSLHint(t *testing.T) {
	outcome := Failure("query-engine-debian-openssl-1.1.x: error while loading shared libraries: libssl.so.1.1: cannot open shared object file", nil)

	err := newTestTranslator().Translate(validateContext(), outcome)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apt-get -qy update && apt-get -qy install openssl")
}

func TestHint(t *testing.T) {
	assert.Contains(t, Hint("fork/exec ./engine: exec format error"), "another platform")
	assert.Contains(t, Hint("version `GLIBC_2.28' not found"), "glibc")
	assert.Empty(t, Hint("all good"))
}

func TestRelativize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "at start", in: "/a/schema.prisma:3", want: "schema.prisma:3"},
		{name: "after space", in: "error in /a/prisma/schema.prisma", want: "error in prisma/schema.prisma"},
		{name: "quoted", in: `path "/a/b" missing`, want: `path "b" missing`},
		{name: "inside another path", in: "/x/a/b", want: "/x/a/b"},
		{name: "mixed", in: "/x/a/b and /a/c", want: "/x/a/b and c"},
		{name: "no match", in: "nothing here", want: "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relativize(tt.in, "/a/"))
		})
	}
}

func TestTranslate_KeepsPathsOutsideCwd(t *testing.T) {
	tr := &Translator{CLIVersion: "0.0.0", Cwd: "/a", NoColor: true}
	err := tr.Translate(ErrorContext{Name: "getConfig", Command: CommandGetConfig}, Failure("cannot read /x/a/b or /a/schema.prisma", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read /x/a/b or schema.prisma")
}
