package debug

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitWriter(t *testing.T) {
	t.Cleanup(func() { Init(false) })

	var buf bytes.Buffer
	InitWriter(true, &buf)
	assert.True(t, Enabled())

	With("component", "rpc").Debug("request sent", "id", 1)
	assert.Contains(t, buf.String(), "request sent")
	assert.Contains(t, buf.String(), "component=rpc")

	buf.Reset()
	InitWriter(false, &buf)
	assert.False(t, Enabled())
	Error("dropped")
	assert.Empty(t, buf.String())
}

func TestEnabledFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "", want: false},
		{value: "0", want: false},
		{value: "false", want: false},
		{value: "1", want: true},
		{value: "prisma:*", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("DEBUG", tt.value)
			assert.Equal(t, tt.want, EnabledFromEnv())
		})
	}
}
