// Package binary reaches the engine by spawning its executable, either once
// per command or as a long-lived JSON-RPC session.
package binary

import (
	"bufio"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// maxLineSize bounds a single stdout/stderr line read from the engine.
const maxLineSize = 16 << 20

// LogRecord is one line of the engine's stderr log stream. Engines emit the
// details either at the top level or nested under "fields".
type LogRecord struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Msg       string `json:"msg"`
	Backtrace string `json:"backtrace"`
	IsPanic   bool   `json:"is_panic"`
	Fields    struct {
		Message   string `json:"message"`
		Backtrace string `json:"backtrace"`
		IsPanic   bool   `json:"is_panic"`
	} `json:"fields"`
}

// ParseLogRecord decodes one stderr line. Lines that are not JSON objects are
// reported as not ok.
func ParseLogRecord(line string) (LogRecord, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return LogRecord{}, false
	}
	var rec LogRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return LogRecord{}, false
	}
	if rec.Message == "" {
		rec.Message = rec.Fields.Message
	}
	if rec.Backtrace == "" {
		rec.Backtrace = rec.Fields.Backtrace
	}
	rec.IsPanic = rec.IsPanic || rec.Fields.IsPanic || rec.Msg == "PANIC"
	return rec, true
}

// IsError reports whether the record should be kept as the last error context.
func (r LogRecord) IsError() bool {
	return r.Backtrace != "" || r.IsPanic || r.Level == "ERRO" || r.Level == "ERROR"
}

// Text returns the record's message, falling back to msg.
func (r LogRecord) Text() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Msg
}

// lastErrorRecord returns the last error record of a stderr dump.
func lastErrorRecord(stderr string) (LogRecord, bool) {
	var last LogRecord
	found := false
	for _, line := range strings.Split(stderr, "\n") {
		if rec, ok := ParseLogRecord(line); ok && rec.IsError() {
			last, found = rec, true
		}
	}
	return last, found
}

// scanLines calls fn for every line of r until EOF.
func scanLines(r io.Reader, fn func(line string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		fn(sc.Text())
	}
	return sc.Err()
}
