package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/fatih/color"

	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

// ErrorContext describes the call a failed outcome belongs to.
type ErrorContext struct {
	// Name is the command context shown as [Context: <name>].
	Name       string
	Command    Command
	Area       ErrorArea
	Transport  Kind
	Request    string
	SchemaPath string
	Schemas    core.SchemaFileSet
}

// Translator turns failed outcomes into *PanicError, *SchemaError or *EngineError.
type Translator struct {
	CLIVersion string
	// Cwd is stripped from absolute paths in engine messages.
	Cwd string
	// NoColor disables colored reasons and strips ANSI sequences from engine text.
	NoColor bool
}

// NewTranslator creates a Translator for the current working directory and
// NO_COLOR setting.
func NewTranslator(cliVersion string) *Translator {
	cwd, _ := os.Getwd()
	return &Translator{
		CLIVersion: cliVersion,
		Cwd:        cwd,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

type remediation struct {
	needle string
	hint   string
}

var remediations = []remediation{
	{
		needle: "libssl",
		hint:   "Your linux installation misses the openssl package. You can install it like so:\napt-get -qy update && apt-get -qy install openssl",
	},
	{
		needle: "error while loading shared libraries",
		hint:   "A shared library required by the engine is missing. Install it with your system package manager.",
	},
	{
		needle: "exec format error",
		hint:   "The engine was built for another platform or architecture. Set a matching engine path or binary target.",
	},
	{
		needle: "GLIBC_",
		hint:   "The engine requires a newer glibc than the one installed on this system.",
	},
}

// Hint returns the remediation hint for a recognizable environment problem.
func Hint(message string) string {
	for _, r := range remediations {
		if strings.Contains(message, r.needle) {
			return r.hint
		}
	}
	return ""
}

// Translate maps a failed outcome to a typed error. It returns nil for success.
func (t *Translator) Translate(ec ErrorContext, o Outcome) error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil

	case OutcomePanic:
		message := t.clean(o.Message)
		request := o.RequestEcho
		if request == "" {
			request = ec.Request
		}
		schemaPath := ec.SchemaPath
		if o.SchemaPath != "" {
			schemaPath = o.SchemaPath
		}
		reason := fmt.Sprintf("Engine panicked - (%s %s)", ec.Command, ec.Transport)
		return &PanicError{
			Context:    ec.Name,
			Transport:  ec.Transport,
			Area:       ec.Area,
			Message:    message,
			Stack:      t.clean(o.Stack),
			Request:    request,
			SchemaPath: schemaPath,
			Schemas:    ec.Schemas,
			CLIVersion: t.CLIVersion,
			rendered:   t.render(reason, "", message, ec.Name),
		}

	case OutcomeValidationError:
		message := t.withHint(t.clean(o.Message))
		reason := fmt.Sprintf("Prisma schema validation - (%s %s)", ec.Command, ec.Transport)
		return &SchemaError{
			Context:     ec.Name,
			Transport:   ec.Transport,
			Reason:      reason,
			ErrorCode:   o.ErrorCode,
			Message:     message,
			Diagnostics: o.Diagnostics,
			rendered:    t.render(reason, o.ErrorCode, message, ec.Name),
		}

	default:
		message := o.Message
		if message == "" && o.Err != nil {
			message = o.Err.Error()
		} else if o.Err != nil && !strings.Contains(message, o.Err.Error()) {
			message = message + ": " + o.Err.Error()
		}
		message = t.withHint(t.clean(message))
		reason := fmt.Sprintf("Error while interacting with the engine - (%s %s)", ec.Command, ec.Transport)
		return &EngineError{
			Context:   ec.Name,
			Transport: ec.Transport,
			Reason:    reason,
			Message:   message,
			Cause:     o.Err,
			rendered:  t.render(reason, "", message, ec.Name),
		}
	}
}

func (t *Translator) render(reason, code, message, context string) string {
	var b strings.Builder
	if t.NoColor {
		b.WriteString(reason)
	} else {
		b.WriteString(color.New(color.FgHiRed, color.Bold).Sprint(reason))
	}
	b.WriteByte('\n')
	if code != "" {
		fmt.Fprintf(&b, "Error code: %s\n", code)
	}
	if message != "" {
		b.WriteString(strings.TrimRight(message, "\n"))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "[Context: %s]\n\n", context)
	b.WriteString(t.VersionBlock())
	return b.String()
}

// VersionBlock is the support footer appended to every engine error.
func (t *Translator) VersionBlock() string {
	version := t.CLIVersion
	if version == "" {
		version = "0.0.0"
	}
	return "Prisma CLI Version : " + version
}

// clean relativizes paths under Cwd and strips ANSI sequences when requested.
func (t *Translator) clean(s string) string {
	if root := strings.TrimRight(t.Cwd, string(filepath.Separator)); root != "" {
		s = relativize(s, root+string(filepath.Separator))
	}
	if t.NoColor {
		s = ansi.Strip(s)
	}
	return s
}

// relativize drops prefix from paths that start with it. A path only starts
// where the text does or after whitespace, a quote or an opening bracket, so
// /x/a/b is left alone for the prefix /a/.
func relativize(s, prefix string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, prefix)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		if i == 0 || strings.ContainsRune(" \t\r\n\"'`([<=", rune(s[i-1])) {
			s = s[i+len(prefix):]
			continue
		}
		b.WriteString(prefix)
		s = s[i+len(prefix):]
	}
}

func (t *Translator) withHint(message string) string {
	if hint := Hint(message); hint != "" {
		return message + "\n\n" + hint
	}
	return message
}
