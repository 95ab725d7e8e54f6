package diagnostics

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

// Colorer defines how a diagnostic title and offending text are colored.
type Colorer interface {
	Title() string
	PrimaryColor(text string) string
}

// ErrorColorer provides coloring for error diagnostics.
type ErrorColorer struct{}

// Title returns the title for errors.
func (ErrorColorer) Title() string {
	return "error"
}

// PrimaryColor returns the colored text for errors.
func (ErrorColorer) PrimaryColor(text string) string {
	return color.New(color.FgRed, color.Bold).Sprint(text)
}

// WarningColorer provides coloring for warning diagnostics.
type WarningColorer struct{}

// Title returns the title for warnings.
func (WarningColorer) Title() string {
	return "warning"
}

// PrimaryColor returns the colored text for warnings.
func (WarningColorer) PrimaryColor(text string) string {
	return color.New(color.FgYellow, color.Bold).Sprint(text)
}

// ColorerFor picks the colorer matching the diagnostic severity.
func ColorerFor(d Diagnostic) Colorer {
	if d.IsWarning {
		return WarningColorer{}
	}
	return ErrorColorer{}
}

// PrettyPrint writes a diagnostic with the offending portion of its file.
// A span crossing a file boundary is cut at the end of the file it starts in.
func PrettyPrint(w io.Writer, set core.SchemaFileSet, d Diagnostic) error {
	r, err := Resolve(set, d)
	if err != nil {
		return err
	}
	file, ok := set.Lookup(r.StartPosition.File)
	if !ok {
		return fmt.Errorf("diagnostic points to unknown file %q", r.StartPosition.File)
	}

	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	colorer := ColorerFor(d)

	text := file.Content
	start := r.StartPosition.Offset
	end := start + (r.End - r.Start)
	if end > len(text) {
		end = len(text)
	}

	startLine := strings.Count(text[:start], "\n")
	endLine := strings.Count(text[:end], "\n")
	lines := strings.Split(text, "\n")

	lineStart := strings.LastIndexByte(text[:start], '\n') + 1
	line := lines[startLine]
	startInLine := start - lineStart
	endInLine := startInLine + (end - start)
	if endInLine > len(line) {
		endInLine = len(line)
	}

	prefix := line[:startInLine]
	offending := line[startInLine:endInLine]
	suffix := line[endInLine:]

	titleColor := color.New(color.Bold)
	arrowColor := color.New(color.FgCyan, color.Bold)
	filePathColor := color.New(color.Underline)
	lineNumColor := color.New(color.FgCyan, color.Bold)

	titleColor.Fprintf(w, "%s: %s\n", colorer.Title(), d.Text)
	arrowColor.Fprint(w, "  --> ")
	filePathColor.Fprintf(w, "%s:%d\n", file.Name, startLine+1)
	lineNumColor.Fprint(w, "   | \n")

	if startLine > 0 {
		lineNumColor.Fprintf(w, "%2d | ", startLine)
		fmt.Fprintln(w, lines[startLine-1])
	}

	lineNumColor.Fprintf(w, "%2d | ", startLine+1)
	fmt.Fprint(w, prefix, colorer.PrimaryColor(offending), suffix, "\n")

	if offending == "" {
		lineNumColor.Fprint(w, "   | ")
		fmt.Fprint(w, strings.Repeat(" ", startInLine), colorer.PrimaryColor("^ Unexpected token."), "\n")
	}

	for n := startLine + 2; n <= endLine+1 && n <= len(lines); n++ {
		lineNumColor.Fprintf(w, "%2d | ", n)
		fmt.Fprintln(w, lines[n-1])
	}

	lineNumColor.Fprint(w, "   | \n")
	return nil
}

// PrettyPrintAll writes every diagnostic separated by a blank line.
func PrettyPrintAll(w io.Writer, set core.SchemaFileSet, list []Diagnostic) error {
	for i, d := range list {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := PrettyPrint(w, set, d); err != nil {
			return err
		}
	}
	return nil
}
