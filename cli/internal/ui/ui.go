// Package ui prints styled terminal output for the CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/pterm/pterm"

	"github.com/satishbabariya/prisma-engines-go/psl/core"
	"github.com/satishbabariya/prisma-engines-go/psl/diagnostics"
)

// Out and Err are where the printers write. Results go to Out, problems and
// progress to Err so stdout stays pipeable.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var (
	successColor = lipgloss.Color("#00FF88")
	warningColor = lipgloss.Color("#FFB800")
	errorColor   = lipgloss.Color("#FF4444")
	infoColor    = lipgloss.Color("#00D9FF")
	mutedColor   = lipgloss.Color("#6C757D")

	successStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(infoColor)
)

func terminalWidth() int {
	if w := pterm.GetTerminalWidth(); w > 0 {
		return w
	}
	return 80
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...any) {
	fmt.Fprintln(Out, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message. Multi-line engine errors keep their
// layout; only the first line is styled.
func PrintError(format string, args ...any) {
	first, rest, _ := strings.Cut(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintln(Err, errorStyle.Render("✗ "+first))
	if rest != "" {
		fmt.Fprintln(Err, rest)
	}
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...any) {
	fmt.Fprintln(Err, warningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...any) {
	fmt.Fprintln(Err, infoStyle.Render("ℹ "+fmt.Sprintf(format, args...)))
}

// PrintTable prints a table with a header row.
func PrintTable(headers []string, rows [][]string) {
	data := append(pterm.TableData{headers}, rows...)
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(Out).WithData(data).Render()
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Fprintf(Out, "  • %s\n", item)
	}
}

// PrintMarkdown renders markdown to Err.
func PrintMarkdown(content string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		return err
	}

	out, err := r.Render(content)
	if err != nil {
		return err
	}
	fmt.Fprint(Err, out)
	return nil
}

// PrintSpinner starts a spinner on Err. Stop it before printing anything else.
func PrintSpinner(message string) (*pterm.SpinnerPrinter, error) {
	return pterm.DefaultSpinner.WithWriter(Err).WithRemoveWhenDone(true).Start(message)
}

// PrintSection prints an underlined section title.
func PrintSection(title string) {
	section := lipgloss.NewStyle().
		Width(terminalWidth()).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(mutedColor).
		Render(title)

	fmt.Fprintln(Out, section)
}

// PrintDiff prints old and new line by line, marking lines that differ.
func PrintDiff(old string, new string) {
	oldLines := strings.Split(old, "\n")
	newLines := strings.Split(new, "\n")

	for i := 0; i < len(oldLines) || i < len(newLines); i++ {
		switch {
		case i < len(oldLines) && i < len(newLines):
			if oldLines[i] == newLines[i] {
				fmt.Fprintln(Out, "  "+oldLines[i])
				continue
			}
			fmt.Fprintln(Out, errorStyle.Render("- "+oldLines[i]))
			fmt.Fprintln(Out, successStyle.Render("+ "+newLines[i]))
		case i < len(oldLines):
			fmt.Fprintln(Out, errorStyle.Render("- "+oldLines[i]))
		default:
			fmt.Fprintln(Out, successStyle.Render("+ "+newLines[i]))
		}
	}
}

// PrintDiagnostics pretty prints engine diagnostics against the files they
// point into.
func PrintDiagnostics(set core.SchemaFileSet, list []diagnostics.Diagnostic) error {
	return diagnostics.PrettyPrintAll(Err, set, list)
}
