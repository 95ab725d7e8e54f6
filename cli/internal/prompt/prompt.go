// Package prompt asks the user yes/no questions on an interactive terminal.
package prompt

import (
	"errors"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/mattn/go-isatty"
)

// ErrNotInteractive is returned by Confirm when stdin or stdout is not a terminal.
var ErrNotInteractive = errors.New("not an interactive terminal")

// EnvCI marks a CI environment, where prompting is never attempted.
const EnvCI = "CI"

// Interactive reports whether prompts can be shown.
func Interactive() bool {
	if os.Getenv(EnvCI) != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// Confirm asks a yes/no question. Ctrl+C answers no.
func Confirm(message string, def bool, opts ...survey.AskOpt) (bool, error) {
	if len(opts) == 0 && !Interactive() {
		return false, ErrNotInteractive
	}

	answer := def
	err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &answer, opts...)
	if errors.Is(err, terminal.InterruptErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return answer, nil
}
