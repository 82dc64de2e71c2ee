package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

// TerminalConfig creates the configuration of every prompt.
var TerminalConfig = func() *readline.Config {
	return &readline.Config{
		Stdin:  os.Stdin,
		Stdout: os.Stderr,
	}
}

// PromptIfEmpty asks on the terminal for a value of *of as long as it is
// empty. If canBeEmpty is set one empty answer is accepted.
func PromptIfEmpty(of *string, promptName string, canBeEmpty, isPassword bool) error {
	if *of != "" {
		return nil
	}

	l, err := readline.NewEx(TerminalConfig())
	if err != nil {
		return fmt.Errorf("could not read from terminal for prompt %q: %w", promptName, err)
	}
	defer func() {
		_ = l.Close()
	}()

	prompt := fmt.Sprintf("Enter %s: ", promptName)
	l.SetPrompt(prompt)
	l.ResetHistory()

	for {
		var line string
		if isPassword {
			var b []byte
			b, err = l.ReadPassword(prompt)
			line = string(b)
		} else {
			line, err = l.Readline()
		}
		if err != nil {
			return fmt.Errorf("could not read from terminal for prompt %q: %w", promptName, err)
		}

		if line = strings.TrimSpace(line); line != "" || canBeEmpty {
			*of = line
			return nil
		}
	}
}
