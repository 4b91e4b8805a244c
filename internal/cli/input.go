package cli

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// readPassphrase prompts on stderr and reads without echo. Falls back to an
// error rather than echoing when stdin is not a terminal.
func readPassphrase(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("passphrase entry requires a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	if len(pass) == 0 {
		return nil, errors.New("empty passphrase")
	}
	return pass, nil
}
