package main

import (
	"bytes"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// readPassword reads a passphrase from the terminal without echo. When stdin
// is piped it falls back to /dev/tty so the passphrase never travels through
// the pipe.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		tty, err := os.Open("/dev/tty")
		if err != nil {
			return nil, fmt.Errorf("cannot read passphrase: stdin is not a terminal and /dev/tty is unavailable")
		}
		defer tty.Close()
		fd = int(tty.Fd())
	}

	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return passphrase, nil
}

// readPasswordWithConfirm prompts twice and requires both reads to match.
func readPasswordWithConfirm(prompt, confirmPrompt string) ([]byte, error) {
	passphrase, err := readPassword(prompt)
	if err != nil {
		return nil, err
	}
	confirm, err := readPassword(confirmPrompt)
	if err != nil {
		wipe(passphrase)
		return nil, err
	}
	defer wipe(confirm)

	if !bytes.Equal(passphrase, confirm) {
		wipe(passphrase)
		return nil, fmt.Errorf("passphrases do not match")
	}
	return passphrase, nil
}
