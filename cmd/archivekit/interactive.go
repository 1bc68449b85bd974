package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/archivekit/archivekit/internal/engine"
	"golang.org/x/term"
)

type interactiveCtxKeyType struct{}

var interactiveCtxKey = interactiveCtxKeyType{}

func isInteractiveEnvironment() bool {
	if os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func withInteractive(ctx context.Context, interactive bool) context.Context {
	return context.WithValue(ctx, interactiveCtxKey, interactive)
}

func isInteractive(ctx context.Context) bool {
	interactive, ok := ctx.Value(interactiveCtxKey).(bool)
	if !ok {
		return false
	}
	return interactive
}

// progressPrinter rewrites a single status line on stderr, or does nothing
// when stderr is not a terminal.
func progressPrinter(ctx context.Context) engine.ProgressFunc {
	if !isInteractive(ctx) {
		return nil
	}
	return func(current, total int, _, name string) {
		fmt.Fprintf(os.Stderr, "\r\033[K[%d/%d] %s", current, total, name)
		if current == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

// readPassword prompts on the terminal without echo.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("cannot prompt for a password: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}
