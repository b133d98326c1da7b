// Package ui wraps fzf for the interactive prompts moray needs: audio-track
// choice, provider choice, and retry menus. Items are piped as plain text on
// stdin, never through a shell or --preview string.
package ui

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrCancelled reports that the user dismissed the prompt.
var ErrCancelled = errors.New("selection cancelled")

// Select shows items in fzf and returns the chosen index. Each line is
// prefixed with its index in a hidden field so the answer survives
// display-text collisions.
func Select(prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, errors.New("no items to select from")
	}

	fzfPath, err := exec.LookPath("fzf")
	if err != nil {
		return -1, fmt.Errorf("fzf not found in PATH: %w", err)
	}

	var input strings.Builder
	for i, item := range items {
		fmt.Fprintf(&input, "%d\t%s\n", i, item)
	}

	cmd := exec.Command(fzfPath,
		"--prompt", prompt+" > ",
		"--delimiter", "\t",
		"--with-nth", "2..",
		"--height", "40%",
		"--reverse",
		"--no-multi",
		"--cycle",
	)
	cmd.Stdin = strings.NewReader(input.String())
	cmd.Stderr = os.Stderr

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 130 {
			return -1, ErrCancelled
		}
		return -1, fmt.Errorf("running fzf: %w", err)
	}

	line := strings.TrimSpace(stdout.String())
	field, _, _ := strings.Cut(line, "\t")
	idx, err := strconv.Atoi(field)
	if err != nil {
		return -1, fmt.Errorf("parsing selection %q: %w", line, err)
	}
	if idx < 0 || idx >= len(items) {
		return -1, fmt.Errorf("selection index %d out of range", idx)
	}
	return idx, nil
}

// Confirm asks a yes/no question.
func Confirm(prompt string) (bool, error) {
	idx, err := Select(prompt, []string{"Yes", "No"})
	if err != nil {
		return false, err
	}
	return idx == 0, nil
}
