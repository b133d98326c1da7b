package player

import (
	"fmt"
	"os"
	"os/exec"
)

// Generic implements the Player interface for players like iina and
// celluloid that accept mpv-compatible arguments.
type Generic struct {
	name string
}

func (g *Generic) Name() string { return g.name }

func (g *Generic) Available() bool {
	_, err := exec.LookPath(g.name)
	return err == nil
}

// PlayOne launches the generic player with mpv-style flags. Exit codes vary
// across wrappers, so any non-zero exit counts as unplayable.
func (g *Generic) PlayOne(url, title string) error {
	args := []string{
		url,
		"--force-media-title=" + title,
	}

	cmd := exec.Command(g.name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return fmt.Errorf("%w: %s exit %d", errUnplayable, g.name, exitErr.ExitCode())
	}
	return fmt.Errorf("running %s: %w", g.name, err)
}
