package player

import (
	"fmt"
	"os"
	"os/exec"
)

// MPV implements the Player interface for mpv.
type MPV struct{}

func (m *MPV) Name() string { return "mpv" }

func (m *MPV) Available() bool {
	_, err := exec.LookPath("mpv")
	return err == nil
}

// PlayOne launches mpv on a single URL. mpv exits 2 when the file could not
// be played and 3 when some of several files failed; both count as fatal so
// the caller advances to the next candidate. A user quit exits 0 or 4.
func (m *MPV) PlayOne(url, title string) error {
	args := []string{
		url,
		"--force-media-title=" + title,
		"--really-quiet",
	}

	cmd := exec.Command("mpv", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		switch exitErr.ExitCode() {
		case 2, 3:
			return fmt.Errorf("%w: mpv exit %d", errUnplayable, exitErr.ExitCode())
		default:
			return nil
		}
	}
	return fmt.Errorf("running mpv: %w", err)
}
