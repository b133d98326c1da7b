package player

import (
	"fmt"
	"os"
	"os/exec"
)

// VLC implements the Player interface for VLC media player.
type VLC struct{}

func (v *VLC) Name() string { return "vlc" }

func (v *VLC) Available() bool {
	_, err := exec.LookPath("vlc")
	return err == nil
}

// PlayOne launches VLC on a single URL. VLC exits non-zero both on user
// close and on failed input, so a non-zero exit counts as fatal only when
// playback never held for long; lacking that signal we treat any exit code
// other than 0 as unplayable and let the caller advance.
func (v *VLC) PlayOne(url, title string) error {
	args := []string{
		url,
		"--meta-title", title,
		"--play-and-exit",
	}

	cmd := exec.Command("vlc", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return fmt.Errorf("%w: vlc exit %d", errUnplayable, exitErr.ExitCode())
	}
	return fmt.Errorf("running vlc: %w", err)
}
