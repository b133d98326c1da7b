// Package player launches external media players on resolved stream URLs.
// All invocations use exec.Command with explicit argument slices, never a
// shell.
package player

import (
	"errors"
	"fmt"
)

// ErrExhausted reports that every candidate failed with a fatal playback
// error. Callers surface retry and skip-provider guidance on it.
var ErrExhausted = errors.New("all stream candidates failed")

// errUnplayable marks a fatal decode or network failure for one candidate,
// as opposed to a clean user quit.
var errUnplayable = errors.New("stream unplayable")

// Candidate is one playable URL, in preference order.
type Candidate struct {
	URL   string
	Label string
}

// Player is one external player backend.
type Player interface {
	// PlayOne plays a single URL to completion. A clean exit (including a
	// user quit) returns nil; a fatal decode/network failure returns an
	// error wrapping errUnplayable.
	PlayOne(url, title string) error

	Name() string

	// Available checks if the player binary exists in PATH.
	Available() bool
}

// New creates a player by name.
func New(name string) Player {
	switch name {
	case "mpv", "":
		return &MPV{}
	case "vlc":
		return &VLC{}
	default:
		// iina, celluloid and friends accept mpv-style flags.
		return &Generic{name: name}
	}
}

// Play walks the candidate list in order, advancing past candidates that
// fail fatally. It returns the candidate that played, or ErrExhausted once
// the list runs out.
func Play(p Player, candidates []Candidate, title string) (Candidate, error) {
	if !p.Available() {
		return Candidate{}, fmt.Errorf("player %s not found in PATH", p.Name())
	}

	var lastErr error
	for _, c := range candidates {
		err := p.PlayOne(c.URL, title)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, errUnplayable) {
			return Candidate{}, err
		}
		lastErr = err
	}

	if lastErr != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
	}
	return Candidate{}, ErrExhausted
}
