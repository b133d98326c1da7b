// Package intercept implements the last-resort fallback for keys no adapter
// could resolve: a provider embed page is served through our own origin with
// a reporter script injected, and a message channel collects the media URLs
// the page loads. One Session tracks one playback attempt.
package intercept

import (
	"sync"
	"time"

	"moray/internal/extract"
	"moray/internal/media"
)

// State is one phase of an interception session.
type State string

const (
	// StateAudioSelect waits for the user to pick an audio track. Entered
	// only when more than one track is offered.
	StateAudioSelect State = "audio-select"
	// StateExtracting has the proxied embed loaded and the channel open.
	StateExtracting State = "extracting"
	// StateCustom plays collected candidates in our own player.
	StateCustom State = "custom"
	// StateEmbed renders the provider page directly. Terminal.
	StateEmbed State = "embed"
)

const (
	// DefaultWindow is how long the collector keeps gathering quality
	// variants after the first candidate arrives.
	DefaultWindow = 500 * time.Millisecond
	// DefaultOverall bounds the whole extraction phase.
	DefaultOverall = 20 * time.Second
)

// SessionConfig sets up one interception session.
type SessionConfig struct {
	// AudioTracks offered for this key. With zero or one entries the
	// audio-select phase is skipped.
	AudioTracks []string
	Window      time.Duration
	Overall     time.Duration

	// OnCustom fires once with the candidates in discovery order.
	OnCustom func(candidates []media.InterceptedSource)
	// OnEmbed fires once when extraction gives up (overall timeout or a
	// fatal custom-player error).
	OnEmbed func()
}

// Session is the interception state machine. All methods are safe for
// concurrent use; the channel handler and the timers race for the same
// transitions.
type Session struct {
	mu         sync.Mutex
	state      State
	audioTrack string

	window  time.Duration
	overall time.Duration

	seen       map[string]struct{}
	candidates []media.InterceptedSource

	windowTimer  *time.Timer
	overallTimer *time.Timer

	onCustom func([]media.InterceptedSource)
	onEmbed  func()

	closed bool
	now    func() time.Time
}

// NewSession builds a session and, unless audio selection is pending,
// enters extraction immediately.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		window:   cfg.Window,
		overall:  cfg.Overall,
		seen:     make(map[string]struct{}),
		onCustom: cfg.OnCustom,
		onEmbed:  cfg.OnEmbed,
		now:      time.Now,
	}
	if s.window <= 0 {
		s.window = DefaultWindow
	}
	if s.overall <= 0 {
		s.overall = DefaultOverall
	}
	if s.onCustom == nil {
		s.onCustom = func([]media.InterceptedSource) {}
	}
	if s.onEmbed == nil {
		s.onEmbed = func() {}
	}

	if len(cfg.AudioTracks) > 1 {
		s.state = StateAudioSelect
		return s
	}
	if len(cfg.AudioTracks) == 1 {
		s.audioTrack = cfg.AudioTracks[0]
	}
	s.startExtracting()
	return s
}

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AudioTrack returns the selected track, or "" before selection.
func (s *Session) AudioTrack() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioTrack
}

// SelectAudio resolves the audio-select phase and starts extraction.
// A no-op outside audio-select.
func (s *Session) SelectAudio(track string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateAudioSelect {
		return
	}
	s.audioTrack = track
	s.startExtracting()
}

// startExtracting arms the overall timeout. Caller holds the lock, or the
// session is not yet shared.
func (s *Session) startExtracting() {
	s.state = StateExtracting
	s.overallTimer = time.AfterFunc(s.overall, s.overallExpired)
}

// Report feeds one intercepted URL into the collector. URLs that do not
// match known media patterns are rejected, repeats of an already-seen URL
// are dropped. The first accepted candidate opens the collection window.
// Returns whether the URL was accepted.
func (s *Session) Report(url, sourceTag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != StateExtracting {
		return false
	}
	if !extract.IsMediaURL(url) {
		return false
	}
	if _, dup := s.seen[url]; dup {
		return false
	}

	s.seen[url] = struct{}{}
	s.candidates = append(s.candidates, media.InterceptedSource{
		URL:        url,
		Kind:       extract.Classify(url),
		SourceTag:  sourceTag,
		DetectedAt: s.now(),
	})

	if len(s.candidates) == 1 {
		s.windowTimer = time.AfterFunc(s.window, s.windowClosed)
	}
	return true
}

// Candidates returns the collected sources in discovery order.
func (s *Session) Candidates() []media.InterceptedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]media.InterceptedSource, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// windowClosed moves the session to custom playback with whatever the
// window gathered.
func (s *Session) windowClosed() {
	s.mu.Lock()
	if s.closed || s.state != StateExtracting {
		s.mu.Unlock()
		return
	}
	s.state = StateCustom
	s.stopTimers()
	candidates := make([]media.InterceptedSource, len(s.candidates))
	copy(candidates, s.candidates)
	s.mu.Unlock()

	s.onCustom(candidates)
}

// overallExpired gives up on extraction and falls through to the raw embed.
func (s *Session) overallExpired() {
	s.mu.Lock()
	if s.closed || s.state != StateExtracting {
		s.mu.Unlock()
		return
	}
	s.state = StateEmbed
	s.stopTimers()
	s.mu.Unlock()

	s.onEmbed()
}

// PlayerFailed signals a fatal decode or network error from the custom
// player; the session falls back to the raw embed.
func (s *Session) PlayerFailed() {
	s.mu.Lock()
	if s.closed || s.state != StateCustom {
		s.mu.Unlock()
		return
	}
	s.state = StateEmbed
	s.mu.Unlock()

	s.onEmbed()
}

// Close tears the session down. Both timers are stopped so nothing leaks
// into the next playback session; further reports and transitions are
// ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimers()
}

// stopTimers stops both timers. Caller holds the lock.
func (s *Session) stopTimers() {
	if s.windowTimer != nil {
		s.windowTimer.Stop()
		s.windowTimer = nil
	}
	if s.overallTimer != nil {
		s.overallTimer.Stop()
		s.overallTimer = nil
	}
}
