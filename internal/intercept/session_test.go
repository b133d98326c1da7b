package intercept

import (
	"testing"
	"time"

	"moray/internal/media"
)

func TestSingleAudioTrackSkipsSelection(t *testing.T) {
	s := NewSession(SessionConfig{AudioTracks: []string{"legendado"}})
	defer s.Close()

	if s.State() != StateExtracting {
		t.Fatalf("state = %q, want extracting", s.State())
	}
	if s.AudioTrack() != "legendado" {
		t.Errorf("audio track = %q", s.AudioTrack())
	}
}

func TestMultipleAudioTracksWaitForSelection(t *testing.T) {
	s := NewSession(SessionConfig{AudioTracks: []string{"legendado", "dublado"}})
	defer s.Close()

	if s.State() != StateAudioSelect {
		t.Fatalf("state = %q, want audio-select", s.State())
	}
	if s.Report("https://cdn.example/x.m3u8", "fetch") {
		t.Error("report accepted before extraction started")
	}

	s.SelectAudio("dublado")
	if s.State() != StateExtracting {
		t.Fatalf("state = %q after selection, want extracting", s.State())
	}
	if s.AudioTrack() != "dublado" {
		t.Errorf("audio track = %q", s.AudioTrack())
	}
}

func TestReportDeduplicatesByExactURL(t *testing.T) {
	s := NewSession(SessionConfig{Window: time.Hour, Overall: time.Hour})
	defer s.Close()

	if !s.Report("https://cdn.example/master.m3u8", "fetch") {
		t.Fatal("first report rejected")
	}
	if s.Report("https://cdn.example/master.m3u8", "xhr") {
		t.Error("duplicate URL accepted")
	}
	if !s.Report("https://cdn.example/720.m3u8", "xhr") {
		t.Error("distinct URL rejected")
	}

	if got := len(s.Candidates()); got != 2 {
		t.Fatalf("got %d candidates, want 2", got)
	}
}

func TestReportRejectsNonMediaURLs(t *testing.T) {
	s := NewSession(SessionConfig{Window: time.Hour, Overall: time.Hour})
	defer s.Close()

	if s.Report("https://cdn.example/tracker.js", "fetch") {
		t.Error("non-media URL accepted")
	}
	if len(s.Candidates()) != 0 {
		t.Error("candidate list not empty")
	}
}

func TestCollectionWindowTransitionsToCustom(t *testing.T) {
	got := make(chan []media.InterceptedSource, 1)
	s := NewSession(SessionConfig{
		Window:   30 * time.Millisecond,
		Overall:  time.Hour,
		OnCustom: func(candidates []media.InterceptedSource) { got <- candidates },
	})
	defer s.Close()

	s.Report("https://cdn.example/master.m3u8", "fetch")
	s.Report("https://cdn.example/720.m3u8", "fetch")

	select {
	case candidates := <-got:
		if len(candidates) != 2 {
			t.Fatalf("got %d candidates, want 2", len(candidates))
		}
		if candidates[0].URL != "https://cdn.example/master.m3u8" {
			t.Error("candidates not in discovery order")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("collection window never closed")
	}

	if s.State() != StateCustom {
		t.Errorf("state = %q, want custom", s.State())
	}
	if s.Report("https://cdn.example/late.m3u8", "fetch") {
		t.Error("report accepted after the window closed")
	}
}

func TestOverallTimeoutFallsBackToEmbed(t *testing.T) {
	embed := make(chan struct{}, 1)
	s := NewSession(SessionConfig{
		Window:  time.Hour,
		Overall: 30 * time.Millisecond,
		OnEmbed: func() { embed <- struct{}{} },
	})
	defer s.Close()

	select {
	case <-embed:
	case <-time.After(2 * time.Second):
		t.Fatal("overall timeout never fired")
	}
	if s.State() != StateEmbed {
		t.Errorf("state = %q, want embed", s.State())
	}
}

func TestFirstCandidateSuppressesOverallTimeout(t *testing.T) {
	embed := make(chan struct{}, 1)
	custom := make(chan struct{}, 1)
	s := NewSession(SessionConfig{
		Window:   20 * time.Millisecond,
		Overall:  60 * time.Millisecond,
		OnCustom: func([]media.InterceptedSource) { custom <- struct{}{} },
		OnEmbed:  func() { embed <- struct{}{} },
	})
	defer s.Close()

	s.Report("https://cdn.example/master.m3u8", "fetch")

	select {
	case <-custom:
	case <-time.After(2 * time.Second):
		t.Fatal("window close never fired")
	}

	select {
	case <-embed:
		t.Fatal("overall timeout fired after a successful window close")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestPlayerFailureFallsBackToEmbed(t *testing.T) {
	embed := make(chan struct{}, 1)
	s := NewSession(SessionConfig{
		Window:  10 * time.Millisecond,
		Overall: time.Hour,
		OnEmbed: func() { embed <- struct{}{} },
	})
	defer s.Close()

	s.Report("https://cdn.example/master.m3u8", "fetch")
	waitForState(t, s, StateCustom)

	s.PlayerFailed()
	select {
	case <-embed:
	case <-time.After(2 * time.Second):
		t.Fatal("player failure did not reach embed")
	}
	if s.State() != StateEmbed {
		t.Errorf("state = %q, want embed", s.State())
	}
}

func TestCloseStopsTimers(t *testing.T) {
	fired := make(chan struct{}, 2)
	s := NewSession(SessionConfig{
		Window:   20 * time.Millisecond,
		Overall:  40 * time.Millisecond,
		OnCustom: func([]media.InterceptedSource) { fired <- struct{}{} },
		OnEmbed:  func() { fired <- struct{}{} },
	})
	s.Report("https://cdn.example/master.m3u8", "fetch")
	s.Close()

	select {
	case <-fired:
		t.Fatal("a timer fired after Close")
	case <-time.After(120 * time.Millisecond):
	}
	if s.Report("https://cdn.example/720.m3u8", "fetch") {
		t.Error("report accepted after Close")
	}
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %q never reached, stuck at %q", want, s.State())
}
