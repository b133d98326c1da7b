package extract

import (
	"testing"

	"moray/internal/media"
)

func TestFindStreamSourcesArray(t *testing.T) {
	body := `
<script>
var player = jwplayer("video").setup({
  sources: [{"file":"https:\/\/cdn.example\/hls\/master.m3u8","type":"hls"},
            {"file":"https:\/\/cdn.example\/hls\/backup.m3u8"}],
  autostart: true
});
</script>`

	url, kind, ok := FindStream(body)
	if !ok {
		t.Fatal("expected a stream from sources array")
	}
	if url != "https://cdn.example/hls/master.m3u8" {
		t.Errorf("url = %q, want first sources entry", url)
	}
	if kind != media.Playlist {
		t.Errorf("kind = %q, want playlist", kind)
	}
}

func TestFindStreamFileLiteral(t *testing.T) {
	body := `player.setup({file: "https://cdn.example/v/movie.mp4?token=abc", image: "poster.jpg"});`

	url, kind, ok := FindStream(body)
	if !ok {
		t.Fatal("expected a stream from file literal")
	}
	if url != "https://cdn.example/v/movie.mp4?token=abc" {
		t.Errorf("url = %q", url)
	}
	if kind != media.DirectFile {
		t.Errorf("kind = %q, want direct-file", kind)
	}
}

func TestFindStreamGenericScan(t *testing.T) {
	body := `<html><body>
<script src="https://www.google-analytics.com/analytics.js"></script>
<script>loadVideo("https://stream.example/live/playlist.m3u8");</script>
</body></html>`

	url, kind, ok := FindStream(body)
	if !ok {
		t.Fatal("expected a stream from generic scan")
	}
	if url != "https://stream.example/live/playlist.m3u8" {
		t.Errorf("url = %q, noise host must be skipped", url)
	}
	if kind != media.Playlist {
		t.Errorf("kind = %q, want playlist", kind)
	}
}

func TestFindStreamPriorityOrder(t *testing.T) {
	// A sources array must win over a later bare m3u8 URL.
	body := `
sources: [{"file":"https://cdn.example/a.m3u8"}]
fallback = "https://cdn.example/zzz.m3u8"`

	url, _, ok := FindStream(body)
	if !ok || url != "https://cdn.example/a.m3u8" {
		t.Errorf("url = %q, want sources-array entry first", url)
	}
}

func TestFindStreamNothing(t *testing.T) {
	body := `<html><head><title>404</title></head><body>not here</body></html>`
	if _, _, ok := FindStream(body); ok {
		t.Error("expected no stream in plain page")
	}
}

func TestFindStreamNoiseOnly(t *testing.T) {
	body := `src = "https://googlesyndication.com/pagead/master.js"`
	if url, _, ok := FindStream(body); ok {
		t.Errorf("noise URL %q must not be reported", url)
	}
}

func TestFindIframe(t *testing.T) {
	body := `<div><iframe width="640" src="https://embed.example/e/abc123" allowfullscreen></iframe></div>`
	src, ok := FindIframe(body)
	if !ok || src != "https://embed.example/e/abc123" {
		t.Errorf("FindIframe = %q, %v", src, ok)
	}

	if _, ok := FindIframe("<div>no frames</div>"); ok {
		t.Error("expected no iframe")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want media.SourceKind
	}{
		{"https://cdn.example/v.mp4", media.DirectFile},
		{"https://cdn.example/v.mp4?e=1", media.DirectFile},
		{"https://cdn.example/master.m3u8", media.Playlist},
		{"https://cdn.example/manifest.mpd", media.Playlist},
	}
	for _, tt := range tests {
		if got := Classify(tt.url); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestIsMediaURL(t *testing.T) {
	if IsMediaURL("https://www.googletagmanager.com/master.js") {
		t.Error("noise host must not classify as media")
	}
	if !IsMediaURL("https://cdn.example/ep/playlist.m3u8") {
		t.Error("m3u8 URL must classify as media")
	}
	if IsMediaURL("https://cdn.example/logo.png") {
		t.Error("non-media URL must not classify as media")
	}
}
