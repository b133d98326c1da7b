package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"moray/internal/media"
)

// newEmbedServer starts a TLS server and returns it with its bare host
// (adapters prepend the scheme themselves).
func newEmbedServer(t *testing.T, handler http.Handler) (*httptest.Server, string) {
	t.Helper()
	ts := httptest.NewTLSServer(handler)
	t.Cleanup(ts.Close)
	return ts, strings.TrimPrefix(ts.URL, "https://")
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

func movieKey() media.ResolutionKey {
	return media.ResolutionKey{ContentID: "603", Type: media.Movie, AudioTrack: "legendado", TitleHint: "The Matrix"}
}

func TestCatalogResolveMovie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/assistir/the-matrix", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body><iframe src="/player/603"></iframe></body></html>`)
	})
	mux.HandleFunc("/player/603", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<script>sources: [{"file":"https://cdn.example/x.mp4"}]</script>`)
	})
	ts, host := newEmbedServer(t, mux)

	c := NewCatalog(host, 10, 8*time.Second, ts.Client())

	outcome, err := c.Resolve(context.Background(), movieKey())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusFound {
		t.Fatalf("status = %v, want Found", outcome.Status)
	}
	if outcome.URL != "https://cdn.example/x.mp4" {
		t.Errorf("url = %q", outcome.URL)
	}
	if outcome.Kind != media.DirectFile {
		t.Errorf("kind = %q, want direct-file", outcome.Kind)
	}
}

func TestCatalogResolveViaDiscovery(t *testing.T) {
	mux := http.NewServeMux()
	// No slug guess works; only the discovered slug page exists.
	mux.HandleFunc("/catalogo/filmes", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			writeHTML(w, `<div class="catalog-item"><a data-external-id="603" href="/assistir/matrix-discovered">M</a></div>`)
			return
		}
		writeHTML(w, `<div class="catalog"></div>`)
	})
	mux.HandleFunc("/assistir/matrix-discovered", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<iframe src="/p"></iframe>`)
	})
	mux.HandleFunc("/p", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `file: "https://cdn.example/hls/master.m3u8"`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	ts, host := newEmbedServer(t, mux)

	key := movieKey()
	key.TitleHint = "" // force discovery: the bare content id 404s too

	c := NewCatalog(host, 10, 8*time.Second, ts.Client())
	outcome, err := c.Resolve(context.Background(), key)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusFound || outcome.URL != "https://cdn.example/hls/master.m3u8" {
		t.Fatalf("outcome = %+v, want discovered stream", outcome)
	}
}

func TestCatalogEpisodeRefHeuristics(t *testing.T) {
	key := media.ResolutionKey{
		ContentID: "1396", Type: media.Series, AudioTrack: "dublado",
		Season: 2, Episode: 5,
	}

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"query parameter match",
			`<a href="/watch?temp=2&ep=5">S2E5</a><a href="/watch?temp=2&ep=6">S2E6</a>`,
			"https://h/watch?temp=2&ep=5",
		},
		{
			"slugged path match",
			`<a href="/serie/breaking/temporada-2/episodio-5">x</a>`,
			"https://h/serie/breaking/temporada-2/episodio-5",
		},
		{
			"NxNN path match",
			`<iframe src="/embed/breaking-2x05"></iframe>`,
			"https://h/embed/breaking-2x05",
		},
		{
			"data attribute match",
			`<div data-player-src="/play/88" data-season="2" data-episode="5"></div>`,
			"https://h/play/88",
		},
		{
			"no match",
			`<a href="/watch?temp=1&ep=1">S1E1</a>`,
			"",
		},
	}

	c := &Catalog{host: "h"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			if err != nil {
				t.Fatal(err)
			}
			if got := c.episodeRef(doc, key); got != tt.want {
				t.Errorf("episodeRef = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInlineEmbedFindsInlineSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embed/603", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<script>var sources = [{"file":"https://cdn.example/in.m3u8"}];</script>`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	ts, host := newEmbedServer(t, mux)

	a := NewInlineEmbed([]string{host}, 8*time.Second, ts.Client())
	outcome, err := a.Resolve(context.Background(), movieKey())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusFound || outcome.URL != "https://cdn.example/in.m3u8" {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestInlineEmbedProxyFallback(t *testing.T) {
	mux := http.NewServeMux()
	// Loads fine but exposes nothing scrapable.
	mux.HandleFunc("/embed/603", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body><video id="opaque"></video></body></html>`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	ts, host := newEmbedServer(t, mux)

	a := NewInlineEmbed([]string{host}, 8*time.Second, ts.Client())
	outcome, err := a.Resolve(context.Background(), movieKey())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusProxyFallback {
		t.Fatalf("status = %v, want ProxyFallback", outcome.Status)
	}
	if !strings.HasSuffix(outcome.EmbedURL, "/embed/603") {
		t.Errorf("embed url = %q", outcome.EmbedURL)
	}
}

func TestMultiServerSkipsGatedServer(t *testing.T) {
	var ts *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/video/603", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<div data-video-id="9001">
<button data-server="1"></button><button data-server="2"></button></div>`)
	})
	mux.HandleFunc("/api/source/9001", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"url":%q}`, ts.URL+"/play/"+r.URL.Query().Get("server"))
	})
	mux.HandleFunc("/play/1", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body>Para continuar, faça login na sua conta.</body></html>`)
	})
	mux.HandleFunc("/play/2", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<script>file: "https://cdn.example/ms.mp4"</script>`)
	})
	ts, host := newEmbedServer(t, mux)

	a := NewMultiServer(host, 15*time.Second, ts.Client())
	outcome, err := a.Resolve(context.Background(), movieKey())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusFound || outcome.URL != "https://cdn.example/ms.mp4" {
		t.Fatalf("outcome = %+v, want server 2 stream", outcome)
	}
}

func TestMultiServerSecondaryAPI(t *testing.T) {
	var ts *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/video/603", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<div data-video-id="77" data-server="3"></div>`)
	})
	mux.HandleFunc("/api/source/77", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"url":%q}`, ts.URL+"/opaque")
	})
	mux.HandleFunc("/opaque", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body>nothing inline</body></html>`)
	})
	mux.HandleFunc("/api/stream/77", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"file":"https://cdn.example/sec/playlist.m3u8"}`)
	})
	ts, host := newEmbedServer(t, mux)

	a := NewMultiServer(host, 15*time.Second, ts.Client())
	outcome, err := a.Resolve(context.Background(), movieKey())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusFound || outcome.URL != "https://cdn.example/sec/playlist.m3u8" {
		t.Fatalf("outcome = %+v, want secondary API stream", outcome)
	}
	if outcome.Kind != media.Playlist {
		t.Errorf("kind = %q, want playlist", outcome.Kind)
	}
}

func TestGatewayChallengeFallsBackToProxy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body>Verificando o navegador antes de continuar...</body></html>`)
	})
	ts, host := newEmbedServer(t, mux)

	a := NewGateway(host, 6*time.Second, ts.Client())
	outcome, err := a.Resolve(context.Background(), movieKey())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusProxyFallback {
		t.Fatalf("status = %v, want ProxyFallback on challenge page", outcome.Status)
	}
	if outcome.EmbedURL != a.EmbedURL(movieKey()) {
		t.Errorf("embed url = %q, want original embed", outcome.EmbedURL)
	}
}

func TestGatewayNestedIframe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/player/603", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<iframe src="/inner"></iframe>`)
	})
	mux.HandleFunc("/inner", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `source: "https://cdn.example/gw.m3u8"`)
	})
	ts, host := newEmbedServer(t, mux)

	a := NewGateway(host, 6*time.Second, ts.Client())
	outcome, err := a.Resolve(context.Background(), movieKey())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusFound || outcome.URL != "https://cdn.example/gw.m3u8" {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestFeedAPIFallsThroughToFeed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/e/603", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body>opaque player</body></html>`)
	})
	mux.HandleFunc("/api/feed/603", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k-1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"url":"https://cdn.example/feed.mp4","label":"720p"}]}`)
	})
	ts, host := newEmbedServer(t, mux)

	a := NewFeedAPI(host, "k-1", 8*time.Second, ts.Client())
	outcome, err := a.Resolve(context.Background(), movieKey())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusFound || outcome.URL != "https://cdn.example/feed.mp4" {
		t.Fatalf("outcome = %+v, want feed stream", outcome)
	}
}

func TestFeedAPIWithoutKeyReturnsProxy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/e/603", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body>opaque player</body></html>`)
	})
	ts, host := newEmbedServer(t, mux)

	a := NewFeedAPI(host, "", 8*time.Second, ts.Client())
	outcome, err := a.Resolve(context.Background(), movieKey())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusProxyFallback {
		t.Fatalf("status = %v, want ProxyFallback", outcome.Status)
	}
}

func TestAltEmbedProxySignal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body><div id="player-shell"></div></body></html>`)
	})
	ts, host := newEmbedServer(t, mux)

	a := NewAltEmbed(host, 6*time.Second, ts.Client())
	key := media.ResolutionKey{
		ContentID: "1396", Type: media.Series, AudioTrack: "dublado",
		Season: 2, Episode: 5,
	}
	outcome, err := a.Resolve(context.Background(), key)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if outcome.Status != media.StatusProxyFallback {
		t.Fatalf("status = %v, want ProxyFallback", outcome.Status)
	}
	if !strings.Contains(outcome.EmbedURL, "/assistir/1396/2x05/dublado") {
		t.Errorf("embed url = %q", outcome.EmbedURL)
	}
}

func TestFrameFollowerCycleDetection(t *testing.T) {
	mux := http.NewServeMux()
	var ts *httptest.Server
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, fmt.Sprintf(`<iframe src="%s/b"></iframe>`, ts.URL))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, fmt.Sprintf(`<iframe src="%s/a"></iframe>`, ts.URL))
	})
	ts, _ = newEmbedServer(t, mux)

	f := newFrameFollower(ts.Client())
	outcome, err := f.follow(context.Background(), ts.URL+"/a", "", 0)
	if err != nil {
		t.Fatalf("follow error: %v", err)
	}
	if outcome.Status != media.StatusNotFound {
		t.Errorf("status = %v, want NotFound on cycle", outcome.Status)
	}
}
