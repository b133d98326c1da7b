package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"moray/internal/extract"
	"moray/internal/httputil"
	"moray/internal/media"
)

// maxFrameDepth bounds nested-iframe recursion: embed pages rarely nest more
// than a player behind a wrapper.
const maxFrameDepth = 2

// frameFollower walks a chain of nested embed iframes looking for a stream.
// A visited set guards against cycles and redundant fetches across siblings;
// the depth bound alone does not (two frames pointing at each other would
// otherwise burn the whole budget on one loop).
type frameFollower struct {
	client  *http.Client
	visited map[string]bool
	asFrame bool // send iframe-mimicking fetch-metadata headers
}

func newFrameFollower(client *http.Client) *frameFollower {
	return &frameFollower{client: client, visited: make(map[string]bool)}
}

// follow fetches pageURL and scans it for a stream, recursing into the first
// unvisited nested iframe up to maxFrameDepth. Each hop re-checks the response
// content type before parsing the body as HTML.
func (f *frameFollower) follow(ctx context.Context, pageURL, referer string, depth int) (media.Outcome, error) {
	if depth > maxFrameDepth {
		return media.NotFound(), nil
	}
	if f.visited[pageURL] {
		return media.NotFound(), nil
	}
	f.visited[pageURL] = true

	body, err := f.fetchHTML(ctx, pageURL, referer)
	if err != nil {
		return media.NotFound(), err
	}

	if url, kind, ok := extract.FindStream(body); ok {
		return media.Found(url, kind), nil
	}

	if src, ok := extract.FindIframe(body); ok {
		return f.follow(ctx, resolveRef(pageURL, src), pageURL, depth+1)
	}

	return media.NotFound(), nil
}

// resolveRef resolves a possibly-relative frame src against its page URL.
func resolveRef(pageURL, ref string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	abs, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return abs.String()
}

func (f *frameFollower) fetchHTML(ctx context.Context, pageURL, referer string) (string, error) {
	var resp *http.Response
	var err error
	if f.asFrame {
		resp, err = httputil.GetAsFrame(ctx, f.client, pageURL, referer)
	} else {
		resp, err = httputil.Get(ctx, f.client, pageURL)
	}
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, pageURL)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "javascript") {
		return "", fmt.Errorf("unexpected content type %q for %s", ct, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return string(body), nil
}
