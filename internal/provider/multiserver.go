package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"moray/internal/extract"
	"moray/internal/httputil"
	"moray/internal/media"
)

// MultiServer resolves through an embed host that fans one content id out to
// several internal "servers", each reachable via a redirect API. It is the
// slowest adapter in the chain: embed page, then up to one API call plus one
// page fetch per server.
type MultiServer struct {
	host    string
	timeout time.Duration
	client  *http.Client
}

// NewMultiServer creates the embed+multi-server adapter.
func NewMultiServer(host string, timeout time.Duration, client *http.Client) *MultiServer {
	return &MultiServer{host: host, timeout: timeout, client: client}
}

func (a *MultiServer) ID() string             { return "multiserver" }
func (a *MultiServer) Timeout() time.Duration { return a.timeout }

func (a *MultiServer) baseURL() string {
	return "https://" + a.host
}

func (a *MultiServer) EmbedURL(key media.ResolutionKey) string {
	u := fmt.Sprintf("%s/video/%s", a.baseURL(), url.PathEscape(key.ContentID))
	if key.IsEpisode() {
		u += fmt.Sprintf("?temp=%d&ep=%d", key.Season, key.Episode)
	}
	return u
}

var (
	internalIDRe = regexp.MustCompile(`data-video-id\s*=\s*["'](\d+)["']`)
	serverIDRe   = regexp.MustCompile(`data-server\s*=\s*["'](\d+)["']`)
)

// gateMarkers identify an authentication gate page served in place of a
// player. A gated server is skipped, not fatal for the adapter.
var gateMarkers = []string{"faça login", "fazer login", "sign in to continue", "account-gate"}

// Resolve loads the embed page, enumerates its servers, and chases each
// server's redirect to a player page.
func (a *MultiServer) Resolve(ctx context.Context, key media.ResolutionKey) (media.Outcome, error) {
	embedHTML, err := httputil.GetHTML(ctx, a.client, a.EmbedURL(key), "")
	if err != nil {
		if ctx.Err() != nil {
			return media.NotFound(), ctx.Err()
		}
		return media.NotFound(), nil
	}

	idMatch := internalIDRe.FindStringSubmatch(embedHTML)
	if idMatch == nil {
		return media.NotFound(), nil
	}
	internalID := idMatch[1]

	servers := uniqueMatches(serverIDRe, embedHTML)
	if len(servers) == 0 {
		return media.NotFound(), nil
	}

	for _, server := range servers {
		outcome, err := a.tryServer(ctx, internalID, server)
		if err != nil {
			if ctx.Err() != nil {
				return media.NotFound(), ctx.Err()
			}
			continue
		}
		if outcome.Status == media.StatusFound {
			return outcome, nil
		}
	}

	return media.NotFound(), nil
}

// tryServer asks the redirect API for one server's player link and scans the
// resulting page, then the host's secondary stream API.
func (a *MultiServer) tryServer(ctx context.Context, internalID, server string) (media.Outcome, error) {
	apiURL := fmt.Sprintf("%s/api/source/%s?server=%s", a.baseURL(), internalID, server)
	body, err := httputil.GetJSON(ctx, a.client, apiURL, a.baseURL())
	if err != nil {
		return media.NotFound(), err
	}

	var redirect struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &redirect); err != nil {
		return media.NotFound(), fmt.Errorf("parsing redirect response: %w", err)
	}
	if redirect.URL == "" {
		return media.NotFound(), nil
	}

	pageHTML, err := httputil.GetHTML(ctx, a.client, redirect.URL, a.baseURL())
	if err != nil {
		return media.NotFound(), err
	}

	if isGatePage(pageHTML) {
		// This server wants a login; the next one may not.
		return media.NotFound(), nil
	}

	if url, kind, ok := extract.FindStream(pageHTML); ok {
		return media.Found(url, kind), nil
	}

	// Secondary API on the same host sometimes carries what the page hides.
	streamURL := fmt.Sprintf("%s/api/stream/%s", a.baseURL(), internalID)
	if body, err := httputil.GetJSON(ctx, a.client, streamURL, redirect.URL); err == nil {
		var stream struct {
			File string `json:"file"`
		}
		if json.Unmarshal(body, &stream) == nil && stream.File != "" && extract.IsMediaURL(stream.File) {
			return media.Found(stream.File, extract.Classify(stream.File)), nil
		}
	}

	return media.NotFound(), nil
}

func isGatePage(body string) bool {
	lowered := strings.ToLower(body)
	for _, m := range gateMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

func uniqueMatches(re *regexp.Regexp, body string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
