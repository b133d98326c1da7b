package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"moray/internal/extract"
	"moray/internal/httputil"
	"moray/internal/media"
)

// FeedAPI resolves through an embed host that also exposes a JSON feed of its
// sources. Order of attack: direct page extraction, one iframe level, then
// the feed endpoint keyed by content id.
type FeedAPI struct {
	host    string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewFeedAPI creates the embed+feed-API adapter. The apiKey is injected
// configuration; an empty key skips the feed step.
func NewFeedAPI(host, apiKey string, timeout time.Duration, client *http.Client) *FeedAPI {
	return &FeedAPI{host: host, apiKey: apiKey, timeout: timeout, client: client}
}

func (a *FeedAPI) ID() string             { return "feedapi" }
func (a *FeedAPI) Timeout() time.Duration { return a.timeout }

func (a *FeedAPI) baseURL() string {
	return "https://" + a.host
}

func (a *FeedAPI) EmbedURL(key media.ResolutionKey) string {
	u := fmt.Sprintf("%s/e/%s", a.baseURL(), url.PathEscape(key.ContentID))
	if key.IsEpisode() {
		u += fmt.Sprintf("/%d/%d", key.Season, key.Episode)
	}
	return u
}

// Resolve walks the three steps, degrading to a proxy fallback at the embed
// page when all of them miss but the page itself loaded.
func (a *FeedAPI) Resolve(ctx context.Context, key media.ResolutionKey) (media.Outcome, error) {
	embedURL := a.EmbedURL(key)
	pageLoaded := false

	body, err := httputil.GetHTML(ctx, a.client, embedURL, "")
	if err != nil {
		if ctx.Err() != nil {
			return media.NotFound(), ctx.Err()
		}
	} else {
		pageLoaded = true
		if url, kind, ok := extract.FindStream(body); ok {
			return media.Found(url, kind), nil
		}

		if src, ok := extract.FindIframe(body); ok {
			src = resolveRef(embedURL, src)
			if nested, err := httputil.GetHTML(ctx, a.client, src, embedURL); err == nil {
				if url, kind, ok := extract.FindStream(nested); ok {
					return media.Found(url, kind), nil
				}
			}
			if ctx.Err() != nil {
				return media.NotFound(), ctx.Err()
			}
		}
	}

	if outcome, ok := a.tryFeed(ctx, key); ok {
		return outcome, nil
	}
	if ctx.Err() != nil {
		return media.NotFound(), ctx.Err()
	}

	if pageLoaded {
		return media.ProxyFallback(embedURL), nil
	}
	return media.NotFound(), nil
}

// tryFeed queries the JSON feed endpoint for the key's content id.
func (a *FeedAPI) tryFeed(ctx context.Context, key media.ResolutionKey) (media.Outcome, bool) {
	if a.apiKey == "" {
		return media.NotFound(), false
	}

	feedURL := fmt.Sprintf("%s/api/feed/%s?key=%s", a.baseURL(), url.PathEscape(key.ContentID), url.QueryEscape(a.apiKey))
	if key.IsEpisode() {
		feedURL += fmt.Sprintf("&temp=%d&ep=%d", key.Season, key.Episode)
	}

	body, err := httputil.GetJSON(ctx, a.client, feedURL, a.baseURL())
	if err != nil {
		return media.NotFound(), false
	}

	var feed struct {
		Items []struct {
			URL   string `json:"url"`
			Label string `json:"label"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		return media.NotFound(), false
	}

	for _, item := range feed.Items {
		if item.URL != "" && extract.IsMediaURL(item.URL) {
			return media.Found(item.URL, extract.Classify(item.URL)), true
		}
	}
	return media.NotFound(), false
}
