package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"moray/internal/media"
)

// AltEmbed is the last-priority strategy: a secondary embed host with the
// plain direct/iframe approach. Its proxy fallback is the generic "this page
// is itself a player" signal the intercept layer feeds on.
type AltEmbed struct {
	host    string
	timeout time.Duration
	client  *http.Client
}

// NewAltEmbed creates the secondary-embed adapter.
func NewAltEmbed(host string, timeout time.Duration, client *http.Client) *AltEmbed {
	return &AltEmbed{host: host, timeout: timeout, client: client}
}

func (a *AltEmbed) ID() string             { return "altembed" }
func (a *AltEmbed) Timeout() time.Duration { return a.timeout }

func (a *AltEmbed) EmbedURL(key media.ResolutionKey) string {
	u := fmt.Sprintf("https://%s/assistir/%s", a.host, url.PathEscape(key.ContentID))
	if key.IsEpisode() {
		u += fmt.Sprintf("/%dx%02d", key.Season, key.Episode)
	}
	return u + "/" + url.PathEscape(key.AudioTrack)
}

func (a *AltEmbed) Resolve(ctx context.Context, key media.ResolutionKey) (media.Outcome, error) {
	embedURL := a.EmbedURL(key)

	follower := newFrameFollower(a.client)
	outcome, err := follower.follow(ctx, embedURL, "", 0)
	if err != nil {
		if ctx.Err() != nil {
			return media.NotFound(), ctx.Err()
		}
		return media.NotFound(), nil
	}
	if outcome.Status == media.StatusFound {
		return outcome, nil
	}

	return media.ProxyFallback(embedURL), nil
}
