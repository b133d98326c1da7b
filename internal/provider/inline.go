package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"moray/internal/media"
)

// InlineEmbed resolves through an embed endpoint that inlines its source
// descriptors into the page. The host rotates between mirror domains, so
// every configured base-domain variant is tried.
type InlineEmbed struct {
	hosts   []string
	timeout time.Duration
	client  *http.Client
}

// NewInlineEmbed creates the embed+inline-sources adapter.
func NewInlineEmbed(hosts []string, timeout time.Duration, client *http.Client) *InlineEmbed {
	return &InlineEmbed{hosts: hosts, timeout: timeout, client: client}
}

func (a *InlineEmbed) ID() string             { return "inlineembed" }
func (a *InlineEmbed) Timeout() time.Duration { return a.timeout }

// embedPaths are the endpoint layouts seen across this provider's mirrors.
var embedPaths = []string{"embed", "e", "v"}

func (a *InlineEmbed) EmbedURL(key media.ResolutionKey) string {
	return a.embedVariant(a.hosts[0], embedPaths[0], key)
}

func (a *InlineEmbed) embedVariant(host, path string, key media.ResolutionKey) string {
	u := fmt.Sprintf("https://%s/%s/%s", host, path, url.PathEscape(key.ContentID))
	if key.IsEpisode() {
		u += fmt.Sprintf("/%d/%d", key.Season, key.Episode)
	}
	return u
}

// Resolve tries every host/path variant: the page either inlines a sources
// array (or a bare media URL) or wraps a nested third-party iframe. A page
// that loads but yields nothing direct becomes a proxy fallback.
func (a *InlineEmbed) Resolve(ctx context.Context, key media.ResolutionKey) (media.Outcome, error) {
	var fallback string
	follower := newFrameFollower(a.client)

	for _, host := range a.hosts {
		for _, path := range embedPaths {
			embedURL := a.embedVariant(host, path, key)

			outcome, err := follower.follow(ctx, embedURL, "", 0)
			if err != nil {
				if ctx.Err() != nil {
					return media.NotFound(), ctx.Err()
				}
				continue
			}
			if outcome.Status == media.StatusFound {
				return outcome, nil
			}
			// The page loaded as a player but nothing direct was extractable.
			if fallback == "" {
				fallback = embedURL
			}
		}
	}

	if fallback != "" {
		return media.ProxyFallback(fallback), nil
	}
	return media.NotFound(), nil
}
