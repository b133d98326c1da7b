// Package provider implements the third-party resolution strategies.
// Each adapter encodes one scraping/embed heuristic against one upstream
// surface; the resolver sequences them behind the uniform Provider interface.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"moray/internal/config"
	"moray/internal/httputil"
	"moray/internal/media"
)

// Provider is one pluggable strategy for locating a stream.
type Provider interface {
	// ID identifies the adapter in cache rows, log rows and CLI flags.
	ID() string

	// Timeout is the per-attempt deadline the resolver enforces. The context
	// passed to Resolve is cancelled when it elapses.
	Timeout() time.Duration

	// Resolve attempts one extraction strategy for the key. Network and parse
	// failures are adapter-local: they surface as NotFound, not as errors.
	// A non-nil error means the attempt itself could not run.
	Resolve(ctx context.Context, key media.ResolutionKey) (media.Outcome, error)

	// EmbedURL is the adapter's best-guess player page for the key, used to
	// synthesize a last-resort proxy when every adapter is exhausted.
	EmbedURL(key media.ResolutionKey) string
}

// Default per-adapter deadlines. The multi-server adapter pays for several
// upstream hops; the rest are single-page scrapes.
const (
	catalogTimeout     = 8 * time.Second
	inlineTimeout      = 8 * time.Second
	multiServerTimeout = 15 * time.Second
	gatewayTimeout     = 6 * time.Second
	feedTimeout        = 8 * time.Second
	altEmbedTimeout    = 6 * time.Second
)

// Ranked builds the full adapter chain in priority order, sharing one client.
func Ranked(cfg *config.Config) []Provider {
	client := httputil.NewClient()
	p := cfg.Providers
	return []Provider{
		NewCatalog(p.CatalogHost, p.DiscoveryMaxPages, cfg.AdapterTimeout("catalog", catalogTimeout), client),
		NewInlineEmbed(p.InlineHosts, cfg.AdapterTimeout("inlineembed", inlineTimeout), client),
		NewMultiServer(p.MultiServerHost, cfg.AdapterTimeout("multiserver", multiServerTimeout), client),
		NewGateway(p.GatewayHost, cfg.AdapterTimeout("gateway", gatewayTimeout), client),
		NewFeedAPI(p.FeedHost, p.FeedAPIKey, cfg.AdapterTimeout("feedapi", feedTimeout), client),
		NewAltEmbed(p.AltEmbedHost, cfg.AdapterTimeout("altembed", altEmbedTimeout), client),
	}
}

// fetchDocument fetches a URL and parses it into a goquery Document.
func fetchDocument(ctx context.Context, client *http.Client, url string) (*goquery.Document, error) {
	resp, err := httputil.Get(ctx, client, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	return doc, nil
}

// absoluteURL resolves a possibly-relative href against a base host URL.
func absoluteURL(base, href string) string {
	if href == "" {
		return ""
	}
	if href[0] == '/' {
		return base + href
	}
	return href
}
