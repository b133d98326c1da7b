package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"moray/internal/httputil"
	"moray/internal/media"
)

// Catalog resolves through the provider's public catalog site: guess the
// detail-page slug from the title hint, fall back to paginated slug
// discovery, then follow the page's embedded player reference to a CDN URL.
type Catalog struct {
	host      string
	timeout   time.Duration
	client    *http.Client
	discovery *Discovery
}

// NewCatalog creates the catalog-scrape adapter.
func NewCatalog(host string, maxDiscoveryPages int, timeout time.Duration, client *http.Client) *Catalog {
	c := &Catalog{
		host:    host,
		timeout: timeout,
		client:  client,
	}
	c.discovery = NewDiscovery(c.baseURL(), maxDiscoveryPages, client)
	return c
}

func (c *Catalog) ID() string             { return "catalog" }
func (c *Catalog) Timeout() time.Duration { return c.timeout }

func (c *Catalog) baseURL() string {
	return "https://" + c.host
}

// EmbedURL points at the detail page, the closest thing this surface has to
// an embeddable player.
func (c *Catalog) EmbedURL(key media.ResolutionKey) string {
	return fmt.Sprintf("%s/assistir/%s", c.baseURL(), url.PathEscape(key.ContentID))
}

// Resolve locates the content's detail page and extracts a stream from its
// embedded player.
func (c *Catalog) Resolve(ctx context.Context, key media.ResolutionKey) (media.Outcome, error) {
	doc := c.findDetailPage(ctx, key)
	if doc == nil {
		return media.NotFound(), nil
	}

	refs := c.playerRefs(doc, key)
	if len(refs) == 0 {
		return media.NotFound(), nil
	}

	follower := newFrameFollower(c.client)
	for _, ref := range refs {
		outcome, err := follower.follow(ctx, ref, c.baseURL(), 0)
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

// findDetailPage tries each slug guess, then slug discovery.
func (c *Catalog) findDetailPage(ctx context.Context, key media.ResolutionKey) *goquery.Document {
	for _, slug := range c.slugGuesses(key) {
		doc, err := fetchDocument(ctx, c.client, c.detailURL(slug))
		if err == nil {
			return doc
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	slug, err := c.discovery.Discover(ctx, key.ContentID, key.Type)
	if err != nil || slug == "" {
		return nil
	}

	doc, err := fetchDocument(ctx, c.client, c.detailURL(slug))
	if err != nil {
		return nil
	}
	return doc
}

func (c *Catalog) detailURL(slug string) string {
	return fmt.Sprintf("%s/assistir/%s", c.baseURL(), url.PathEscape(slug))
}

// slugGuesses builds candidate detail-page slugs from the title hint and the
// external id. With no hint the external id itself is the only guess.
func (c *Catalog) slugGuesses(key media.ResolutionKey) []string {
	var guesses []string
	if key.TitleHint != "" {
		slug := httputil.Slugify(key.TitleHint)
		if slug != "" {
			guesses = append(guesses, slug, slug+"-"+key.ContentID)
		}
	}
	return append(guesses, key.ContentID)
}

// playerRefs collects embedded player references in the order they should be
// tried. For episodes, an episode-matched reference goes first; scanning all
// references on the page is the last resort.
func (c *Catalog) playerRefs(doc *goquery.Document, key media.ResolutionKey) []string {
	all := c.allPlayerRefs(doc)

	if !key.IsEpisode() {
		if len(all) > 0 {
			return all[:1]
		}
		return nil
	}

	if ref := c.episodeRef(doc, key); ref != "" {
		ordered := []string{ref}
		for _, r := range all {
			if r != ref {
				ordered = append(ordered, r)
			}
		}
		return ordered
	}
	return all
}

// allPlayerRefs extracts every embedded player reference on a detail page.
func (c *Catalog) allPlayerRefs(doc *goquery.Document) []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(href string) {
		abs := absoluteURL(c.baseURL(), href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		refs = append(refs, abs)
	}

	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""))
	})
	doc.Find("a.player-option[href], [data-player-src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("data-player-src"); ok {
			add(src)
			return
		}
		add(s.AttrOr("href", ""))
	})

	return refs
}

// episodeRef locates the player reference for a specific episode using, in
// order: query-parameter match, slugged season/episode path, data-attribute
// match.
func (c *Catalog) episodeRef(doc *goquery.Document, key media.ResolutionKey) string {
	var match string

	doc.Find("a[href], iframe[src], [data-player-src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		ref := s.AttrOr("data-player-src", "")
		if ref == "" {
			ref = s.AttrOr("href", "")
		}
		if ref == "" {
			ref = s.AttrOr("src", "")
		}
		if ref == "" {
			return true
		}

		if episodeQueryMatch(ref, key) || episodePathMatch(ref, key) {
			match = absoluteURL(c.baseURL(), ref)
			return false
		}

		season, _ := strconv.Atoi(s.AttrOr("data-season", ""))
		episode, _ := strconv.Atoi(s.AttrOr("data-episode", ""))
		if season == key.Season && episode == key.Episode && season > 0 {
			match = absoluteURL(c.baseURL(), ref)
			return false
		}
		return true
	})

	return match
}

// episodeQueryMatch checks ?temp=S&ep=E style query parameters.
func episodeQueryMatch(ref string, key media.ResolutionKey) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	q := u.Query()
	season := firstOf(q, "temp", "temporada", "season", "s")
	episode := firstOf(q, "ep", "episodio", "episode", "e")
	return season == strconv.Itoa(key.Season) && episode == strconv.Itoa(key.Episode)
}

// episodePathMatch checks slugged season/episode path segments.
func episodePathMatch(ref string, key media.ResolutionKey) bool {
	variants := []string{
		fmt.Sprintf("temporada-%d/episodio-%d", key.Season, key.Episode),
		fmt.Sprintf("%dx%02d", key.Season, key.Episode),
		fmt.Sprintf("s%02de%02d", key.Season, key.Episode),
	}
	lowered := strings.ToLower(ref)
	for _, v := range variants {
		if strings.Contains(lowered, v) {
			return true
		}
	}
	return false
}

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}
