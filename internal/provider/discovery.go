package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sourcegraph/conc/pool"

	"moray/internal/media"
)

// discoveryBatch is how many catalog pages are fetched concurrently per round.
const discoveryBatch = 5

// catalogRow is one entry of a provider catalog listing page.
type catalogRow struct {
	ExternalID string
	Slug       string
}

// Discovery paginates a provider's catalog listing to find the slug for an
// external id when direct slug guesses fail. Stateless: nothing is kept
// between calls.
type Discovery struct {
	baseURL  string
	maxPages int

	// fetchPage is swappable in tests.
	fetchPage func(ctx context.Context, mediaType media.MediaType, page int) ([]catalogRow, error)
}

// NewDiscovery builds a Discovery against a catalog base URL (scheme + host).
func NewDiscovery(baseURL string, maxPages int, client *http.Client) *Discovery {
	d := &Discovery{baseURL: baseURL, maxPages: maxPages}
	d.fetchPage = func(ctx context.Context, mediaType media.MediaType, page int) ([]catalogRow, error) {
		return fetchCatalogPage(ctx, client, baseURL, mediaType, page)
	}
	return d
}

// Discover scans listing pages in concurrent batches until a row's external id
// matches. An empty page anywhere in a batch means the catalog end was passed:
// discovery stops there, in page order, even when later pages in the same
// batch returned rows. Returns "" when the id is not in the catalog.
func (d *Discovery) Discover(ctx context.Context, externalID string, mediaType media.MediaType) (string, error) {
	for start := 1; start <= d.maxPages; start += discoveryBatch {
		count := discoveryBatch
		if start+count-1 > d.maxPages {
			count = d.maxPages - start + 1
		}

		pages := make([][]catalogRow, count)
		p := pool.New().WithErrors().WithContext(ctx)
		for i := 0; i < count; i++ {
			i := i
			p.Go(func(ctx context.Context) error {
				rows, err := d.fetchPage(ctx, mediaType, start+i)
				if err != nil {
					return fmt.Errorf("fetching catalog page %d: %w", start+i, err)
				}
				pages[i] = rows
				return nil
			})
		}
		if err := p.Wait(); err != nil {
			return "", err
		}

		for _, rows := range pages {
			if len(rows) == 0 {
				return "", nil
			}
			for _, row := range rows {
				if row.ExternalID == externalID {
					return row.Slug, nil
				}
			}
		}
	}

	return "", nil
}

// fetchCatalogPage fetches and parses one listing page.
func fetchCatalogPage(ctx context.Context, client *http.Client, baseURL string, mediaType media.MediaType, page int) ([]catalogRow, error) {
	section := "filmes"
	if mediaType == media.Series {
		section = "series"
	}
	url := fmt.Sprintf("%s/catalogo/%s?page=%d", baseURL, section, page)

	doc, err := fetchDocument(ctx, client, url)
	if err != nil {
		return nil, err
	}
	return parseCatalogRows(doc), nil
}

// parseCatalogRows extracts catalog entries from a listing document.
// Each item carries the external id in a data attribute and the slug in its
// detail-page href.
func parseCatalogRows(doc *goquery.Document) []catalogRow {
	var rows []catalogRow
	doc.Find(".catalog-item a[data-external-id], a.item[data-external-id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-external-id")
		href, ok := s.Attr("href")
		if id == "" || !ok {
			return
		}
		rows = append(rows, catalogRow{ExternalID: id, Slug: slugFromHref(href)})
	})
	return rows
}

// slugFromHref extracts the trailing path segment of a detail-page link.
// e.g. "/assistir/o-exorcista" -> "o-exorcista".
func slugFromHref(href string) string {
	href = strings.TrimSuffix(href, "/")
	if idx := strings.Index(href, "?"); idx != -1 {
		href = href[:idx]
	}
	if idx := strings.LastIndex(href, "/"); idx != -1 {
		return href[idx+1:]
	}
	return href
}
