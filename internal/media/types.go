// Package media defines shared types for the moray resolution pipeline.
package media

import (
	"strconv"
	"time"
)

// MediaType represents whether content is a movie or a series.
type MediaType int

const (
	Movie MediaType = iota
	Series
)

func (m MediaType) String() string {
	switch m {
	case Movie:
		return "movie"
	case Series:
		return "series"
	default:
		return "unknown"
	}
}

// ParseMediaType maps the wire/CLI spelling back to a MediaType.
func ParseMediaType(s string) MediaType {
	if s == "series" || s == "tv" {
		return Series
	}
	return Movie
}

// SourceKind classifies a resolved URL.
type SourceKind string

const (
	// DirectFile is a progressively downloadable file (mp4 and friends).
	DirectFile SourceKind = "direct-file"
	// Playlist is an HLS/DASH manifest.
	Playlist SourceKind = "playlist"
	// EmbeddedProxy marks a result that is a page to embed, not a media URL.
	EmbeddedProxy SourceKind = "embedded-proxy"
)

// ResolutionKey identifies one resolvable unit: a movie, or one episode of a
// series in one audio track. Season and Episode are zero for movies.
type ResolutionKey struct {
	ContentID  string    // External catalog identifier, e.g. "603"
	Type       MediaType // Movie or Series
	AudioTrack string    // e.g. "dublado", "legendado"
	Season     int
	Episode    int

	// TitleHint is an optional display title supplied by the caller. It feeds
	// slug guessing only and is not part of the key's identity.
	TitleHint string
}

// IsEpisode reports whether the key addresses a specific series episode.
func (k ResolutionKey) IsEpisode() bool {
	return k.Type == Series && k.Season > 0 && k.Episode > 0
}

func (k ResolutionKey) String() string {
	s := k.ContentID + "/" + k.Type.String() + "/" + k.AudioTrack
	if k.IsEpisode() {
		s += "/s" + strconv.Itoa(k.Season) + "e" + strconv.Itoa(k.Episode)
	}
	return s
}

// OutcomeStatus is the coarse result of one adapter attempt.
type OutcomeStatus int

const (
	// StatusNotFound means the adapter could not extract anything usable.
	StatusNotFound OutcomeStatus = iota
	// StatusFound means URL/Kind carry a playable stream.
	StatusFound
	// StatusProxyFallback means EmbedURL points at a player page the adapter
	// could not scrape further; the caller may serve it as a proxied embed.
	StatusProxyFallback
)

// Outcome is the typed return of a single provider adapter attempt.
type Outcome struct {
	Status   OutcomeStatus
	URL      string
	Kind     SourceKind
	EmbedURL string
}

// Found builds a successful outcome.
func Found(url string, kind SourceKind) Outcome {
	return Outcome{Status: StatusFound, URL: url, Kind: kind}
}

// NotFound builds an empty outcome.
func NotFound() Outcome {
	return Outcome{Status: StatusNotFound}
}

// ProxyFallback builds an embed-page outcome.
func ProxyFallback(embedURL string) Outcome {
	return Outcome{Status: StatusProxyFallback, EmbedURL: embedURL}
}

// Result is the terminal answer of one resolution request.
type Result struct {
	URL        string     `json:"url"`
	Kind       SourceKind `json:"kind,omitempty"`
	ProviderID string     `json:"providerId"`
	WasCached  bool       `json:"wasCached"`
	Message    string     `json:"message,omitempty"`

	// FallbackEmbed is set on total exhaustion: an embed page the consumer
	// can drive the interception fallback against.
	FallbackEmbed string `json:"fallbackEmbed,omitempty"`
}

// Resolved reports whether the result carries a usable URL (direct or proxy).
func (r *Result) Resolved() bool {
	return r.URL != ""
}

// CacheEntry is the durable record of the last resolved URL for a key.
// At most one fresh entry exists per key at any time.
type CacheEntry struct {
	Key        ResolutionKey
	URL        string
	Kind       SourceKind
	ProviderID string
	Pinned     bool // Curated rows survive automated sweeps
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Fresh reports whether the entry is still within its TTL at the given time.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// LogEntry is one row of the append-only resolution audit trail.
type LogEntry struct {
	Key          ResolutionKey
	ProviderID   string // A provider id, or "all" for whole-sweep records
	Success      bool
	URL          string
	ErrorMessage string
	CreatedAt    time.Time
}

// InterceptedSource is a media URL reported by the interception channel
// during one playback session.
type InterceptedSource struct {
	URL        string     `json:"url"`
	Kind       SourceKind `json:"kind"`
	SourceTag  string     `json:"sourceTag"`
	DetectedAt time.Time  `json:"detectedAt"`
}
