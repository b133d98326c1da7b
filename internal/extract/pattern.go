// Package extract locates playable media URLs inside raw HTML/JS blobs.
// It is the shared last mile of every provider adapter: given the text of a
// player page, find the stream the page would hand to its own video element.
package extract

import (
	"regexp"
	"strings"

	"moray/internal/media"
)

var (
	// sourcesArrayRe captures the body of an inline `sources = [...]` or
	// `sources: [...]` literal, the jwplayer-style setup blob.
	sourcesArrayRe = regexp.MustCompile(`(?s)sources\s*[:=]\s*\[(.*?)\]`)

	// fileEntryRe captures the file/src of one source descriptor.
	fileEntryRe = regexp.MustCompile(`(?:"?(?:file|src)"?)\s*:\s*["']([^"']+)["']`)

	// fileLiteralRe captures a file:/source: string literal ending in a known
	// media extension, the single-source player setup.
	fileLiteralRe = regexp.MustCompile(`(?:file|source|src)\s*[:=]\s*["']([^"']+?\.(?:m3u8|mp4|mpd)[^"']*)["']`)

	// genericURLRe scans for any absolute URL; candidates are then filtered
	// by media substring and noise host.
	genericURLRe = regexp.MustCompile(`https?://[^\s"'<>\\)]+`)

	// iframeSrcRe captures the src of an embedded iframe.
	iframeSrcRe = regexp.MustCompile(`<iframe[^>]+src\s*=\s*["']([^"']+)["']`)
)

// mediaSubstrings mark a URL as a probable stream when pattern context is absent.
var mediaSubstrings = []string{".m3u8", "master", "playlist", ".mp4"}

// noiseHosts are analytics/ad domains that match the generic scans but never
// serve media.
var noiseHosts = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"googlesyndication.com",
	"doubleclick.net",
	"facebook.net",
	"hotjar.com",
	"sentry.io",
}

// FindStream scans a page body for a playable URL, in priority order:
// an inline sources array, a file:/source: literal with a media extension,
// then generic media-substring scans. Returns the URL, its kind, and whether
// anything was found.
func FindStream(body string) (string, media.SourceKind, bool) {
	if m := sourcesArrayRe.FindStringSubmatch(body); m != nil {
		if f := fileEntryRe.FindStringSubmatch(m[1]); f != nil {
			u := unescape(f[1])
			if IsMediaURL(u) {
				return u, Classify(u), true
			}
		}
	}

	if m := fileLiteralRe.FindStringSubmatch(body); m != nil {
		u := unescape(m[1])
		if !isNoise(u) {
			return u, Classify(u), true
		}
	}

	for _, raw := range genericURLRe.FindAllString(body, -1) {
		u := unescape(raw)
		if IsMediaURL(u) {
			return u, Classify(u), true
		}
	}

	return "", "", false
}

// FindIframe returns the src of the first embedded iframe in the body.
func FindIframe(body string) (string, bool) {
	m := iframeSrcRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return unescape(m[1]), true
}

// Classify maps a stream URL to its kind: anything carrying .mp4 is a direct
// file, everything else is treated as a playlist manifest.
func Classify(url string) media.SourceKind {
	if strings.Contains(url, ".mp4") {
		return media.DirectFile
	}
	return media.Playlist
}

// IsMediaURL reports whether a URL looks like a stream: it carries a known
// media substring and is not hosted on a known noise domain.
func IsMediaURL(url string) bool {
	if isNoise(url) {
		return false
	}
	for _, s := range mediaSubstrings {
		if strings.Contains(url, s) {
			return true
		}
	}
	return false
}

func isNoise(url string) bool {
	for _, h := range noiseHosts {
		if strings.Contains(url, h) {
			return true
		}
	}
	return false
}

// unescape undoes JS string escaping of slashes, common in inlined JSON.
func unescape(u string) string {
	return strings.ReplaceAll(u, `\/`, `/`)
}
