// Package text canonicalizes user-supplied resolution queries.
package text

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	urlRegex        = regexp.MustCompile(`https?://\S+`)
	spotifyURIRegex = regexp.MustCompile(`spotify:track:[A-Za-z0-9]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// Share-tracking parameters that never change which track a link points to.
	trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "si", "feature"}

	musicDomains = []string{
		"youtube.com",
		"youtu.be",
		"soundcloud.com",
		"spotify.com",
		"spotify.link",
		"music.apple.com",
		"itunes.apple.com",
		"deezer.com",
		"deezer.page.link",
	}
)

// CanonicalQuery reduces a query to the form used for dispatch and cache keys.
// A query that mentions a music link becomes that link with tracking parameters
// removed; anything else becomes its whitespace-collapsed NFKC form.
func CanonicalQuery(query string) string {
	normalized := Normalize(query)

	if uri := spotifyURIRegex.FindString(normalized); uri != "" {
		return uri
	}

	for _, link := range ExtractURLs(normalized) {
		if IsMusicURL(link) {
			return link
		}
	}

	return normalized
}

// Normalize trims, NFKC-normalizes and collapses whitespace runs to a single space.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

// ExtractURLs returns every cleaned http(s) URL in text, in order.
func ExtractURLs(text string) []string {
	matches := urlRegex.FindAllString(text, -1)
	var cleanURLs []string

	for _, match := range matches {
		if cleaned := CleanURL(match); cleaned != "" {
			cleanURLs = append(cleanURLs, cleaned)
		}
	}

	return cleanURLs
}

// CleanURL strips trailing punctuation and tracking parameters. It returns "" for anything that is not an absolute http(s) URL.
func CleanURL(rawURL string) string {
	rawURL = strings.TrimRight(rawURL, ".,!?;")

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}

	if u.RawQuery != "" {
		q := u.Query()
		for _, param := range trackingParams {
			q.Del(param)
		}
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// IsMusicURL reports whether rawURL points at a known music platform.
func IsMusicURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	hostname := strings.ToLower(u.Hostname())
	for _, domain := range musicDomains {
		if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
			return true
		}
	}
	return false
}
