package musiclink

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	// minTitleTagMatches is the minimum number of regex matches expected for title tag extraction.
	minTitleTagMatches = 2
	// expectedSplitParts is the expected number of parts when splitting title/artist strings.
	expectedSplitParts = 2
)

var (
	// ErrNoEmbeddedJSON is returned when a page carries no parsable embedded JSON blob.
	ErrNoEmbeddedJSON = errors.New("no embedded JSON found")

	titleTagRegex   = regexp.MustCompile(`<title>([^<]+)</title>`)
	jsonLDRegex     = regexp.MustCompile(`(?is)<script[^>]*type="application/ld\+json"[^>]*>(.+?)</script>`)
	isoDurationRe   = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)
	whitespaceRegex = regexp.MustCompile(`\s`)
)

// queryHost returns the lower-cased host of a URL-shaped query, or "" for free text.
// Schemeless input such as "youtu.be/abc" is accepted.
func queryHost(query string) string {
	q := strings.TrimSpace(query)
	if q == "" || whitespaceRegex.MatchString(q) {
		return ""
	}
	if !strings.Contains(q, "://") {
		q = "https://" + q
	}
	u, err := url.Parse(q)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// parseQueryURL parses a URL-shaped query, adding a scheme when missing.
func parseQueryURL(query string) (*url.URL, error) {
	q := strings.TrimSpace(query)
	if !strings.Contains(q, "://") {
		q = "https://" + q
	}
	return url.Parse(q)
}

// hostMatches reports whether host is one of domains or a subdomain of one.
func hostMatches(host string, domains ...string) bool {
	if host == "" {
		return false
	}
	for _, domain := range domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// parseISODuration converts an ISO-8601 duration such as PT3M45S to milliseconds.
// Unparsable input yields 0.
func parseISODuration(value string) int64 {
	matches := isoDurationRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(value)))
	if matches == nil {
		return 0
	}
	hours, _ := strconv.ParseInt(matches[1], 10, 64)
	minutes, _ := strconv.ParseInt(matches[2], 10, 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	return (hours*3600+minutes*60)*1000 + int64(seconds*1000)
}

// parseClockDuration converts "m:ss" or "h:mm:ss" to milliseconds. Anything else yields 0.
func parseClockDuration(text string) int64 {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}

	var total int64
	for _, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total * 1000
}

// extractAssignedJSON returns the JSON object assigned to name in page, e.g. `var ytInitialData = {...};`.
// The object is delimited with a streaming decoder so braces inside strings are handled.
func extractAssignedJSON(page, name string) (json.RawMessage, error) {
	offset := 0
	for {
		idx := strings.Index(page[offset:], name)
		if idx < 0 {
			return nil, ErrNoEmbeddedJSON
		}
		offset += idx + len(name)

		rest := strings.TrimLeft(page[offset:], " \t\r\n\"']")
		if !strings.HasPrefix(rest, "=") {
			continue
		}
		rest = strings.TrimLeft(rest[1:], " \t\r\n")
		if !strings.HasPrefix(rest, "{") {
			continue
		}

		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(rest)).Decode(&raw); err != nil {
			continue
		}
		return raw, nil
	}
}

// extractJSONLD returns the bodies of all application/ld+json script blocks in page.
func extractJSONLD(page string) [][]byte {
	var blocks [][]byte
	for _, match := range jsonLDRegex.FindAllStringSubmatch(page, -1) {
		body := bytes.TrimSpace([]byte(match[1]))
		if len(body) > 0 {
			blocks = append(blocks, body)
		}
	}
	return blocks
}

// extractTitleAndArtistFromTitleTag extracts track info from HTML <title> tag.
// This handles the common pattern of "Track Title by Artist on Service" format.
func extractTitleAndArtistFromTitleTag(html, serviceSuffix, separator string) (title, artist string) {
	matches := titleTagRegex.FindStringSubmatch(html)
	if len(matches) < minTitleTagMatches {
		return "", ""
	}

	titleText := matches[1]

	// Remove service suffix if present.
	if serviceSuffix != "" {
		titleText = strings.TrimSuffix(titleText, serviceSuffix)
		titleText = strings.TrimSpace(titleText)
	}

	// Split by separator to separate track title from artist(s).
	if separator != "" && strings.Contains(titleText, separator) {
		parts := strings.SplitN(titleText, separator, expectedSplitParts)
		if len(parts) == expectedSplitParts {
			title = strings.TrimSpace(parts[0])
			artist = strings.TrimSpace(parts[1])
			return title, artist
		}
	}

	// If no separator, treat the whole thing as the title.
	return strings.TrimSpace(titleText), ""
}

// collectSearch flattens a detailed search for the never-failing Search contract.
func collectSearch(logger *zap.Logger, platform, query string, results SearchResults, err error) []*Track {
	if err != nil {
		logger.Debug("Search failed",
			zap.String("platform", platform),
			zap.String("query", query),
			zap.Error(err))
		return []*Track{}
	}
	if skips := results.Skipped(); len(skips) > 0 {
		logger.Debug("Skipped search items",
			zap.String("platform", platform),
			zap.String("query", query),
			zap.Strings("reasons", skips))
	}
	return results.Tracks()
}
