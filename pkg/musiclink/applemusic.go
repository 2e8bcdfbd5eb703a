package musiclink

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// ITunesLookupURL is the iTunes/Apple Music API lookup endpoint.
	ITunesLookupURL = "https://itunes.apple.com/lookup"
	// appleMusicTitleSuffix trails page titles such as "Song by Artist on Apple Music".
	appleMusicTitleSuffix = " on Apple Music"
)

// AppleMusicResolver resolves Apple Music links from page structured data and matches them to the streamable platform.
type AppleMusicResolver struct {
	fetcher   Fetcher
	matcher   *Matcher
	logger    *zap.Logger
	lookupURL string
}

// NewAppleMusicResolver creates a new Apple Music resolver.
func NewAppleMusicResolver(fetcher Fetcher, matcher *Matcher, logger *zap.Logger) *AppleMusicResolver {
	return &AppleMusicResolver{
		fetcher:   fetcher,
		matcher:   matcher,
		logger:    logger,
		lookupURL: ITunesLookupURL,
	}
}

// SetLookupURL overrides the iTunes lookup endpoint.
func (r *AppleMusicResolver) SetLookupURL(lookupURL string) {
	r.lookupURL = lookupURL
}

// PlatformName returns "applemusic".
func (r *AppleMusicResolver) PlatformName() string {
	return PlatformAppleMusic
}

// CanResolve checks if the query is an Apple Music link.
func (r *AppleMusicResolver) CanResolve(query string) bool {
	// Support both music.apple.com and legacy itunes.apple.com.
	host := queryHost(query)
	return host == "music.apple.com" || host == "itunes.apple.com"
}

// Resolve reads the page's MusicRecording JSON-LD, falling back to the iTunes lookup API
// and finally the page title, and returns the matched streamable track.
func (r *AppleMusicResolver) Resolve(ctx context.Context, query string) (*Track, error) {
	pageURL := strings.TrimSpace(query)
	if !strings.Contains(pageURL, "://") {
		pageURL = "https://" + pageURL
	}

	page, err := r.fetcher.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, notFound(PlatformAppleMusic, query, "page fetch failed", err)
	}

	meta, ok := ParseMusicRecording(string(page))
	if !ok {
		meta, ok = r.lookup(ctx, query)
	}
	if !ok {
		meta.Title, meta.Artist = extractTitleAndArtistFromTitleTag(string(page), appleMusicTitleSuffix, " by ")
		ok = meta.Title != ""
	}
	if !ok {
		return nil, notFound(PlatformAppleMusic, query, "no track metadata on page", nil)
	}

	track, err := r.matcher.MatchToStreamable(ctx, meta)
	if err != nil {
		return nil, notFound(PlatformAppleMusic, query, "no streamable match", err)
	}
	track.Reattribute(PlatformAppleMusic, meta.ISRC)
	return track, nil
}

// Search is not supported: catalog search needs developer credentials. It always returns an empty slice.
func (r *AppleMusicResolver) Search(ctx context.Context, query string, limit int) []*Track {
	results, err := r.SearchDetailed(ctx, query, limit)
	return collectSearch(r.logger, PlatformAppleMusic, query, results, err)
}

// SearchDetailed returns no results; see Search.
func (r *AppleMusicResolver) SearchDetailed(_ context.Context, _ string, _ int) (SearchResults, error) {
	return nil, nil
}

// ParseMusicRecording finds a schema.org MusicRecording in the page's JSON-LD blocks.
func ParseMusicRecording(page string) (Metadata, bool) {
	for _, block := range extractJSONLD(page) {
		if !json.Valid(block) {
			continue
		}
		doc := gjson.ParseBytes(block)
		candidates := []gjson.Result{doc}
		if doc.IsArray() {
			candidates = doc.Array()
		}
		for _, candidate := range candidates {
			if candidate.Get("@type").String() != "MusicRecording" {
				continue
			}
			artist := candidate.Get("byArtist.name").String()
			if artist == "" {
				artist = candidate.Get("byArtist.0.name").String()
			}
			return Metadata{
				Title:      candidate.Get("name").String(),
				Artist:     artist,
				DurationMS: parseISODuration(candidate.Get("duration").String()),
				ISRC:       candidate.Get("isrcCode").String(),
			}, true
		}
	}
	return Metadata{}, false
}

// lookup queries the iTunes API for the track ID in the link.
func (r *AppleMusicResolver) lookup(ctx context.Context, query string) (Metadata, bool) {
	trackID, err := extractAppleTrackID(query)
	if err != nil {
		r.logger.Debug("No Apple Music track ID for lookup", zap.String("query", query), zap.Error(err))
		return Metadata{}, false
	}

	params := url.Values{"id": {trackID}, "entity": {"song"}}
	body, err := r.fetcher.Get(ctx, r.lookupURL+"?"+params.Encode(), nil)
	if err != nil {
		r.logger.Debug("iTunes lookup failed", zap.String("track_id", trackID), zap.Error(err))
		return Metadata{}, false
	}

	var meta Metadata
	gjson.GetBytes(body, "results").ForEach(func(_, result gjson.Result) bool {
		if result.Get("wrapperType").Exists() && result.Get("wrapperType").String() != "track" {
			return true
		}
		meta = Metadata{
			Title:      result.Get("trackName").String(),
			Artist:     result.Get("artistName").String(),
			DurationMS: result.Get("trackTimeMillis").Int(),
			ISRC:       result.Get("isrc").String(),
		}
		return false
	})
	return meta, meta.Title != ""
}

// extractAppleTrackID extracts the track ID from an Apple Music URL.
func extractAppleTrackID(query string) (string, error) {
	u, err := parseQueryURL(query)
	if err != nil {
		return "", err
	}

	// Check for track ID in query parameter ?i=<trackId>.
	if trackID := u.Query().Get("i"); trackID != "" {
		return trackID, nil
	}

	// Direct song link: /us/song/<song-name>/<song-id>
	if strings.Contains(u.Path, "/song/") {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if songID := parts[len(parts)-1]; songID != "" {
			return songID, nil
		}
	}

	return "", errors.New("no track ID found in Apple Music URL (album links without ?i= are not supported)")
}
