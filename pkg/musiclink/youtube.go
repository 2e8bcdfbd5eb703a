package musiclink

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	// YouTubeBaseURL is the origin watch and search pages are fetched from.
	YouTubeBaseURL = "https://www.youtube.com"
)

var (
	videoIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// YouTubeResolver resolves YouTube links to directly streamable tracks. It is the streamable platform.
type YouTubeResolver struct {
	fetcher  Fetcher
	baseURL  string
	decoder  SignatureDecoder
	logger   *zap.Logger
	warnOnce sync.Once
}

// NewYouTubeResolver creates a new YouTube resolver using the identity signature decoder.
func NewYouTubeResolver(fetcher Fetcher, logger *zap.Logger) *YouTubeResolver {
	return &YouTubeResolver{
		fetcher: fetcher,
		baseURL: YouTubeBaseURL,
		decoder: IdentityDecoder{},
		logger:  logger,
	}
}

// SetBaseURL overrides the page origin.
func (r *YouTubeResolver) SetBaseURL(baseURL string) {
	r.baseURL = strings.TrimRight(baseURL, "/")
}

// SetSignatureDecoder replaces the signature decoding strategy.
func (r *YouTubeResolver) SetSignatureDecoder(decoder SignatureDecoder) {
	r.decoder = decoder
}

// PlatformName returns "youtube".
func (r *YouTubeResolver) PlatformName() string {
	return PlatformYouTube
}

// CanResolve checks if the query is a YouTube or YouTube Music link.
func (r *YouTubeResolver) CanResolve(query string) bool {
	return hostMatches(queryHost(query), "youtube.com", "youtu.be")
}

// Resolve fetches the watch page and returns the track with its best audio stream.
func (r *YouTubeResolver) Resolve(ctx context.Context, query string) (*Track, error) {
	videoID, ok := extractVideoID(query)
	if !ok {
		return nil, notFound(PlatformYouTube, query, "invalid video URL", nil)
	}

	page, err := r.fetcher.Get(ctx, r.baseURL+"/watch?v="+videoID, nil)
	if err != nil {
		return nil, notFound(PlatformYouTube, query, "watch page fetch failed", err)
	}

	player, err := ParsePlayerResponse(string(page))
	if err != nil {
		return nil, notFound(PlatformYouTube, query, "failed to extract player response", err)
	}
	if player.PlayabilityStatus != "" && player.PlayabilityStatus != "OK" {
		return nil, notFound(PlatformYouTube, query, "video not playable: "+player.PlayabilityReason, nil)
	}

	format, ok := SelectAudioFormat(player.Formats)
	if !ok {
		return nil, notFound(PlatformYouTube, query, "no Opus stream available", nil)
	}

	streamURL := format.URL
	if streamURL == "" && format.SignatureCipher != "" {
		streamURL, err = r.decipher(ctx, format.SignatureCipher, player.PlayerJSURL)
		if err != nil {
			return nil, notFound(PlatformYouTube, query, "signature decipher failed", err)
		}
	}
	if streamURL == "" {
		return nil, notFound(PlatformYouTube, query, "failed to resolve stream URL", nil)
	}

	return &Track{
		ID:         videoID,
		Title:      player.Title,
		Artist:     player.Author,
		DurationMS: player.DurationMS,
		StreamURL:  streamURL,
		Platform:   PlatformYouTube,
		ArtworkURL: youtubeArtwork(videoID),
	}, nil
}

func (r *YouTubeResolver) decipher(ctx context.Context, cipher, playerJSURL string) (string, error) {
	if !r.decoder.Faithful() {
		r.warnOnce.Do(func() {
			r.logger.Warn("Signature decoder does not apply the player transform; ciphered streams may be rejected")
		})
	}
	return decipherStreamURL(ctx, cipher, playerJSURL, r.decoder)
}

// Search returns up to limit videos from the search results page.
func (r *YouTubeResolver) Search(ctx context.Context, query string, limit int) []*Track {
	results, err := r.SearchDetailed(ctx, query, limit)
	return collectSearch(r.logger, PlatformYouTube, query, results, err)
}

// SearchDetailed is Search with per-item skip reasons.
func (r *YouTubeResolver) SearchDetailed(ctx context.Context, query string, limit int) (SearchResults, error) {
	if limit <= 0 {
		return nil, nil
	}
	page, err := r.fetcher.Get(ctx, r.baseURL+"/results?search_query="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	return ParseSearchResults(string(page), limit)
}

// extractVideoID extracts the YouTube video ID from watch, short, embed and shorts URLs.
func extractVideoID(query string) (string, bool) {
	u, err := parseQueryURL(query)
	if err != nil {
		return "", false
	}

	var videoID string
	hostname := strings.ToLower(u.Hostname())
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch {
	case hostname == "youtu.be":
		videoID = segments[0]
	case u.Query().Get("v") != "":
		videoID = u.Query().Get("v")
	case len(segments) == 2 && (segments[0] == "embed" || segments[0] == "shorts" || segments[0] == "live"):
		videoID = segments[1]
	}

	if !videoIDRegex.MatchString(videoID) {
		return "", false
	}
	return videoID, true
}
