package musiclink

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// SpotifyAPIURL is the Web API base; it must end with a slash.
	SpotifyAPIURL = "https://api.spotify.com/v1/"
	// SpotifyWebURL is the web player the anonymous token is scraped from.
	SpotifyWebURL = "https://open.spotify.com"
	// SpotifyTokenURL is the client credentials token endpoint.
	SpotifyTokenURL = "https://accounts.spotify.com/api/token"
	// webPlayerTokenTTL is how long a scraped web player token is trusted.
	webPlayerTokenTTL = time.Hour
)

var (
	// ErrNoAccessToken is returned when the web player page carries no access token.
	ErrNoAccessToken = errors.New("spotify access token not found")

	spotifyTrackIDRegex = regexp.MustCompile(`track[/:]([a-zA-Z0-9]{22})`)
	accessTokenRegex    = regexp.MustCompile(`accessToken":"([^"]+)"`)
)

// SpotifyConfig configures the Spotify resolver. Zero values select the public endpoints and
// the anonymous web player token.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	WebURL       string
	TokenURL     string
	// TokenSource overrides both token strategies when set.
	TokenSource oauth2.TokenSource
}

// SpotifyResolver resolves Spotify track links via the Web API and matches them to the streamable platform.
type SpotifyResolver struct {
	client  *spotify.Client
	matcher *Matcher
	logger  *zap.Logger
}

// NewSpotifyResolver creates a Spotify resolver. httpClient carries the rate limiter; fetcher is used
// for the web player token scrape.
func NewSpotifyResolver(
	config SpotifyConfig,
	httpClient *http.Client,
	fetcher Fetcher,
	matcher *Matcher,
	logger *zap.Logger,
) *SpotifyResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if config.APIURL == "" {
		config.APIURL = SpotifyAPIURL
	}
	if !strings.HasSuffix(config.APIURL, "/") {
		config.APIURL += "/"
	}
	if config.WebURL == "" {
		config.WebURL = SpotifyWebURL
	}
	if config.TokenURL == "" {
		config.TokenURL = SpotifyTokenURL
	}

	tokenSource := config.TokenSource
	switch {
	case tokenSource != nil:
	case config.ClientID != "" && config.ClientSecret != "":
		cc := &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		tokenSource = cc.TokenSource(tokenCtx)
		logger.Debug("Using Spotify client credentials")
	default:
		tokenSource = oauth2.ReuseTokenSource(nil, &webPlayerTokenSource{
			fetcher: fetcher,
			webURL:  strings.TrimRight(config.WebURL, "/"),
			now:     time.Now,
		})
		logger.Debug("Using Spotify web player token")
	}

	authClient := &http.Client{
		Timeout: httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: tokenSource,
			Base:   httpClient.Transport,
		},
	}

	return &SpotifyResolver{
		client:  spotify.New(authClient, spotify.WithBaseURL(config.APIURL)),
		matcher: matcher,
		logger:  logger,
	}
}

// PlatformName returns "spotify".
func (r *SpotifyResolver) PlatformName() string {
	return PlatformSpotify
}

// CanResolve checks if the query is a Spotify link or URI.
func (r *SpotifyResolver) CanResolve(query string) bool {
	if strings.HasPrefix(strings.TrimSpace(query), "spotify:") {
		return true
	}
	return hostMatches(queryHost(query), "spotify.com")
}

// Resolve fetches track metadata and returns the matched streamable track.
func (r *SpotifyResolver) Resolve(ctx context.Context, query string) (*Track, error) {
	trackID, ok := ExtractSpotifyTrackID(query)
	if !ok {
		return nil, notFound(PlatformSpotify, query, "invalid Spotify track URL", nil)
	}

	full, err := r.client.GetTrack(ctx, spotify.ID(trackID))
	if err != nil {
		return nil, notFound(PlatformSpotify, query, "metadata fetch failed", err)
	}
	if full.Name == "" {
		return nil, notFound(PlatformSpotify, query, "empty metadata", nil)
	}

	return r.match(ctx, query, spotifyMetadata(full))
}

func (r *SpotifyResolver) match(ctx context.Context, query string, meta Metadata) (*Track, error) {
	track, err := r.matcher.MatchToStreamable(ctx, meta)
	if err != nil {
		return nil, notFound(PlatformSpotify, query, "no streamable match", err)
	}
	track.Reattribute(PlatformSpotify, meta.ISRC)
	return track, nil
}

// Search searches the Spotify catalog and matches every hit to the streamable platform.
func (r *SpotifyResolver) Search(ctx context.Context, query string, limit int) []*Track {
	results, err := r.SearchDetailed(ctx, query, limit)
	return collectSearch(r.logger, PlatformSpotify, query, results, err)
}

// SearchDetailed is Search with per-item skip reasons.
func (r *SpotifyResolver) SearchDetailed(ctx context.Context, query string, limit int) (SearchResults, error) {
	if limit <= 0 {
		return nil, nil
	}
	res, err := r.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, err
	}
	if res.Tracks == nil {
		return nil, nil
	}

	results := make(SearchResults, 0, len(res.Tracks.Tracks))
	for i := range res.Tracks.Tracks {
		item := &res.Tracks.Tracks[i]
		track, err := r.match(ctx, query, spotifyMetadata(item))
		if err != nil {
			results = append(results, skipped(err.Error()))
			continue
		}
		results = append(results, found(track))
	}
	return results, nil
}

// ExtractSpotifyTrackID extracts the 22 character track ID from a Spotify URL or URI.
func ExtractSpotifyTrackID(query string) (string, bool) {
	matches := spotifyTrackIDRegex.FindStringSubmatch(query)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// spotifyMetadata uses the primary artist only; featured artists rarely appear in video titles.
func spotifyMetadata(track *spotify.FullTrack) Metadata {
	var artist string
	if len(track.Artists) > 0 {
		artist = track.Artists[0].Name
	}
	return Metadata{
		Title:      track.Name,
		Artist:     artist,
		DurationMS: int64(track.Duration),
		ISRC:       track.ExternalIDs["isrc"],
	}
}

// webPlayerTokenSource scrapes the anonymous access token embedded in the web player.
type webPlayerTokenSource struct {
	fetcher Fetcher
	webURL  string
	now     func() time.Time
}

func (s *webPlayerTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, err := s.fetcher.Get(ctx, s.webURL, nil)
	if err != nil {
		return nil, err
	}
	matches := accessTokenRegex.FindSubmatch(page)
	if matches == nil {
		return nil, ErrNoAccessToken
	}
	return &oauth2.Token{
		AccessToken: string(matches[1]),
		TokenType:   "Bearer",
		Expiry:      s.now().Add(webPlayerTokenTTL),
	}, nil
}
