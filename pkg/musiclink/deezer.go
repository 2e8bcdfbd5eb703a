package musiclink

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// DeezerAPIURL is the public Deezer API origin.
	DeezerAPIURL = "https://api.deezer.com"
)

var (
	deezerTrackIDRegex = regexp.MustCompile(`track/(\d+)`)
)

// DeezerResolver resolves Deezer track links via the public API and matches them to the streamable platform.
type DeezerResolver struct {
	fetcher Fetcher
	matcher *Matcher
	logger  *zap.Logger
	apiURL  string
}

// NewDeezerResolver creates a new Deezer resolver.
func NewDeezerResolver(fetcher Fetcher, matcher *Matcher, logger *zap.Logger) *DeezerResolver {
	return &DeezerResolver{
		fetcher: fetcher,
		matcher: matcher,
		logger:  logger,
		apiURL:  DeezerAPIURL,
	}
}

// SetAPIURL overrides the API origin.
func (r *DeezerResolver) SetAPIURL(apiURL string) {
	r.apiURL = strings.TrimRight(apiURL, "/")
}

// PlatformName returns "deezer".
func (r *DeezerResolver) PlatformName() string {
	return PlatformDeezer
}

// CanResolve checks if the query is a Deezer link.
func (r *DeezerResolver) CanResolve(query string) bool {
	return hostMatches(queryHost(query), "deezer.com", "deezer.page.link")
}

// Resolve fetches track metadata and returns the matched streamable track.
func (r *DeezerResolver) Resolve(ctx context.Context, query string) (*Track, error) {
	matches := deezerTrackIDRegex.FindStringSubmatch(query)
	if len(matches) < 2 {
		return nil, notFound(PlatformDeezer, query, "invalid Deezer track URL", nil)
	}

	body, err := r.fetcher.Get(ctx, r.apiURL+"/track/"+matches[1], nil)
	if err != nil {
		return nil, notFound(PlatformDeezer, query, "metadata fetch failed", err)
	}

	data := gjson.ParseBytes(body)
	// The API answers unknown IDs with 200 and an error object.
	if apiErr := data.Get("error.message"); apiErr.Exists() {
		return nil, notFound(PlatformDeezer, query, apiErr.String(), nil)
	}

	meta := deezerMetadata(data)
	if meta.Title == "" {
		return nil, notFound(PlatformDeezer, query, "empty metadata", nil)
	}
	return r.match(ctx, query, meta)
}

func (r *DeezerResolver) match(ctx context.Context, query string, meta Metadata) (*Track, error) {
	track, err := r.matcher.MatchToStreamable(ctx, meta)
	if err != nil {
		return nil, notFound(PlatformDeezer, query, "no streamable match", err)
	}
	track.Reattribute(PlatformDeezer, meta.ISRC)
	return track, nil
}

// Search searches the Deezer catalog and matches every hit to the streamable platform.
func (r *DeezerResolver) Search(ctx context.Context, query string, limit int) []*Track {
	results, err := r.SearchDetailed(ctx, query, limit)
	return collectSearch(r.logger, PlatformDeezer, query, results, err)
}

// SearchDetailed is Search with per-item skip reasons.
func (r *DeezerResolver) SearchDetailed(ctx context.Context, query string, limit int) (SearchResults, error) {
	if limit <= 0 {
		return nil, nil
	}
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	body, err := r.fetcher.Get(ctx, r.apiURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var results SearchResults
	gjson.GetBytes(body, "data").ForEach(func(_, item gjson.Result) bool {
		meta := deezerMetadata(item)
		if meta.Title == "" {
			results = append(results, skipped("deezer item "+item.Get("id").String()+" has no title"))
			return true
		}
		track, err := r.match(ctx, query, meta)
		if err != nil {
			results = append(results, skipped(err.Error()))
			return true
		}
		results = append(results, found(track))
		return true
	})
	return results, nil
}

// deezerMetadata converts an API track object; durations are reported in seconds.
func deezerMetadata(data gjson.Result) Metadata {
	return Metadata{
		Title:      data.Get("title").String(),
		Artist:     data.Get("artist.name").String(),
		DurationMS: data.Get("duration").Int() * 1000,
		ISRC:       data.Get("isrc").String(),
	}
}
