// Package musiclink resolves links and search phrases from several music platforms to playable tracks.
package musiclink

import (
	"context"
	"net/http"
)

// Platform names as reported by Resolver.PlatformName and Track.Platform.
const (
	PlatformYouTube    = "youtube"
	PlatformSoundCloud = "soundcloud"
	PlatformSpotify    = "spotify"
	PlatformAppleMusic = "applemusic"
	PlatformDeezer     = "deezer"
)

// Track is a canonical, playable track descriptor.
//
// Tracks are produced once by a resolver and treated as read-only afterwards.
// The single exception is Reattribute, used after cross-platform matching.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	DurationMS int64  `json:"duration"` // Milliseconds.
	StreamURL  string `json:"stream_url"`
	Platform   string `json:"platform"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	ISRC       string `json:"isrc,omitempty"` // International Standard Recording Code (if available).
}

// Reattribute overwrites Platform and ISRC to record the catalog a matched track originated from.
// This is the only permitted mutation of a constructed Track.
func (t *Track) Reattribute(platform, isrc string) {
	t.Platform = platform
	t.ISRC = isrc
}

// Metadata describes a track in a catalog that cannot be streamed directly.
type Metadata struct {
	Title      string
	Artist     string
	DurationMS int64
	ISRC       string
}

// Resolver maps platform-specific queries to canonical tracks.
type Resolver interface {
	// CanResolve reports whether the query belongs to this platform. It never touches the network.
	CanResolve(query string) bool

	// Resolve returns the track behind the query or a TrackNotFoundError.
	Resolve(ctx context.Context, query string) (*Track, error)

	// Search returns up to limit tracks. It never fails; unusable items are skipped.
	Search(ctx context.Context, query string, limit int) []*Track

	// PlatformName returns the constant platform identity.
	PlatformName() string
}

// DetailedSearcher is implemented by resolvers that can report why search items were skipped.
type DetailedSearcher interface {
	SearchDetailed(ctx context.Context, query string, limit int) (SearchResults, error)
}

// SearchResult is one search item: either a Track or the reason it was skipped.
type SearchResult struct {
	Track *Track
	Skip  string
}

// SearchResults is the ordered outcome of a detailed search.
type SearchResults []SearchResult

// Tracks returns the successful items in order.
func (r SearchResults) Tracks() []*Track {
	tracks := make([]*Track, 0, len(r))
	for _, item := range r {
		if item.Track != nil {
			tracks = append(tracks, item.Track)
		}
	}
	return tracks
}

// Skipped returns the skip reasons in order.
func (r SearchResults) Skipped() []string {
	var reasons []string
	for _, item := range r {
		if item.Track == nil {
			reasons = append(reasons, item.Skip)
		}
	}
	return reasons
}

func skipped(reason string) SearchResult {
	return SearchResult{Skip: reason}
}

func found(track *Track) SearchResult {
	return SearchResult{Track: track}
}

// Fetcher performs rate-limited GET requests. *transport.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, url string, headers http.Header) ([]byte, error)
}
