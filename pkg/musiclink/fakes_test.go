package musiclink

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"spence/pkg/transport"
)

// fakeFetcher serves canned bodies keyed by URL prefix.
type fakeFetcher struct {
	mutex     sync.Mutex
	responses map[string]string
	failures  map[string]error
	requests  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]string),
		failures:  make(map[string]error),
	}
}

func (f *fakeFetcher) Get(_ context.Context, url string, _ http.Header) ([]byte, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.requests = append(f.requests, url)

	for prefix, err := range f.failures {
		if strings.HasPrefix(url, prefix) {
			return nil, err
		}
	}
	// Longest prefix wins so specific routes can shadow generic ones.
	best := ""
	for prefix := range f.responses {
		if strings.HasPrefix(url, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil, &transport.StatusError{Code: http.StatusNotFound, URL: url}
	}
	return []byte(f.responses[best]), nil
}

// stubResolver is a scripted Resolver.
type stubResolver struct {
	name        string
	claims      func(string) bool
	track       *Track
	err         error
	results     []*Track
	searchCalls []string
	searchLimit int
}

func (s *stubResolver) CanResolve(query string) bool {
	return s.claims != nil && s.claims(query)
}

func (s *stubResolver) Resolve(_ context.Context, query string) (*Track, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.track == nil {
		return nil, fmt.Errorf("stub %s has no track for %q", s.name, query)
	}
	return s.track, nil
}

func (s *stubResolver) Search(_ context.Context, query string, limit int) []*Track {
	s.searchCalls = append(s.searchCalls, query)
	s.searchLimit = limit
	if limit < len(s.results) {
		return s.results[:limit]
	}
	return s.results
}

func (s *stubResolver) PlatformName() string {
	return s.name
}

func prefixClaim(prefix string) func(string) bool {
	return func(q string) bool {
		return strings.HasPrefix(q, prefix)
	}
}

func ytTrack(id, title, artist string, durationMS int64) *Track {
	return &Track{
		ID:         id,
		Title:      title,
		Artist:     artist,
		DurationMS: durationMS,
		StreamURL:  youtubeWatchURL + id,
		Platform:   PlatformYouTube,
	}
}
