package musiclink

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"spence/pkg/transport"
)

const (
	// SoundCloudWebURL is the web app origin the client ID is scraped from.
	SoundCloudWebURL = "https://soundcloud.com"
	// SoundCloudAPIURL is the public API origin.
	SoundCloudAPIURL = "https://api-v2.soundcloud.com"
	// soundCloudClientIDTTL bounds how long a scraped client ID is reused.
	soundCloudClientIDTTL = time.Hour
	// soundCloudScrapeTimeout bounds a client ID scrape independently of the caller that started it.
	soundCloudScrapeTimeout = 30 * time.Second
)

var (
	// ErrNoClientID is returned when no client ID could be scraped from the web app.
	ErrNoClientID = errors.New("soundcloud client id not found")

	scriptSrcRegex = regexp.MustCompile(`<script[^>]+src="([^"]+)"`)
	clientIDRegex  = regexp.MustCompile(`client_id:"([a-zA-Z0-9]+)"`)
)

// SoundCloudResolver resolves SoundCloud links through the public API and matches them to the streamable platform.
type SoundCloudResolver struct {
	fetcher Fetcher
	matcher *Matcher
	logger  *zap.Logger
	webURL  string
	apiURL  string
	now     func() time.Time

	mutex          sync.Mutex
	clientID       string
	clientIDExpiry time.Time
	group          singleflight.Group
}

// NewSoundCloudResolver creates a new SoundCloud resolver.
func NewSoundCloudResolver(fetcher Fetcher, matcher *Matcher, logger *zap.Logger) *SoundCloudResolver {
	return &SoundCloudResolver{
		fetcher: fetcher,
		matcher: matcher,
		logger:  logger,
		webURL:  SoundCloudWebURL,
		apiURL:  SoundCloudAPIURL,
		now:     time.Now,
	}
}

// SetBaseURLs overrides the web and API origins.
func (r *SoundCloudResolver) SetBaseURLs(webURL, apiURL string) {
	r.webURL = strings.TrimRight(webURL, "/")
	r.apiURL = strings.TrimRight(apiURL, "/")
}

// SetClientID pins a known client ID, skipping the scrape until it is rejected.
func (r *SoundCloudResolver) SetClientID(clientID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.clientID = clientID
	r.clientIDExpiry = r.now().Add(soundCloudClientIDTTL)
}

// PlatformName returns "soundcloud".
func (r *SoundCloudResolver) PlatformName() string {
	return PlatformSoundCloud
}

// CanResolve checks if the query is a SoundCloud link.
func (r *SoundCloudResolver) CanResolve(query string) bool {
	// Covers main, mobile, and short link domains.
	return hostMatches(queryHost(query), "soundcloud.com")
}

// Resolve looks the link up via the API and returns the matched streamable track.
func (r *SoundCloudResolver) Resolve(ctx context.Context, query string) (*Track, error) {
	body, err := r.apiGet(ctx, "/resolve", url.Values{"url": {strings.TrimSpace(query)}})
	if err != nil {
		return nil, notFound(PlatformSoundCloud, query, "resolve request failed", err)
	}

	data := gjson.ParseBytes(body)
	if kind := data.Get("kind").String(); kind != "track" {
		return nil, notFound(PlatformSoundCloud, query, "link is not a track (kind "+strconv.Quote(kind)+")", nil)
	}

	meta := soundCloudMetadata(data)
	if meta.Title == "" {
		return nil, notFound(PlatformSoundCloud, query, "track has no title", nil)
	}
	return r.match(ctx, query, meta)
}

func (r *SoundCloudResolver) match(ctx context.Context, query string, meta Metadata) (*Track, error) {
	track, err := r.matcher.MatchToStreamable(ctx, meta)
	if err != nil {
		return nil, notFound(PlatformSoundCloud, query, "no streamable match", err)
	}
	track.Reattribute(PlatformSoundCloud, meta.ISRC)
	return track, nil
}

// Search searches SoundCloud and matches every hit to the streamable platform.
func (r *SoundCloudResolver) Search(ctx context.Context, query string, limit int) []*Track {
	results, err := r.SearchDetailed(ctx, query, limit)
	return collectSearch(r.logger, PlatformSoundCloud, query, results, err)
}

// SearchDetailed is Search with per-item skip reasons.
func (r *SoundCloudResolver) SearchDetailed(ctx context.Context, query string, limit int) (SearchResults, error) {
	if limit <= 0 {
		return nil, nil
	}
	body, err := r.apiGet(ctx, "/search/tracks", url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	var results SearchResults
	gjson.GetBytes(body, "collection").ForEach(func(_, item gjson.Result) bool {
		meta := soundCloudMetadata(item)
		if meta.Title == "" {
			results = append(results, skipped("soundcloud item "+item.Get("id").String()+" has no title"))
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

func soundCloudMetadata(data gjson.Result) Metadata {
	return Metadata{
		Title:      data.Get("title").String(),
		Artist:     data.Get("user.username").String(),
		DurationMS: data.Get("duration").Int(),
		ISRC:       data.Get("publisher_metadata.isrc").String(),
	}
}

// apiGet calls the API with the current client ID, re-scraping it once if it was rejected.
func (r *SoundCloudResolver) apiGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		clientID, err := r.getClientID(ctx)
		if err != nil {
			return nil, err
		}
		params.Set("client_id", clientID)

		body, err := r.fetcher.Get(ctx, r.apiURL+path+"?"+params.Encode(), nil)
		if err == nil {
			return body, nil
		}

		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) &&
			(statusErr.StatusCode() == http.StatusUnauthorized || statusErr.StatusCode() == http.StatusForbidden) {
			r.logger.Debug("SoundCloud rejected client ID, refreshing", zap.Int("status", statusErr.StatusCode()))
			r.invalidateClientID(clientID)
			continue
		}
		return nil, err
	}
	return nil, ErrNoClientID
}

func (r *SoundCloudResolver) getClientID(ctx context.Context) (string, error) {
	r.mutex.Lock()
	if r.clientID != "" && r.now().Before(r.clientIDExpiry) {
		clientID := r.clientID
		r.mutex.Unlock()
		return clientID, nil
	}
	r.mutex.Unlock()

	// The scrape is shared by every waiter, so it must outlive the caller that started it.
	results := r.group.DoChan("client_id", func() (interface{}, error) {
		scrapeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), soundCloudScrapeTimeout)
		defer cancel()

		clientID, err := r.scrapeClientID(scrapeCtx)
		if err != nil {
			return "", err
		}
		r.mutex.Lock()
		r.clientID = clientID
		r.clientIDExpiry = r.now().Add(soundCloudClientIDTTL)
		r.mutex.Unlock()
		return clientID, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return "", result.Err
		}
		clientID, _ := result.Val.(string)
		return clientID, nil
	}
}

func (r *SoundCloudResolver) invalidateClientID(clientID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.clientID == clientID {
		r.clientID = ""
	}
}

// scrapeClientID finds the client ID embedded in the web app's JS bundles.
func (r *SoundCloudResolver) scrapeClientID(ctx context.Context) (string, error) {
	page, err := r.fetcher.Get(ctx, r.webURL, nil)
	if err != nil {
		return "", err
	}

	for _, match := range scriptSrcRegex.FindAllStringSubmatch(string(page), -1) {
		src := match[1]
		if !strings.Contains(src, "app") {
			continue
		}
		if strings.HasPrefix(src, "/") {
			src = r.webURL + src
		}

		js, err := r.fetcher.Get(ctx, src, nil)
		if err != nil {
			r.logger.Debug("Failed to fetch SoundCloud script", zap.String("src", src), zap.Error(err))
			continue
		}
		if id := clientIDRegex.FindSubmatch(js); id != nil {
			r.logger.Debug("Scraped SoundCloud client ID", zap.String("src", src))
			return string(id[1]), nil
		}
	}
	return "", ErrNoClientID
}
