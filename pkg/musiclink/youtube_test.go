package musiclink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const watchPageFixture = `<html><script>var ytInitialPlayerResponse = {
  "playabilityStatus": {"status": "OK"},
  "videoDetails": {"videoId": "dQw4w9WgXcQ", "title": "Never Gonna Give You Up", "author": "Rick Astley", "lengthSeconds": "213"},
  "streamingData": {"adaptiveFormats": [
    {"itag": 140, "mimeType": "audio/mp4; codecs=\"mp4a.40.2\"", "url": "https://rr.example/140"},
    {"itag": 250, "mimeType": "audio/webm; codecs=\"opus\"", "url": "https://rr.example/250"},
    {"itag": 251, "mimeType": "audio/webm; codecs=\"opus\"", "url": "https://rr.example/251"}
  ]}
};var meta = {};</script>
<script>ytcfg.set({"jsUrl":"/s/player/abc123/player_ias.vflset/en_US/base.js"});</script></html>`

const cipheredWatchPageFixture = `<script>var ytInitialPlayerResponse = {
  "playabilityStatus": {"status": "OK"},
  "videoDetails": {"videoId": "dQw4w9WgXcQ", "title": "T", "author": "A", "lengthSeconds": "10"},
  "streamingData": {"adaptiveFormats": [
    {"itag": 251, "mimeType": "audio/webm; codecs=\"opus\"", "signatureCipher": "s=SIG%3D%3D&sp=sig&url=https%3A%2F%2Frr.example%2Fvideoplayback%3Fitag%3D251"}
  ]}
};</script>"jsUrl":"/s/player/abc123/base.js"`

const searchPageFixture = `<script>var ytInitialData = {"contents": {"twoColumnSearchResultsRenderer": {"primaryContents": {"sectionListRenderer": {"contents": [
  {"itemSectionRenderer": {"contents": [
    {"shelfRenderer": {}},
    {"videoRenderer": {"videoId": "aaaaaaaaaaa", "title": {"runs": [{"text": "First Video"}]}, "ownerText": {"runs": [{"text": "Channel One"}]}, "lengthText": {"simpleText": "3:25"}}},
    {"videoRenderer": {"title": {"runs": [{"text": "Broken"}]}}},
    {"videoRenderer": {"videoId": "bbbbbbbbbbb", "title": {"runs": [{"text": "Second Video"}]}, "ownerText": {"runs": [{"text": "Channel Two"}]}}}
  ]}},
  {"itemSectionRenderer": {"contents": [
    {"videoRenderer": {"videoId": "ccccccccccc", "title": {"runs": [{"text": "Third Video"}]}, "ownerText": {"runs": [{"text": "Channel Three"}]}, "lengthText": {"simpleText": "1:00:00"}}}
  ]}}
]}}}}};</script>`

func TestYouTubeResolver_CanResolve(t *testing.T) {
	resolver := NewYouTubeResolver(newFakeFetcher(), zap.NewNop())

	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{
			name:     "Standard YouTube URL",
			url:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: true,
		},
		{
			name:     "YouTube short URL",
			url:      "https://youtu.be/dQw4w9WgXcQ",
			expected: true,
		},
		{
			name:     "YouTube Music URL",
			url:      "https://music.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: true,
		},
		{
			name:     "Mobile YouTube URL",
			url:      "https://m.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: true,
		},
		{
			name:     "Schemeless URL",
			url:      "youtube.com/watch?v=dQw4w9WgXcQ",
			expected: true,
		},
		{
			name:     "Non-YouTube URL",
			url:      "https://example.com",
			expected: false,
		},
		{
			name:     "Spotify URL",
			url:      "https://open.spotify.com/track/123",
			expected: false,
		},
		{
			name:     "Free text mentioning youtube",
			url:      "best of youtube.com 2024",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := resolver.CanResolve(tt.url)
			if result != tt.expected {
				t.Errorf("CanResolve() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		expectedID string
		wantOK     bool
	}{
		{
			name:       "Standard YouTube URL",
			url:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expectedID: "dQw4w9WgXcQ",
			wantOK:     true,
		},
		{
			name:       "YouTube short URL",
			url:        "https://youtu.be/dQw4w9WgXcQ?t=10",
			expectedID: "dQw4w9WgXcQ",
			wantOK:     true,
		},
		{
			name:       "Embed URL",
			url:        "https://www.youtube.com/embed/dQw4w9WgXcQ",
			expectedID: "dQw4w9WgXcQ",
			wantOK:     true,
		},
		{
			name:       "Shorts URL",
			url:        "https://youtube.com/shorts/dQw4w9WgXcQ",
			expectedID: "dQw4w9WgXcQ",
			wantOK:     true,
		},
		{
			name:       "Watch URL with extra params",
			url:        "https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ&index=2",
			expectedID: "dQw4w9WgXcQ",
			wantOK:     true,
		},
		{
			name:   "ID too short",
			url:    "https://www.youtube.com/watch?v=abc",
			wantOK: false,
		},
		{
			name:   "Channel URL",
			url:    "https://www.youtube.com/@RickAstleyYT",
			wantOK: false,
		},
		{
			name:   "Empty short link",
			url:    "https://youtu.be/",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := extractVideoID(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("extractVideoID() ok = %v, want %v", ok, tt.wantOK)
			}
			if id != tt.expectedID {
				t.Errorf("extractVideoID() = %q, want %q", id, tt.expectedID)
			}
		})
	}
}

func TestParsePlayerResponse(t *testing.T) {
	player, err := ParsePlayerResponse(watchPageFixture)
	if err != nil {
		t.Fatalf("ParsePlayerResponse() error = %v", err)
	}

	if player.Title != "Never Gonna Give You Up" || player.Author != "Rick Astley" {
		t.Errorf("ParsePlayerResponse() title/author = %q/%q", player.Title, player.Author)
	}
	if player.DurationMS != 213000 {
		t.Errorf("ParsePlayerResponse() DurationMS = %d, want 213000", player.DurationMS)
	}
	if len(player.Formats) != 3 {
		t.Fatalf("ParsePlayerResponse() formats = %d, want 3", len(player.Formats))
	}
	if player.PlayerJSURL != "/s/player/abc123/player_ias.vflset/en_US/base.js" {
		t.Errorf("ParsePlayerResponse() PlayerJSURL = %q", player.PlayerJSURL)
	}
}

func TestParsePlayerResponse_Missing(t *testing.T) {
	if _, err := ParsePlayerResponse("<html>consent page</html>"); !errors.Is(err, ErrNoEmbeddedJSON) {
		t.Errorf("ParsePlayerResponse() error = %v, want ErrNoEmbeddedJSON", err)
	}
}

func TestSelectAudioFormat(t *testing.T) {
	tests := []struct {
		name     string
		formats  []AdaptiveFormat
		wantItag int
		wantOK   bool
	}{
		{
			name:     "Prefers 251",
			formats:  []AdaptiveFormat{{Itag: 250}, {Itag: 140}, {Itag: 251}},
			wantItag: 251,
			wantOK:   true,
		},
		{
			name:     "Falls back to 250",
			formats:  []AdaptiveFormat{{Itag: 140}, {Itag: 250}},
			wantItag: 250,
			wantOK:   true,
		},
		{
			name:     "Any opus MIME type",
			formats:  []AdaptiveFormat{{Itag: 140, MimeType: "audio/mp4"}, {Itag: 249, MimeType: `audio/webm; codecs="OPUS"`}},
			wantItag: 249,
			wantOK:   true,
		},
		{
			name:    "No audio",
			formats: []AdaptiveFormat{{Itag: 140, MimeType: "audio/mp4"}},
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, ok := SelectAudioFormat(tt.formats)
			if ok != tt.wantOK {
				t.Fatalf("SelectAudioFormat() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && format.Itag != tt.wantItag {
				t.Errorf("SelectAudioFormat() itag = %d, want %d", format.Itag, tt.wantItag)
			}
		})
	}
}

func TestParseSearchResults(t *testing.T) {
	results, err := ParseSearchResults(searchPageFixture, 10)
	if err != nil {
		t.Fatalf("ParseSearchResults() error = %v", err)
	}

	tracks := results.Tracks()
	if len(tracks) != 3 {
		t.Fatalf("ParseSearchResults() tracks = %d, want 3", len(tracks))
	}
	if len(results.Skipped()) != 1 {
		t.Errorf("ParseSearchResults() skipped = %v, want one skip", results.Skipped())
	}

	first := tracks[0]
	if first.ID != "aaaaaaaaaaa" || first.Title != "First Video" || first.Artist != "Channel One" {
		t.Errorf("first track = %+v", first)
	}
	if first.DurationMS != 205000 {
		t.Errorf("first track DurationMS = %d, want 205000", first.DurationMS)
	}
	if first.StreamURL != "https://www.youtube.com/watch?v=aaaaaaaaaaa" {
		t.Errorf("first track StreamURL = %q", first.StreamURL)
	}
	if first.Platform != PlatformYouTube {
		t.Errorf("first track Platform = %q", first.Platform)
	}
	if tracks[1].DurationMS != 0 {
		t.Errorf("missing length should default to 0, got %d", tracks[1].DurationMS)
	}
	if tracks[2].DurationMS != 3600000 {
		t.Errorf("third track DurationMS = %d, want 3600000", tracks[2].DurationMS)
	}
}

func TestParseSearchResults_Limit(t *testing.T) {
	results, err := ParseSearchResults(searchPageFixture, 1)
	if err != nil {
		t.Fatalf("ParseSearchResults() error = %v", err)
	}
	if tracks := results.Tracks(); len(tracks) != 1 || tracks[0].ID != "aaaaaaaaaaa" {
		t.Errorf("ParseSearchResults() with limit 1 = %v", tracks)
	}
}

func TestYouTubeResolver_Resolve(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.responses["https://www.youtube.com/watch?v=dQw4w9WgXcQ"] = watchPageFixture
	resolver := NewYouTubeResolver(fetcher, zap.NewNop())

	track, err := resolver.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if track.ID != "dQw4w9WgXcQ" || track.Platform != PlatformYouTube {
		t.Errorf("Resolve() = %+v", track)
	}
	if track.StreamURL != "https://rr.example/251" {
		t.Errorf("Resolve() StreamURL = %q, want itag 251 stream", track.StreamURL)
	}
	if track.ArtworkURL != "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg" {
		t.Errorf("Resolve() ArtworkURL = %q", track.ArtworkURL)
	}
}

type recordingDecoder struct {
	gotSignature string
	gotPlayer    string
}

func (d *recordingDecoder) Decode(_ context.Context, s, playerJSURL string) (string, error) {
	d.gotSignature = s
	d.gotPlayer = playerJSURL
	return "DECODED", nil
}

func (d *recordingDecoder) Faithful() bool {
	return true
}

func TestYouTubeResolver_Resolve_SignatureCipher(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.responses["https://www.youtube.com/watch?v=dQw4w9WgXcQ"] = cipheredWatchPageFixture

	t.Run("Identity decoder passes the raw signature", func(t *testing.T) {
		resolver := NewYouTubeResolver(fetcher, zap.NewNop())

		track, err := resolver.Resolve(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		expected := "https://rr.example/videoplayback?itag=251&sig=SIG%3D%3D"
		if track.StreamURL != expected {
			t.Errorf("Resolve() StreamURL = %q, want %q", track.StreamURL, expected)
		}
	})

	t.Run("Custom decoder receives signature and player", func(t *testing.T) {
		resolver := NewYouTubeResolver(fetcher, zap.NewNop())
		decoder := &recordingDecoder{}
		resolver.SetSignatureDecoder(decoder)

		track, err := resolver.Resolve(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if decoder.gotSignature != "SIG==" || decoder.gotPlayer != "/s/player/abc123/base.js" {
			t.Errorf("decoder got (%q, %q)", decoder.gotSignature, decoder.gotPlayer)
		}
		if !strings.HasSuffix(track.StreamURL, "&sig=DECODED") {
			t.Errorf("Resolve() StreamURL = %q", track.StreamURL)
		}
	})
}

func TestYouTubeResolver_Resolve_NotFound(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.responses["https://www.youtube.com/watch?v=aaaaaaaaaaa"] =
		`var ytInitialPlayerResponse = {"playabilityStatus":{"status":"ERROR","reason":"Video unavailable"},"videoDetails":{"videoId":"aaaaaaaaaaa"}};`
	fetcher.responses["https://www.youtube.com/watch?v=bbbbbbbbbbb"] =
		`var ytInitialPlayerResponse = {"videoDetails":{"title":"x"},"streamingData":{"adaptiveFormats":[{"itag":140,"mimeType":"audio/mp4","url":"u"}]}};`
	resolver := NewYouTubeResolver(fetcher, zap.NewNop())

	tests := []struct {
		name  string
		query string
	}{
		{"Invalid URL", "https://www.youtube.com/watch?v=short"},
		{"Unplayable", "https://www.youtube.com/watch?v=aaaaaaaaaaa"},
		{"No opus stream", "https://www.youtube.com/watch?v=bbbbbbbbbbb"},
		{"Fetch failure", "https://www.youtube.com/watch?v=ccccccccccc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), tt.query)
			if !errors.Is(err, ErrTrackNotFound) {
				t.Errorf("Resolve() error = %v, want ErrTrackNotFound", err)
			}
		})
	}
}

func TestYouTubeResolver_Search(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.responses["https://www.youtube.com/results?search_query=rick+astley"] = searchPageFixture
	resolver := NewYouTubeResolver(fetcher, zap.NewNop())

	tracks := resolver.Search(context.Background(), "rick astley", 2)
	if len(tracks) != 2 {
		t.Fatalf("Search() returned %d tracks, want 2", len(tracks))
	}

	// A failing fetch yields an empty, non-nil result.
	empty := resolver.Search(context.Background(), "nothing here", 5)
	if empty == nil || len(empty) != 0 {
		t.Errorf("Search() on failure = %v, want empty slice", empty)
	}
}
