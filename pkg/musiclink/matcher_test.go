package musiclink

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
)

func TestWeightedScore(t *testing.T) {
	target := Metadata{Title: "Song", Artist: "Artist", DurationMS: 205000}

	tests := []struct {
		name      string
		candidate *Track
		expected  float64
	}{
		{
			name:      "Half a second off with exact title and artist",
			candidate: ytTrack("a", "Song", "Artist", 205500),
			expected:  0.38 + 0.4 + 0.2,
		},
		{
			name:      "Five seconds off",
			candidate: ytTrack("a", "Song", "Artist", 210000),
			expected:  0.2 + 0.4 + 0.2,
		},
		{
			name:      "Title contained in decorated candidate",
			candidate: ytTrack("a", "Artist - SONG (Official Video)", "ArtistVEVO", 205000),
			expected:  0.4 + 0.4 + 0.2,
		},
		{
			name:      "No containment and out of window",
			candidate: ytTrack("a", "Other", "Someone", 300000),
			expected:  0 + 0.2 + 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeightedScore(target, tt.candidate); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("WeightedScore() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSelectWeighted(t *testing.T) {
	tests := []struct {
		name          string
		target        Metadata
		candidates    []*Track
		wantID        string
		wantConfident bool
	}{
		{
			name:   "Equal distance below threshold falls back to first result",
			target: Metadata{Title: "Song", Artist: "Artist", DurationMS: 205000},
			candidates: []*Track{
				ytTrack("d200", "Song", "Artist", 200000),
				ytTrack("d210", "Song", "Artist", 210000),
				ytTrack("d260", "Song", "Artist", 260000),
			},
			wantID:        "d200",
			wantConfident: false,
		},
		{
			name:   "Top ranked candidate preferred over first result",
			target: Metadata{Title: "Song", Artist: "Artist", DurationMS: 209500},
			candidates: []*Track{
				ytTrack("d200", "Song", "Artist", 200000),
				ytTrack("d210", "Song", "Artist", 210000),
				ytTrack("d260", "Song", "Artist", 260000),
			},
			wantID:        "d210",
			wantConfident: true,
		},
		{
			name:   "Title and artist containment disambiguate",
			target: Metadata{Title: "Song", Artist: "Artist", DurationMS: 205500},
			candidates: []*Track{
				ytTrack("other", "Different", "Other", 205000),
				ytTrack("live", "Song (Live)", "Artist", 206000),
			},
			wantID:        "live",
			wantConfident: true,
		},
		{
			name:   "Ties keep search order",
			target: Metadata{Title: "Song", Artist: "Artist", DurationMS: 200000},
			candidates: []*Track{
				ytTrack("first", "Song", "Artist", 200000),
				ytTrack("second", "Song", "Artist", 200000),
			},
			wantID:        "first",
			wantConfident: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chosen, _, confident := SelectWeighted(tt.target, tt.candidates, DefaultMatchThreshold)
			if chosen.ID != tt.wantID {
				t.Errorf("SelectWeighted() chose %q, want %q", chosen.ID, tt.wantID)
			}
			if confident != tt.wantConfident {
				t.Errorf("SelectWeighted() confident = %v, want %v", confident, tt.wantConfident)
			}
		})
	}
}

func TestNearestDuration(t *testing.T) {
	target := Metadata{Title: "Song", Artist: "Artist", DurationMS: 205000}
	candidates := []*Track{
		ytTrack("remix", "Song (Remix)", "Artist", 260000),
		ytTrack("short", "Wrong", "Nobody", 204000),
		ytTrack("long", "Song", "Artist", 206000),
	}

	// Nearest duration ignores titles, so the unrelated video wins on the tie.
	if got := NearestDuration(target, candidates); got.ID != "short" {
		t.Errorf("NearestDuration() = %q, want %q", got.ID, "short")
	}
}

func TestParseMatchPolicy(t *testing.T) {
	tests := []struct {
		input     string
		expected  MatchPolicy
		wantError bool
	}{
		{"weighted", PolicyWeighted, false},
		{"", PolicyWeighted, false},
		{"Nearest-Duration", PolicyNearestDuration, false},
		{"best", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMatchPolicy(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseMatchPolicy(%q) error = %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseMatchPolicy(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatcher_MatchToStreamable(t *testing.T) {
	candidate := ytTrack("aaaaaaaaaaa", "Song", "Artist", 200000)
	youtube := &stubResolver{name: PlatformYouTube, results: []*Track{candidate}}
	matcher := NewMatcher(youtube, MatcherConfig{}, zap.NewNop())

	meta := Metadata{Title: "Song", Artist: "Artist", DurationMS: 200000, ISRC: "USRC17607839"}
	track, err := matcher.MatchToStreamable(context.Background(), meta)
	if err != nil {
		t.Fatalf("MatchToStreamable() error = %v", err)
	}

	if youtube.searchCalls[0] != "Artist Song USRC17607839" {
		t.Errorf("search query = %q, want ISRC appended", youtube.searchCalls[0])
	}
	if youtube.searchLimit != DefaultCandidateLimit {
		t.Errorf("search limit = %d, want %d", youtube.searchLimit, DefaultCandidateLimit)
	}

	track.Reattribute(PlatformDeezer, meta.ISRC)
	if candidate.Platform != PlatformYouTube || candidate.ISRC != "" {
		t.Errorf("re-attribution leaked into the search result: %+v", candidate)
	}
}

func TestMatcher_Query(t *testing.T) {
	matcher := NewMatcher(&stubResolver{name: PlatformYouTube}, MatcherConfig{}, zap.NewNop())

	if got := matcher.Query(Metadata{Title: "Song", Artist: "Artist"}); got != "Artist Song" {
		t.Errorf("Query() = %q, want %q", got, "Artist Song")
	}
	if got := matcher.Query(Metadata{Title: "Song"}); got != "Song" {
		t.Errorf("Query() without artist = %q, want %q", got, "Song")
	}
}

func TestMatcher_NoCandidates(t *testing.T) {
	matcher := NewMatcher(&stubResolver{name: PlatformYouTube}, MatcherConfig{}, zap.NewNop())

	_, err := matcher.MatchToStreamable(context.Background(), Metadata{Title: "Nothing"})
	if !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("MatchToStreamable() error = %v, want ErrTrackNotFound", err)
	}
}

func TestMatcher_PoliciesDiverge(t *testing.T) {
	candidates := []*Track{
		ytTrack("live", "Song (Live)", "Artist", 230000),
		ytTrack("cover", "Another Tune", "Somebody", 200500),
		ytTrack("studio", "Song", "Artist", 201000),
	}
	meta := Metadata{Title: "Song", Artist: "Artist", DurationMS: 200000}

	weighted := NewMatcher(&stubResolver{name: PlatformYouTube, results: candidates},
		MatcherConfig{Policy: PolicyWeighted}, zap.NewNop())
	nearest := NewMatcher(&stubResolver{name: PlatformYouTube, results: candidates},
		MatcherConfig{Policy: PolicyNearestDuration}, zap.NewNop())

	w, err := weighted.MatchToStreamable(context.Background(), meta)
	if err != nil {
		t.Fatalf("weighted MatchToStreamable() error = %v", err)
	}
	n, err := nearest.MatchToStreamable(context.Background(), meta)
	if err != nil {
		t.Fatalf("nearest MatchToStreamable() error = %v", err)
	}

	if w.ID != "studio" {
		t.Errorf("weighted chose %q, want studio", w.ID)
	}
	if n.ID != "cover" {
		t.Errorf("nearest-duration chose %q, want cover", n.ID)
	}
}
