package musiclink

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"spence/pkg/fuzzy"
)

// MatchPolicy selects how the Matcher picks among streamable candidates.
// The policies diverge on ambiguous titles (remixes, live versions) and are not interchangeable.
type MatchPolicy string

const (
	// PolicyWeighted scores duration, title and artist and gates the top candidate on a threshold.
	PolicyWeighted MatchPolicy = "weighted"
	// PolicyNearestDuration takes the candidate with the smallest duration difference.
	PolicyNearestDuration MatchPolicy = "nearest-duration"
)

const (
	// DefaultMatchThreshold is the minimum weighted score for preferring the top-ranked candidate.
	DefaultMatchThreshold = 0.85
	// DefaultCandidateLimit is how many streamable search results are considered.
	DefaultCandidateLimit = 5

	durationWeight = 0.4
	titleWeight    = 0.4
	artistWeight   = 0.2
)

// ParseMatchPolicy validates a policy name.
func ParseMatchPolicy(name string) (MatchPolicy, error) {
	switch MatchPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case PolicyWeighted, "":
		return PolicyWeighted, nil
	case PolicyNearestDuration:
		return PolicyNearestDuration, nil
	}
	return "", fmt.Errorf("unknown match policy %q", name)
}

// MatcherConfig configures a Matcher.
type MatcherConfig struct {
	Policy         MatchPolicy
	Threshold      float64
	CandidateLimit int
}

// Matcher maps foreign metadata to the best equivalent track on the streamable platform.
type Matcher struct {
	streamable Resolver
	config     MatcherConfig
	logger     *zap.Logger
}

// NewMatcher creates a matcher searching through the streamable resolver.
func NewMatcher(streamable Resolver, config MatcherConfig, logger *zap.Logger) *Matcher {
	if config.Policy == "" {
		config.Policy = PolicyWeighted
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultMatchThreshold
	}
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = DefaultCandidateLimit
	}
	return &Matcher{
		streamable: streamable,
		config:     config,
		logger:     logger,
	}
}

// Policy returns the configured selection policy.
func (m *Matcher) Policy() MatchPolicy {
	return m.config.Policy
}

// Query builds the streamable search query. The ISRC is appended whenever present.
func (m *Matcher) Query(meta Metadata) string {
	query := strings.TrimSpace(meta.Artist + " " + meta.Title)
	if meta.ISRC != "" {
		query += " " + meta.ISRC
	}
	return query
}

// MatchToStreamable searches the streamable platform and returns a copy of the chosen candidate.
// Callers re-attribute provenance with Track.Reattribute.
func (m *Matcher) MatchToStreamable(ctx context.Context, meta Metadata) (*Track, error) {
	query := m.Query(meta)
	candidates := m.streamable.Search(ctx, query, m.config.CandidateLimit)
	if len(candidates) == 0 {
		return nil, notFound(m.streamable.PlatformName(), query, "no streamable candidates", nil)
	}

	var chosen *Track
	switch m.config.Policy {
	case PolicyNearestDuration:
		chosen = NearestDuration(meta, candidates)
		m.logger.Debug("Matched by nearest duration",
			zap.String("query", query),
			zap.String("track_id", chosen.ID),
			zap.Int64("duration_diff_ms", fuzzy.DurationDiff(meta.DurationMS, chosen.DurationMS)))
	default:
		var score float64
		var confident bool
		chosen, score, confident = SelectWeighted(meta, candidates, m.config.Threshold)
		m.logger.Debug("Matched by weighted score",
			zap.String("query", query),
			zap.String("track_id", chosen.ID),
			zap.Float64("score", score),
			zap.Bool("fallback_to_first", !confident))
	}

	matched := *chosen
	return &matched, nil
}

// WeightedScore scores a candidate against the target metadata.
func WeightedScore(target Metadata, candidate *Track) float64 {
	return fuzzy.DurationScore(target.DurationMS, candidate.DurationMS)*durationWeight +
		fuzzy.ContainmentScore(target.Title, candidate.Title)*titleWeight +
		fuzzy.ContainmentScore(target.Artist, candidate.Artist)*artistWeight
}

// SelectWeighted ranks candidates by WeightedScore. The top candidate is returned when its score
// reaches threshold; otherwise the first raw candidate is returned and confident is false.
// candidates must not be empty.
func SelectWeighted(target Metadata, candidates []*Track, threshold float64) (chosen *Track, score float64, confident bool) {
	type scoredTrack struct {
		track *Track
		score float64
	}

	scored := make([]scoredTrack, len(candidates))
	for i, candidate := range candidates {
		scored[i] = scoredTrack{track: candidate, score: WeightedScore(target, candidate)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if scored[0].score >= threshold {
		return scored[0].track, scored[0].score, true
	}
	return candidates[0], WeightedScore(target, candidates[0]), false
}

// NearestDuration returns the candidate closest in duration; ties keep the earliest.
// candidates must not be empty.
func NearestDuration(target Metadata, candidates []*Track) *Track {
	best := candidates[0]
	bestDiff := fuzzy.DurationDiff(target.DurationMS, best.DurationMS)
	for _, candidate := range candidates[1:] {
		if diff := fuzzy.DurationDiff(target.DurationMS, candidate.DurationMS); diff < bestDiff {
			best, bestDiff = candidate, diff
		}
	}
	return best
}
