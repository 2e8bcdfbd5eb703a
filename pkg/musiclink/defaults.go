package musiclink

import (
	"go.uber.org/zap"

	"spence/pkg/transport"
)

// Options configures NewDefaultRegistry.
type Options struct {
	Matcher            MatcherConfig
	Spotify            SpotifyConfig
	SoundCloudClientID string
}

// NewDefaultRegistry creates a registry with all supported resolvers in priority order:
// YouTube, SoundCloud, Spotify, Apple Music, Deezer. Every resolver shares client's rate limiter.
func NewDefaultRegistry(client *transport.Client, opts Options, logger *zap.Logger) *Registry {
	youtube := NewYouTubeResolver(client, logger.Named("youtube"))
	matcher := NewMatcher(youtube, opts.Matcher, logger.Named("matcher"))

	soundcloud := NewSoundCloudResolver(client, matcher, logger.Named("soundcloud"))
	if opts.SoundCloudClientID != "" {
		soundcloud.SetClientID(opts.SoundCloudClientID)
	}

	return NewRegistry(
		youtube,
		soundcloud,
		NewSpotifyResolver(opts.Spotify, client.HTTPClient(nil), client, matcher, logger.Named("spotify")),
		NewAppleMusicResolver(client, matcher, logger.Named("applemusic")),
		NewDeezerResolver(client, matcher, logger.Named("deezer")),
	)
}
