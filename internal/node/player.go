package node

import (
	"errors"
	"fmt"
	"sync"

	"spence/pkg/musiclink"
)

const (
	// SampleRate is the output sample rate requested from the engine.
	SampleRate = 48000
	// Channels is the output channel count requested from the engine.
	Channels = 2
)

var (
	// ErrInvalidState is returned when the engine rejects a playback command.
	ErrInvalidState = errors.New("invalid player state")
	// ErrInvalidTrack is returned when a track has no stream URL or duration.
	ErrInvalidTrack = errors.New("track is not playable")
)

// TrackInfo is what the engine needs to load a track.
type TrackInfo struct {
	StreamURL  string
	DurationMS int64
	SampleRate int
	Channels   int
}

// Valid reports whether the engine can load the track.
func (t TrackInfo) Valid() bool {
	return t.StreamURL != "" && t.DurationMS > 0
}

// PlayerMetrics are the engine's playback counters.
type PlayerMetrics struct {
	FramesGenerated uint64  `json:"frames_generated"`
	FramesDropped   uint64  `json:"frames_dropped"`
	DecodeErrors    uint64  `json:"decode_errors"`
	BufferUnderruns uint64  `json:"buffer_underruns"`
	AvgFrameTimeUS  float64 `json:"avg_frame_time_us"`
}

// Engine is the playback engine. Each call creates an independent player handle.
type Engine interface {
	CreatePlayer() EnginePlayer
}

// EnginePlayer is a player handle owned by the engine. Commands report success as a bool.
type EnginePlayer interface {
	Load(info TrackInfo) bool
	Play() bool
	Pause() bool
	Stop() bool
	SeekTo(positionMS int64) bool
	// ReadFrame returns the next 20 ms Opus frame, or false when none is ready.
	ReadFrame() ([]byte, bool)
	Metrics() PlayerMetrics
}

// Player controls playback of resolved tracks on an engine player.
type Player struct {
	engine  EnginePlayer
	mutex   sync.Mutex
	current *musiclink.Track
}

func newPlayer(engine EnginePlayer) *Player {
	return &Player{engine: engine}
}

// Load loads a resolved track.
func (p *Player) Load(track *musiclink.Track) error {
	if track == nil {
		return ErrInvalidTrack
	}
	info := TrackInfo{
		StreamURL:  track.StreamURL,
		DurationMS: track.DurationMS,
		SampleRate: SampleRate,
		Channels:   Channels,
	}
	if !info.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidTrack, track.ID)
	}
	if !p.engine.Load(info) {
		return fmt.Errorf("failed to load track %s: %w", track.ID, ErrInvalidState)
	}

	p.mutex.Lock()
	p.current = track
	p.mutex.Unlock()
	return nil
}

// Play starts playback.
func (p *Player) Play() error {
	return command("play", p.engine.Play())
}

// Pause pauses playback.
func (p *Player) Pause() error {
	return command("pause", p.engine.Pause())
}

// Stop stops playback and unloads the current track.
func (p *Player) Stop() error {
	if err := command("stop", p.engine.Stop()); err != nil {
		return err
	}
	p.mutex.Lock()
	p.current = nil
	p.mutex.Unlock()
	return nil
}

// SeekTo moves playback to positionMS.
func (p *Player) SeekTo(positionMS int64) error {
	if positionMS < 0 {
		positionMS = 0
	}
	return command("seek", p.engine.SeekTo(positionMS))
}

// ReadFrame returns the next encoded frame, or nil when none is ready.
func (p *Player) ReadFrame() []byte {
	frame, ok := p.engine.ReadFrame()
	if !ok || len(frame) == 0 {
		return nil
	}
	return frame
}

// Metrics returns the engine's playback counters.
func (p *Player) Metrics() PlayerMetrics {
	return p.engine.Metrics()
}

// CurrentTrack returns the loaded track, or nil.
func (p *Player) CurrentTrack() *musiclink.Track {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.current
}

func command(name string, ok bool) error {
	if !ok {
		return fmt.Errorf("cannot %s in current state: %w", name, ErrInvalidState)
	}
	return nil
}
