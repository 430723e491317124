// Package source implements the segment source: a single linear,
// random-access virtual byte stream assembled from an fMP4 init segment
// followed by the media segments of a (possibly live, sliding-window)
// media playlist.
package source

import (
	"time"

	"github.com/vodlive/hlsingest/internal/hls/playlist"
)

// SegmentInfo is the per-segment runtime state tracked alongside the
// immutable playlist Segment: its media sequence and its virtual byte
// range within the unified stream layout.
type SegmentInfo struct {
	Segment     playlist.Segment
	Sequence    int
	Start       int64
	End         int64
	Provisional bool
	StartTime   float64 // cumulative HLS time at the start of this segment
}

// Config tunes the sliding-window and caching behavior of a Source. New
// starts from DefaultConfig(); WithConfig replaces the whole Config with
// the value given, zero fields included.
type Config struct {
	// MaxCachedSegments bounds the segment-data LRU cache.
	MaxCachedSegments int
	// BufferBehindSegments is how many sequences behind the live edge are
	// retained once expired from the playlist (~15 minutes at typical
	// segment durations).
	BufferBehindSegments int
	// PrefetchLimit bounds the number of concurrent segment fetches kicked
	// off after a refresh.
	PrefetchLimit int
	// InitFetchTimeout bounds the init-segment fetch. New performs that
	// fetch at construction (not on the first Read) using DefaultConfig's
	// value, so a value set later through WithConfig does not apply to it.
	InitFetchTimeout time.Duration
	// SegmentFetchTimeout bounds an on-demand segment fetch.
	SegmentFetchTimeout time.Duration
	// RefreshTimeout bounds each playlist refresh fetch.
	RefreshTimeout time.Duration
	// LiveEdgePollInterval is how often Read polls the change counter
	// while waiting at the live edge.
	LiveEdgePollInterval time.Duration
	// LiveEdgeTimeout bounds how long Read waits at the live edge before
	// giving up with LiveEdgeError{Kind: Timeout}.
	LiveEdgeTimeout time.Duration
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		MaxCachedSegments:     20,
		BufferBehindSegments:  72,
		PrefetchLimit:         3,
		InitFetchTimeout:      10 * time.Second,
		SegmentFetchTimeout:   15 * time.Second,
		RefreshTimeout:        5 * time.Second,
		LiveEdgePollInterval:  100 * time.Millisecond,
		LiveEdgeTimeout:       10 * time.Second,
	}
}
