package hlsinput

import (
	"context"

	"github.com/vodlive/hlsingest/internal/hls/fragment"
	"github.com/vodlive/hlsingest/internal/hls/source"
)

// TrackKind distinguishes video from audio tracks.
type TrackKind int

const (
	TrackVideo TrackKind = iota
	TrackAudio
)

// Track describes one video or audio elementary stream: either muxed
// inside the selected variant's own segments, or carried by a separate
// EXT-X-MEDIA audio rendition associated with the variant by group id.
type Track struct {
	Kind     TrackKind
	Codec    string
	Language string
	Channels string
	Bitrate  int
	Muxed    bool
	Default  bool
}

// Demuxer is the out-of-scope fMP4 demuxer collaborator. An implementation
// is bound to exactly one Input's active source at a time via
// SetFragmentedSource; Input calls ReadMetadata once per resolve/select
// and NormalizeStartTimestamp once, immediately after, before any seek
// queries reach the fragment lookup bridge.
type Demuxer interface {
	// ReadMetadata parses the init segment (ftyp/moov) and any leading
	// metadata the demuxer needs before it can report tracks.
	ReadMetadata(ctx context.Context) error
	// NormalizeStartTimestamp subtracts the first packet's decode time
	// from every subsequent timestamp and returns that scalar offset, so
	// the fragment lookup bridge can re-apply it to its own table.
	NormalizeStartTimestamp() float64
	PopulateFragmentLookupTable(entries []fragment.FragmentEntry)
	AppendFragmentsToLookupTable(entries []fragment.FragmentEntry, startTimeSeconds float64)
	RemoveOldFragmentsFromLookupTable(sequences []int)
	// SetFragmentedSource binds the demuxer to the byte source it reads
	// moof/mdat pairs from.
	SetFragmentedSource(src FragmentedMediaSource)
	VideoTracks() []Track
	AudioTracks() []Track
}

// FragmentedMediaSource is the capability set a demuxer needs from a
// segment source: source.Source satisfies it structurally.
type FragmentedMediaSource interface {
	IsLive() bool
	AvailableTimeRange() (start, end float64)
	FindSegmentAtTime(t float64) *source.SegmentInfo
	ReadSegmentData(ctx context.Context, seq int) ([]byte, error)
	AvailableSegments() []int
	SegmentByteOffset(seq int) (offset int64, known bool)
	SegmentExpectedStartTime(seq int) (startTime float64, ok bool)
}

var _ FragmentedMediaSource = (*source.Source)(nil)

// VideoTracks returns the demuxer-reported video tracks, or nil if no
// demuxer is configured.
func (in *Input) VideoTracks() []Track {
	in.mu.Lock()
	demuxer := in.demuxer
	in.mu.Unlock()
	if demuxer == nil {
		return nil
	}
	return demuxer.VideoTracks()
}

// AudioTracks aggregates the demuxer-reported muxed audio tracks with any
// separate audio-rendition tracks the currently selected variant declares.
func (in *Input) AudioTracks() []Track {
	in.mu.Lock()
	demuxer := in.demuxer
	resolved := in.resolved
	in.mu.Unlock()

	var tracks []Track
	if demuxer != nil {
		tracks = append(tracks, demuxer.AudioTracks()...)
	}
	if resolved != nil {
		for _, rend := range resolved.AudioRenditions {
			tracks = append(tracks, Track{
				Kind:     TrackAudio,
				Language: rend.Language,
				Channels: rend.Channels,
				Muxed:    false,
				Default:  rend.Default,
			})
		}
	}
	return tracks
}

// PrimaryVideoTrack returns the first video track, or nil if none.
func (in *Input) PrimaryVideoTrack() *Track {
	tracks := in.VideoTracks()
	if len(tracks) == 0 {
		return nil
	}
	return &tracks[0]
}

// PrimaryAudioTrack prefers a muxed track (the variant's own segments
// always decode without an extra rendition fetch); failing that, the
// first default-flagged rendition; failing that, the first track at all.
func (in *Input) PrimaryAudioTrack() *Track {
	tracks := in.AudioTracks()
	if len(tracks) == 0 {
		return nil
	}
	for i, t := range tracks {
		if t.Muxed {
			return &tracks[i]
		}
	}
	for i, t := range tracks {
		if t.Default {
			return &tracks[i]
		}
	}
	return &tracks[0]
}
