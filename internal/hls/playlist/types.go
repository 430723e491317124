// Package playlist provides immutable value types for HLS (RFC 8216) master
// and media playlists, a tolerant tokenizing parser, and a round-trippable
// writer.
package playlist

import "time"

// Kind discriminates the sum type returned by Parse.
type Kind int

const (
	// KindMedia is a leaf playlist listing segments for one rendition.
	KindMedia Kind = iota
	// KindMaster is a multivariant playlist referencing media playlists.
	KindMaster
)

// Playlist is the sum-type envelope returned by Parse. Exactly one of
// Master or Media is non-nil, selected by Kind.
type Playlist struct {
	Kind   Kind
	Master *MasterPlaylist
	Media  *MediaPlaylist
}

// MasterPlaylist references several media playlists, one per variant.
type MasterPlaylist struct {
	Version             int
	IndependentSegments bool
	Variants            []Variant
	Renditions          []MediaRendition
	SessionData         []SessionData
	SessionKey          *Key
}

// PlaylistType enumerates EXT-X-PLAYLIST-TYPE.
type PlaylistType int

const (
	// PlaylistTypeUnset means the tag was absent.
	PlaylistTypeUnset PlaylistType = iota
	PlaylistTypeVOD
	PlaylistTypeEvent
)

func (t PlaylistType) String() string {
	switch t {
	case PlaylistTypeVOD:
		return "VOD"
	case PlaylistTypeEvent:
		return "EVENT"
	default:
		return ""
	}
}

// MediaPlaylist is a leaf M3U8 listing segments for one rendition/variant.
type MediaPlaylist struct {
	Version                int
	TargetDuration         int
	MediaSequence          int
	DiscontinuitySequence  int
	PlaylistType           PlaylistType
	EndList                bool
	IFramesOnly            bool
	IndependentSegments    bool
	Start                  *StartPoint
	Segments               []Segment
	DateRanges             []DateRange
}

// StartPoint models EXT-X-START.
type StartPoint struct {
	TimeOffset float64
	Precise    bool
}

// Resolution is a variant's pixel dimensions.
type Resolution struct {
	Width  int
	Height int
}

// Variant is one bandwidth/resolution choice in a master playlist.
type Variant struct {
	Bandwidth        int
	AverageBandwidth int
	Resolution       *Resolution
	FrameRate        float64
	Codecs           string
	URI              string
	Audio            string
	Video            string
	Subtitles        string
	ClosedCaptions    string
	HDCPLevel        string
}

// RenditionType enumerates EXT-X-MEDIA's TYPE attribute.
type RenditionType int

const (
	RenditionAudio RenditionType = iota
	RenditionVideo
	RenditionSubtitles
	RenditionClosedCaptions
)

func (t RenditionType) String() string {
	switch t {
	case RenditionAudio:
		return "AUDIO"
	case RenditionVideo:
		return "VIDEO"
	case RenditionSubtitles:
		return "SUBTITLES"
	case RenditionClosedCaptions:
		return "CLOSED-CAPTIONS"
	default:
		return ""
	}
}

// MediaRendition is an alternative (e.g. alternate audio) associated with a
// variant via a group id.
type MediaRendition struct {
	Type            RenditionType
	GroupID         string
	Name            string
	URI             string
	Language        string
	AssocLanguage   string
	Default         bool
	Autoselect      bool
	Forced          bool
	InstreamID      string
	Characteristics string
	Channels        string
}

// ByteRange models EXT-X-BYTERANGE. Parse fills an elided segment offset
// from the running cursor (the end of the previous byte range), so a
// parsed segment's Offset is never nil; Offset stays nil only where the
// text elided it and nothing filled it in, such as an EXT-X-MAP BYTERANGE.
type ByteRange struct {
	Length int64
	Offset *int64
}

// KeyMethod enumerates EXT-X-KEY's METHOD attribute.
type KeyMethod string

const (
	KeyMethodNone      KeyMethod = "NONE"
	KeyMethodAES128    KeyMethod = "AES-128"
	KeyMethodSampleAES KeyMethod = "SAMPLE-AES"
)

// Key is an encryption key reference (EXT-X-KEY). Once established it
// applies to all subsequent segments until an entry with Method=NONE clears
// it.
type Key struct {
	Method            KeyMethod
	URI               string
	IV                string
	Keyformat         string
	Keyformatversions string
}

// Map is an init-segment reference (EXT-X-MAP). Once established by
// position in the segment list it applies to all subsequent segments until
// explicitly overridden.
type Map struct {
	URI       string
	ByteRange *ByteRange
}

// DateRange models EXT-X-DATERANGE. Client-defined X-* attributes are
// collected into Client, with numeric-looking values parsed as float64.
type DateRange struct {
	ID               string
	Class            string
	StartDate        time.Time
	EndDate          *time.Time
	Duration         *float64
	PlannedDuration  *float64
	EndOnNext        bool
	Client           map[string]any
}

// Segment is one entry in a media playlist.
type Segment struct {
	Duration        float64
	Title           string
	URI             string
	ByteRange       *ByteRange
	Discontinuity   bool
	ProgramDateTime *time.Time
	Key             *Key
	Map             *Map
	Gap             bool
	Bitrate         int // bits per second, converted from EXT-X-BITRATE kbps
}

// SessionData models EXT-X-SESSION-DATA.
type SessionData struct {
	DataID   string
	Value    string
	URI      string
	Language string
}
