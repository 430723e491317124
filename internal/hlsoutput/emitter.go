package hlsoutput

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vodlive/hlsingest/internal/hls/playlist"
)

// Config configures an Emitter. Zero values are replaced with sane
// defaults by DefaultConfig / New.
type Config struct {
	// TargetDuration is the EXT-X-TARGETDURATION advertised in the media
	// playlist, in seconds.
	TargetDuration int
	// WindowSize is how many segments a live playlist keeps before the
	// oldest is evicted. Zero (VOD) keeps every segment.
	WindowSize int
	// Live marks the playlist as not carrying EXT-X-ENDLIST until Close.
	Live bool
	// SegmentURIFormat is used with fmt.Sprintf(format, sequence) to name
	// each segment file. Defaults to "seg%d.m4s".
	SegmentURIFormat string
	// InitURI is the EXT-X-MAP URI advertised for every segment.
	InitURI string
}

// DefaultConfig returns the Emitter defaults.
func DefaultConfig() Config {
	return Config{
		TargetDuration:   6,
		SegmentURIFormat: "seg%d.m4s",
		InitURI:          "init.mp4",
	}
}

// Emitter builds a playlist.MediaPlaylist incrementally as segments are
// produced, writing each segment's (and the init segment's) bytes through
// a Writer. It mirrors the shape an ingest pipeline consumes on read,
// letting tests and the serve command round-trip a stream's output side.
type Emitter struct {
	cfg    Config
	writer Writer
	logger *slog.Logger

	started atomic.Bool
	closed  atomic.Bool

	subscribers atomic.Int32
	lastWrite   atomic.Value // time.Time

	segmentsProduced atomic.Uint64
	bytesProduced    atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex
	mediaSequence int
	segments      []playlist.Segment
	nextSequence  int
	initWritten   bool
}

// New constructs an Emitter. writer must be non-nil.
func New(cfg Config, writer Writer, logger *slog.Logger) *Emitter {
	if cfg.TargetDuration <= 0 {
		cfg.TargetDuration = DefaultConfig().TargetDuration
	}
	if cfg.SegmentURIFormat == "" {
		cfg.SegmentURIFormat = DefaultConfig().SegmentURIFormat
	}
	if cfg.InitURI == "" {
		cfg.InitURI = DefaultConfig().InitURI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{cfg: cfg, writer: writer, logger: logger}
}

// Start arms the Emitter's lifecycle context. Idempotent.
func (e *Emitter) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.lastWrite.Store(time.Now())
}

// Close tears the Emitter down and, for a live playlist, appends
// EXT-X-ENDLIST. Idempotent.
func (e *Emitter) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
}

// AddSubscriber/RemoveSubscriber track how many consumers are currently
// reading this Emitter's output, mirroring a relay's listener refcount.
func (e *Emitter) AddSubscriber() int32    { return e.subscribers.Add(1) }
func (e *Emitter) RemoveSubscriber() int32 { return e.subscribers.Add(-1) }
func (e *Emitter) Subscribers() int32      { return e.subscribers.Load() }

// WriteInit writes the init segment once. Subsequent calls are no-ops,
// matching EXT-X-MAP's "established once, applies to all following
// segments" semantics.
func (e *Emitter) WriteInit(data []byte) error {
	e.mu.Lock()
	if e.initWritten {
		e.mu.Unlock()
		return nil
	}
	e.initWritten = true
	e.mu.Unlock()

	if err := e.writer.WriteInit(data); err != nil {
		return fmt.Errorf("hlsoutput: writing init segment: %w", err)
	}
	e.bytesProduced.Add(uint64(len(data)))
	e.touch()
	return nil
}

// WriteSegment appends one segment of duration seconds and writes its
// bytes through the configured Writer, evicting the oldest tracked
// segment (and bumping MediaSequence) once WindowSize is exceeded for a
// live Emitter.
func (e *Emitter) WriteSegment(ctx context.Context, duration float64, data []byte) error {
	if e.closed.Load() {
		return fmt.Errorf("hlsoutput: emitter closed")
	}

	e.mu.Lock()
	seq := e.nextSequence
	e.nextSequence++
	uri := fmt.Sprintf(e.cfg.SegmentURIFormat, seq)
	seg := playlist.Segment{Duration: duration, URI: uri}
	if len(e.segments) == 0 {
		seg.Map = &playlist.Map{URI: e.cfg.InitURI}
	}
	e.segments = append(e.segments, seg)
	if e.cfg.Live && e.cfg.WindowSize > 0 && len(e.segments) > e.cfg.WindowSize {
		evict := len(e.segments) - e.cfg.WindowSize
		e.segments = e.segments[evict:]
		e.mediaSequence += evict
	}
	e.mu.Unlock()

	if err := e.writer.WriteSegment(seq, uri, data); err != nil {
		return fmt.Errorf("hlsoutput: writing segment %d: %w", seq, err)
	}
	e.segmentsProduced.Add(1)
	e.bytesProduced.Add(uint64(len(data)))
	e.touch()
	return nil
}

func (e *Emitter) touch() {
	e.lastWrite.Store(time.Now())
}

// LastWrite returns the time of the most recent WriteInit/WriteSegment
// call, or the zero time if none has happened yet.
func (e *Emitter) LastWrite() time.Time {
	v := e.lastWrite.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}

// Metrics is a point-in-time snapshot of production counters.
type Metrics struct {
	SegmentsProduced uint64
	BytesProduced    uint64
	Subscribers      int32
}

// Metrics returns a snapshot of the Emitter's atomic counters.
func (e *Emitter) Metrics() Metrics {
	return Metrics{
		SegmentsProduced: e.segmentsProduced.Load(),
		BytesProduced:    e.bytesProduced.Load(),
		Subscribers:      e.subscribers.Load(),
	}
}

// Playlist builds the current playlist.MediaPlaylist snapshot. For a
// live Emitter, EndList is false until Close has been called.
func (e *Emitter) Playlist() *playlist.MediaPlaylist {
	e.mu.RLock()
	defer e.mu.RUnlock()

	segments := make([]playlist.Segment, len(e.segments))
	copy(segments, e.segments)

	pt := playlist.PlaylistTypeVOD
	if e.cfg.Live {
		pt = playlist.PlaylistTypeUnset
	}

	return &playlist.MediaPlaylist{
		Version:        7,
		TargetDuration: e.cfg.TargetDuration,
		MediaSequence:  e.mediaSequence,
		PlaylistType:   pt,
		EndList:        !e.cfg.Live || e.closed.Load(),
		Segments:       segments,
	}
}

// Render writes the current playlist as M3U8 text.
func (e *Emitter) Render() ([]byte, error) {
	mp := e.Playlist()
	var buf bytes.Buffer
	if err := playlist.Write(&buf, &playlist.Playlist{Kind: playlist.KindMedia, Media: mp}); err != nil {
		return nil, fmt.Errorf("hlsoutput: rendering playlist: %w", err)
	}
	return buf.Bytes(), nil
}
