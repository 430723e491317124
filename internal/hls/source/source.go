package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vodlive/hlsingest/internal/hls/hlserr"
	"github.com/vodlive/hlsingest/internal/hls/playlist"
	"github.com/vodlive/hlsingest/internal/urlutil"
)

// LookupBridgeHooks lets the fragment lookup bridge (and ultimately the
// demuxer) observe sliding-window changes without the source depending on
// that package.
type LookupBridgeHooks struct {
	// OnSegmentsAdded is called with newly tracked entries (in order) and
	// the cumulative stream time at the first of them.
	OnSegmentsAdded func(entries []*SegmentInfo, startTime float64)
	// OnSegmentsRemoved is called with the media sequences that just
	// expired from the sliding window, in ascending order.
	OnSegmentsRemoved func(sequences []int)
}

// Source presents one linear, randomly-addressable byte stream over an
// fMP4 init segment followed by a live or VOD media playlist's segments.
type Source struct {
	mu   sync.Mutex
	cond *sync.Cond

	logger *slog.Logger
	cfg    Config

	manifestURL string
	baseURL     string
	isLive      bool

	playlistFetcher PlaylistFetcher
	segmentFetcher  Fetcher
	initFetcher     Fetcher

	targetDuration int

	initSegmentData []byte
	initSegmentLen  int64

	segmentInfoMap map[int]*SegmentInfo
	knownSequences []int

	segmentDataCache   map[int][]byte
	segmentAccessOrder []int

	nextSegmentOffset      int64
	totalDurationSeconds   float64
	removedDurationSeconds float64
	segmentChangeCounter   int64

	refreshTimer *time.Timer
	isRefreshing bool
	disposed     bool

	hooks LookupBridgeHooks
}

// PlaylistFetcher is the narrow interface the refresh loop needs to
// re-fetch the media playlist; it matches resolve.Fetcher's shape so a
// Source can be handed a resolve.Resolver's Fetcher directly without this
// package importing resolve.
type PlaylistFetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// New constructs a Source from an already-resolved media playlist
// snapshot. baseURL is the URL the snapshot was fetched from (used to
// resolve relative segment/init URIs); manifestURL is re-fetched by the
// refresh loop when the playlist is live.
//
// The init segment is fetched eagerly, before any segment from media is
// ingested: next_segment_offset is fixed to the init segment's real
// length first, so every tracked segment's Start/End is correct from the
// moment it is first observed and never needs retroactive adjustment.
func New(ctx context.Context, manifestURL, baseURL string, media *playlist.MediaPlaylist, playlistFetcher PlaylistFetcher, segmentFetcher, initFetcher Fetcher, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{
		logger:             logger,
		cfg:                DefaultConfig(),
		manifestURL:        manifestURL,
		baseURL:            baseURL,
		isLive:             !media.EndList,
		playlistFetcher:    playlistFetcher,
		segmentFetcher:     segmentFetcher,
		initFetcher:        initFetcher,
		targetDuration:     media.TargetDuration,
		segmentInfoMap:     make(map[int]*SegmentInfo),
		segmentDataCache:   make(map[int][]byte),
		segmentAccessOrder: make([]int, 0),
	}
	s.cond = sync.NewCond(&s.mu)

	if err := s.fetchInit(ctx, media); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.ingestLocked(media)
	s.mu.Unlock()

	return s, nil
}

// WithConfig overrides the default tuning knobs. Call before any Read.
func (s *Source) WithConfig(cfg Config) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return s
}

// WithHooks installs the fragment lookup bridge callbacks.
func (s *Source) WithHooks(hooks LookupBridgeHooks) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = hooks
	return s
}

// IsLive reflects the most recently observed media playlist's end_list flag.
func (s *Source) IsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLive
}

// TargetDuration returns the most recently observed target duration.
func (s *Source) TargetDuration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetDuration
}

// ingestLocked appends newly-observed segments from a playlist snapshot.
// Caller must hold s.mu. Returns the newly added entries and the cumulative
// stream time at the first of them (for the fragment lookup bridge).
func (s *Source) ingestLocked(media *playlist.MediaPlaylist) ([]*SegmentInfo, float64) {
	startTime := s.totalDurationSeconds
	var added []*SegmentInfo

	for i, seg := range media.Segments {
		seq := media.MediaSequence + i
		if _, exists := s.segmentInfoMap[seq]; exists {
			continue
		}

		start := s.nextSegmentOffset
		var end int64
		provisional := true
		if seg.ByteRange != nil {
			end = start + seg.ByteRange.Length
			provisional = false
		} else {
			end = start
		}

		info := &SegmentInfo{
			Segment:     seg,
			Sequence:    seq,
			Start:       start,
			End:         end,
			Provisional: provisional,
			StartTime:   s.totalDurationSeconds,
		}

		s.segmentInfoMap[seq] = info
		s.knownSequences = append(s.knownSequences, seq)
		s.nextSegmentOffset = end
		s.totalDurationSeconds += seg.Duration
		s.segmentChangeCounter++
		added = append(added, info)
	}

	s.isLive = !media.EndList
	if media.TargetDuration > 0 {
		s.targetDuration = media.TargetDuration
	}

	if len(added) > 0 {
		s.cond.Broadcast()
	}

	return added, startTime
}

// fetchInit performs the eager init-segment fetch described in §4.4,
// before any segment from media is ingested: it fixes
// next_segment_offset to the init segment's real length so that every
// segment ingested afterward gets its correct, immutable virtual start
// offset on the first pass. media is the not-yet-ingested snapshot
// passed to New, searched directly (not via segmentInfoMap, which is
// still empty at this point) for the first EXT-X-MAP reference.
func (s *Source) fetchInit(ctx context.Context, media *playlist.MediaPlaylist) error {
	var mapURI string
	var mapRange *playlist.ByteRange
	for _, seg := range media.Segments {
		if seg.Map != nil {
			mapURI = seg.Map.URI
			mapRange = seg.Map.ByteRange
			break
		}
	}

	if mapURI == "" {
		return &hlserr.UnsupportedMediaError{Message: "fMP4 required: no EXT-X-MAP on any segment"}
	}

	resolvedURI, err := urlutil.ResolveURL(mapURI, s.baseURL)
	if err != nil {
		return fmt.Errorf("resolving init segment URL: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.InitFetchTimeout)
	defer cancel()

	data, err := s.initFetcher.FetchRange(fetchCtx, resolvedURI, mapRange)
	if err != nil {
		return err
	}

	s.initSegmentData = data
	s.initSegmentLen = int64(len(data))
	s.nextSegmentOffset = s.initSegmentLen
	return nil
}

// Dispose cancels the refresh timer and releases all cached buffers. It is
// idempotent and safe to call more than once.
func (s *Source) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}

	s.initSegmentData = nil
	s.segmentDataCache = make(map[int][]byte)
	s.segmentAccessOrder = s.segmentAccessOrder[:0]
	s.cond.Broadcast()
}
