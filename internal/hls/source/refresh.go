package source

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vodlive/hlsingest/internal/hls/playlist"
)

var errNotMediaPlaylist = errors.New("refresh: manifest is not a media playlist")

// StartRefresh arms the self-rearming refresh timer at target_duration/2
// seconds. It is a no-op for a VOD source (end_list already true) or a
// disposed one.
func (s *Source) StartRefresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isLive || s.disposed || s.refreshTimer != nil {
		return
	}
	s.armRefreshTimerLocked(ctx)
}

func (s *Source) armRefreshTimerLocked(ctx context.Context) {
	delay := time.Duration(s.targetDuration) * time.Second / 2
	if delay <= 0 {
		delay = 3 * time.Second
	}
	s.refreshTimer = time.AfterFunc(delay, func() {
		s.refresh(ctx)
	})
}

// refresh re-fetches the media playlist, ingests new segments, expires
// old ones, kicks off a bounded prefetch, and rearms itself unless the
// playlist has reached end_list. Fetch and parse failures are swallowed;
// the timer still rearms so a live stream experiencing transient trouble
// keeps being polled.
func (s *Source) refresh(ctx context.Context) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if s.isRefreshing {
		s.mu.Unlock()
		return
	}
	s.isRefreshing = true
	manifestURL := s.manifestURL
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRefreshing = false
		s.mu.Unlock()
	}()

	media, err := s.fetchPlaylist(ctx, manifestURL)
	if err != nil {
		s.logger.Debug("refresh fetch failed, rearming", slog.Any("error", err))
		s.rearm(ctx)
		return
	}

	s.mu.Lock()
	added, startTime := s.ingestLocked(media)
	expired := s.expireLocked(media.MediaSequence)
	stillLive := s.isLive
	s.mu.Unlock()

	if len(expired) > 0 && s.hooks.OnSegmentsRemoved != nil {
		s.hooks.OnSegmentsRemoved(expired)
	}
	if len(added) > 0 && s.hooks.OnSegmentsAdded != nil {
		s.hooks.OnSegmentsAdded(added, startTime)
	}

	s.prefetchRecent(ctx)

	if stillLive {
		s.rearm(ctx)
	}
}

func (s *Source) rearm(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || !s.isLive {
		s.refreshTimer = nil
		return
	}
	s.armRefreshTimerLocked(ctx)
}

// fetchPlaylist fetches and parses the manifest under cfg.RefreshTimeout,
// returning an error for anything that should be swallowed by the caller
// (network failure, parse failure, or a non-media playlist).
func (s *Source) fetchPlaylist(ctx context.Context, url string) (*playlist.MediaPlaylist, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.RefreshTimeout)
	defer cancel()

	body, err := s.playlistFetcher.Fetch(fetchCtx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	pl, err := playlist.ParseCompressed(body)
	if err != nil {
		return nil, err
	}
	if pl.Kind != playlist.KindMedia {
		return nil, errNotMediaPlaylist
	}
	return pl.Media, nil
}

// expireLocked drops tracked sequences below
// mediaSequence-BufferBehindSegments and returns the expired sequences in
// ascending order. Caller must hold s.mu.
func (s *Source) expireLocked(mediaSequence int) []int {
	lowWatermark := mediaSequence - s.cfg.BufferBehindSegments

	var expired []int
	for _, seq := range s.knownSequences {
		if seq < lowWatermark {
			expired = append(expired, seq)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	expiredSet := make(map[int]struct{}, len(expired))
	for _, seq := range expired {
		expiredSet[seq] = struct{}{}
		if info, ok := s.segmentInfoMap[seq]; ok {
			s.removedDurationSeconds += info.Segment.Duration
			delete(s.segmentInfoMap, seq)
		}
		delete(s.segmentDataCache, seq)
	}

	kept := s.knownSequences[:0:0]
	for _, seq := range s.knownSequences {
		if _, gone := expiredSet[seq]; !gone {
			kept = append(kept, seq)
		}
	}
	s.knownSequences = kept

	accessKept := s.segmentAccessOrder[:0:0]
	for _, seq := range s.segmentAccessOrder {
		if _, gone := expiredSet[seq]; !gone {
			accessKept = append(accessKept, seq)
		}
	}
	s.segmentAccessOrder = accessKept

	s.segmentChangeCounter++
	sort.Ints(expired)
	return expired
}

// prefetchRecent fetches up to cfg.PrefetchLimit not-yet-cached recent
// sequences concurrently, bounded with errgroup.SetLimit. Individual
// fetch failures are logged and otherwise ignored: prefetch is an
// optimization, not a correctness requirement.
func (s *Source) prefetchRecent(ctx context.Context) {
	s.mu.Lock()
	var candidates []int
	for i := len(s.knownSequences) - 1; i >= 0 && len(candidates) < s.cfg.PrefetchLimit; i-- {
		seq := s.knownSequences[i]
		if _, cached := s.segmentDataCache[seq]; !cached {
			candidates = append(candidates, seq)
		}
	}
	s.mu.Unlock()

	if len(candidates) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PrefetchLimit)
	for _, seq := range candidates {
		seq := seq
		g.Go(func() error {
			if _, err := s.fetchSegment(gctx, seq); err != nil {
				s.logger.Debug("prefetch failed", slog.Int("sequence", seq), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
