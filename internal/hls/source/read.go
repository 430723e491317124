package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vodlive/hlsingest/internal/hls/hlserr"
	"github.com/vodlive/hlsingest/internal/urlutil"
)

// Read serves bytes [start, end) of the unified virtual stream: the init
// segment followed by the tracked media segments in sequence order.
func (s *Source) Read(ctx context.Context, start, end int64) ([]byte, error) {
	out := make([]byte, 0, end-start)

	s.mu.Lock()
	initLen := s.initSegmentLen
	s.mu.Unlock()

	if start < initLen {
		hi := end
		if hi > initLen {
			hi = initLen
		}
		s.mu.Lock()
		out = append(out, s.initSegmentData[start:hi]...)
		s.mu.Unlock()
		if end <= initLen {
			return out, nil
		}
		start = initLen
	}

	for {
		seqs, gapBehind, atLiveEdge, err := s.planReadLocked(start, end)
		if err != nil {
			return nil, err
		}

		if gapBehind {
			if s.IsLive() {
				return nil, &hlserr.LiveEdgeError{Kind: hlserr.LiveEdgeKindBehindWindow}
			}
			return out, nil
		}

		if atLiveEdge {
			if !s.IsLive() {
				return out, nil
			}
			advanced, err := s.waitForLiveEdge(ctx)
			if err != nil {
				return nil, err
			}
			if advanced {
				continue
			}
			if s.IsLive() {
				return nil, &hlserr.LiveEdgeError{Kind: hlserr.LiveEdgeKindTimeout}
			}
			return out, nil
		}

		for _, seq := range seqs {
			data, err := s.fetchSegment(ctx, seq)
			if err != nil {
				return nil, err
			}

			s.mu.Lock()
			info := s.segmentInfoMap[seq]
			s.mu.Unlock()
			if info == nil {
				continue
			}

			lo := maxInt64(start, info.Start)
			hi := minInt64(end, info.End)
			if hi <= lo {
				continue
			}
			out = append(out, data[lo-info.Start:hi-info.Start]...)
		}
		return out, nil
	}
}

// planReadLocked determines which sequences overlap [start, end), whether
// start falls in the gap area behind the window, or whether the request
// runs past the last known segment on a live stream (live-edge wait).
func (s *Source) planReadLocked(start, end int64) (seqs []int, gapBehind, atLiveEdge bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.knownSequences) == 0 {
		if s.isLive {
			return nil, false, true, nil
		}
		return nil, false, false, nil
	}

	first := s.segmentInfoMap[s.knownSequences[0]]
	last := s.segmentInfoMap[s.knownSequences[len(s.knownSequences)-1]]

	if start < first.Start {
		return nil, true, false, nil
	}

	// Beyond the last known segment's known extent: for a fetched/byte-
	// ranged segment that means at or past its End; for a still-provisional
	// one (true size unknown) it means strictly past its Start, since a
	// request landing exactly on Start should trigger the fetch that
	// resolves its size rather than a live-edge wait.
	if last.Provisional {
		if start > last.Start {
			return nil, false, true, nil
		}
	} else if start >= last.End {
		return nil, false, true, nil
	}

	for _, seq := range s.knownSequences {
		info := s.segmentInfoMap[seq]
		if info.End <= start && !info.Provisional {
			continue
		}
		if info.Start >= end {
			break
		}
		seqs = append(seqs, seq)
	}
	return seqs, false, false, nil
}

// waitForLiveEdge blocks on s.cond until segmentChangeCounter advances,
// ctx is cancelled, the source is disposed, or cfg.LiveEdgeTimeout
// elapses. A background goroutine broadcasts at cfg.LiveEdgePollInterval
// so the wait loop periodically re-checks the deadline and ctx even when
// no refresh has happened.
func (s *Source) waitForLiveEdge(ctx context.Context) (advanced bool, err error) {
	s.mu.Lock()
	baseline := s.segmentChangeCounter
	deadline := time.Now().Add(s.cfg.LiveEdgeTimeout)
	interval := s.cfg.LiveEdgePollInterval
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			}
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.segmentChangeCounter == baseline {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if s.disposed {
			return false, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		s.cond.Wait()
	}
	return true, nil
}

// fetchSegment returns a segment's bytes, serving from the LRU cache on a
// hit and fetching (then caching) on a miss.
func (s *Source) fetchSegment(ctx context.Context, seq int) ([]byte, error) {
	s.mu.Lock()
	if data, ok := s.segmentDataCache[seq]; ok {
		s.promoteLocked(seq)
		s.mu.Unlock()
		return data, nil
	}
	info, ok := s.segmentInfoMap[seq]
	baseURL := s.baseURL
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("source: segment %d no longer tracked", seq)
	}

	resolvedURI, err := urlutil.ResolveURL(info.Segment.URI, baseURL)
	if err != nil {
		return nil, fmt.Errorf("resolving segment URL: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.SegmentFetchTimeout)
	defer cancel()

	data, err := s.segmentFetcher.FetchRange(fetchCtx, resolvedURI, info.Segment.ByteRange)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cacheInsertLocked(seq, data)
	if info.Provisional {
		info.End = info.Start + int64(len(data))
		info.Provisional = false
		s.forwardPropagateLocked(seq)
	}
	s.mu.Unlock()

	return data, nil
}

// forwardPropagateLocked fixes up the Start of the run of byte-range-less
// segments immediately following seq, now that seq's true End is known.
// Caller must hold s.mu.
func (s *Source) forwardPropagateLocked(seq int) {
	idx := sort.SearchInts(s.knownSequences, seq)
	if idx >= len(s.knownSequences) || s.knownSequences[idx] != seq {
		return
	}
	prev := s.segmentInfoMap[seq]
	for _, next := range s.knownSequences[idx+1:] {
		info := s.segmentInfoMap[next]
		if !info.Provisional {
			break
		}
		info.Start = prev.End
		info.End = info.Start
		prev = info
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
