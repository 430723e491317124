package source

import "context"

// AvailableTimeRange returns [removed_duration_seconds, total_duration_seconds]
// for a live playlist, or [0, total_duration_seconds] for VOD.
func (s *Source) AvailableTimeRange() (start, end float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isLive {
		return 0, s.totalDurationSeconds
	}
	return s.removedDurationSeconds, s.totalDurationSeconds
}

// FindSegmentAtTime returns the tracked segment covering cumulative stream
// time t, or nil if none does.
func (s *Source) FindSegmentAtTime(t float64) *SegmentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seq := range s.knownSequences {
		info := s.segmentInfoMap[seq]
		if t >= info.StartTime && t < info.StartTime+info.Segment.Duration {
			return info
		}
	}
	return nil
}

// ReadSegmentData returns the raw bytes of one tracked segment, fetching
// and caching it if necessary.
func (s *Source) ReadSegmentData(ctx context.Context, seq int) ([]byte, error) {
	s.mu.Lock()
	_, tracked := s.segmentInfoMap[seq]
	s.mu.Unlock()
	if !tracked {
		return nil, nil
	}
	return s.fetchSegment(ctx, seq)
}

// AvailableSegments returns the currently tracked media sequences in
// ascending order. The returned slice is a copy safe for the caller to
// retain.
func (s *Source) AvailableSegments() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.knownSequences))
	copy(out, s.knownSequences)
	return out
}

// SegmentByteOffset returns a tracked segment's virtual start offset, and
// whether it is currently known (either the segment carries an explicit
// byte-range or has already been fetched).
func (s *Source) SegmentByteOffset(seq int) (offset int64, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.segmentInfoMap[seq]
	if !ok || info.Provisional {
		return 0, false
	}
	return info.Start, true
}

// SegmentExpectedStartTime returns a tracked segment's cumulative HLS start
// time, and whether the sequence is tracked at all.
func (s *Source) SegmentExpectedStartTime(seq int) (startTime float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, tracked := s.segmentInfoMap[seq]
	if !tracked {
		return 0, false
	}
	return info.StartTime, true
}

// KnownByteLength returns the virtual stream's total length in bytes as
// currently known. With no tracked segments it is the init segment's
// length; otherwise it is the last tracked segment's end offset. When that
// last segment's end is still provisional it returns (0, false).
func (s *Source) KnownByteLength() (length int64, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.knownSequences) == 0 {
		return s.initSegmentLen, true
	}
	last := s.segmentInfoMap[s.knownSequences[len(s.knownSequences)-1]]
	if last.Provisional {
		return 0, false
	}
	return last.End, true
}

// Snapshot returns a value copy of every currently tracked segment's info,
// in sequence order. It exists for a consumer that attaches
// LookupBridgeHooks after construction (WithHooks runs after New's initial
// ingest) and needs to seed from the window already tracked.
func (s *Source) Snapshot() []SegmentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SegmentInfo, 0, len(s.knownSequences))
	for _, seq := range s.knownSequences {
		out = append(out, *s.segmentInfoMap[seq])
	}
	return out
}
