package source

// promoteLocked moves seq to the back (most-recently-used end) of the LRU
// access order. Caller must hold s.mu.
func (s *Source) promoteLocked(seq int) {
	for i, v := range s.segmentAccessOrder {
		if v == seq {
			s.segmentAccessOrder = append(s.segmentAccessOrder[:i], s.segmentAccessOrder[i+1:]...)
			break
		}
	}
	s.segmentAccessOrder = append(s.segmentAccessOrder, seq)
}

// cacheInsertLocked stores data for seq, evicting LRU entries above
// capacity first. Eviction prefers sequences no longer in knownSequences;
// among tracked sequences it skips the least-recently-used one if it is
// the live-edge-imminent segment (the current tail of knownSequences) to
// avoid evicting the segment playback is about to need. Caller must hold
// s.mu.
func (s *Source) cacheInsertLocked(seq int, data []byte) {
	if _, exists := s.segmentDataCache[seq]; !exists {
		for len(s.segmentDataCache) >= s.cfg.MaxCachedSegments && len(s.segmentAccessOrder) > 0 {
			if !s.evictOneLocked() {
				break
			}
		}
	}
	s.segmentDataCache[seq] = data
	s.promoteLocked(seq)
}

// evictOneLocked removes one cache entry, returning false if nothing was
// eligible for eviction. Caller must hold s.mu.
func (s *Source) evictOneLocked() bool {
	liveEdge := -1
	if len(s.knownSequences) > 0 {
		liveEdge = s.knownSequences[len(s.knownSequences)-1]
	}

	for i, seq := range s.segmentAccessOrder {
		if _, cached := s.segmentDataCache[seq]; !cached {
			continue
		}
		if !s.isKnownLocked(seq) {
			s.removeFromCacheLocked(seq, i)
			return true
		}
	}

	for i, seq := range s.segmentAccessOrder {
		if _, cached := s.segmentDataCache[seq]; !cached {
			continue
		}
		if seq == liveEdge {
			continue
		}
		s.removeFromCacheLocked(seq, i)
		return true
	}

	return false
}

func (s *Source) isKnownLocked(seq int) bool {
	_, ok := s.segmentInfoMap[seq]
	return ok
}

func (s *Source) removeFromCacheLocked(seq int, accessIdx int) {
	delete(s.segmentDataCache, seq)
	s.segmentAccessOrder = append(s.segmentAccessOrder[:accessIdx], s.segmentAccessOrder[accessIdx+1:]...)
}
