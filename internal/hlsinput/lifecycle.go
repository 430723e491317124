package hlsinput

// IsLive reflects the current media playlist's end_list flag. It returns
// false before initialization.
func (in *Input) IsLive() bool {
	in.mu.Lock()
	src := in.src
	in.mu.Unlock()
	if src == nil {
		return false
	}
	return src.IsLive()
}

// TargetDuration returns the most recently observed target duration in
// seconds, or 0 before initialization.
func (in *Input) TargetDuration() int {
	in.mu.Lock()
	src := in.src
	in.mu.Unlock()
	if src == nil {
		return 0
	}
	return src.TargetDuration()
}

// ComputeDuration returns the stream's duration in seconds: for VOD, the
// sum of segment durations; for live, total_duration_seconds as currently
// known (it grows monotonically with each refresh). Before the source is
// constructed, falls back to summing the resolved manifest's segment
// durations directly, if a manifest has been resolved at all.
func (in *Input) ComputeDuration() float64 {
	in.mu.Lock()
	src := in.src
	resolved := in.resolved
	in.mu.Unlock()

	if src != nil {
		_, end := src.AvailableTimeRange()
		return end
	}

	if resolved != nil && resolved.MediaPlaylist != nil {
		var sum float64
		for _, seg := range resolved.MediaPlaylist.Segments {
			sum += seg.Duration
		}
		return sum
	}
	return 0
}
