package hlsinput

import (
	"sync"
	"time"
)

// liveEdgeDebounce is how long is_handling_live_edge stays set after a
// recovery seek completes, so concurrent iterators (video, audio) that
// hit LiveEdgeError within the same burst don't each trigger their own
// seek.
const liveEdgeDebounce = 500 * time.Millisecond

type liveEdgeState struct {
	mu       sync.Mutex
	handling bool
}

// TryHandleLiveEdge reports whether the caller should perform the
// recovery seek (true) or drop this LiveEdgeError because another
// iterator is already handling one (false).
func (in *Input) TryHandleLiveEdge() bool {
	in.live.mu.Lock()
	defer in.live.mu.Unlock()
	if in.live.handling {
		return false
	}
	in.live.handling = true
	return true
}

// FinishLiveEdgeHandling marks the recovery seek complete. The flag stays
// set for liveEdgeDebounce after this call so a burst of concurrent
// LiveEdgeErrors arriving around the same time collapses into one seek.
func (in *Input) FinishLiveEdgeHandling() {
	go func() {
		time.Sleep(liveEdgeDebounce)
		in.live.mu.Lock()
		in.live.handling = false
		in.live.mu.Unlock()
	}()
}

// RecoverySeekTarget returns the cumulative stream time to seek back to
// after a LiveEdgeError: 3x the current target duration behind the live
// edge, per the consumer-behavior contract.
func (in *Input) RecoverySeekTarget() float64 {
	in.mu.Lock()
	src := in.src
	in.mu.Unlock()
	if src == nil {
		return 0
	}
	_, end := src.AvailableTimeRange()
	back := float64(3 * src.TargetDuration())
	target := end - back
	if target < 0 {
		return 0
	}
	return target
}
