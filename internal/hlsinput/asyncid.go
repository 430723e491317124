package hlsinput

import "sync/atomic"

// asyncIDs implements the cancellation primitive from the concurrency
// model: every user-initiated pipeline (play, seek, load) captures a
// monotonically increasing token at entry and checks it after each
// suspension point, abandoning side effects on mismatch.
type asyncIDs struct {
	counter atomic.Uint64
	current atomic.Uint64
}

func (a *asyncIDs) next() uint64 {
	id := a.counter.Add(1)
	a.current.Store(id)
	return id
}

func (a *asyncIDs) isCurrent(id uint64) bool {
	return a.current.Load() == id
}

// NewAsyncID mints a new token and makes it the current one, superseding
// whatever pipeline was previously in flight. Callers pass the returned
// token into SelectVariant (and would pass it into a seek/play operation
// in a full player integration) so a stale, superseded call becomes a
// silent no-op instead of racing the newer one.
func (in *Input) NewAsyncID() uint64 {
	return in.ids.next()
}
