// Package fragment builds the fragment lookup table a demuxer needs to
// seek directly to a fragment's moof box: the replacement for the mfra box
// an HLS-delivered fMP4 never carries. It mediates between a segment
// source's sliding-window events and the three table-mutation operations
// the demuxer provides.
package fragment

import (
	"sort"
	"sync"

	"github.com/vodlive/hlsingest/internal/hls/source"
)

// FragmentEntry is one fragment's lookup-table record.
type FragmentEntry struct {
	Sequence   int
	StartTime  float64
	Duration   float64
	MoofOffset int64
}

// Notifiers are the three demuxer-provided table operations the bridge
// drives. A nil field is treated as a no-op (useful for tests that only
// care about the bridge's own lookup behavior).
type Notifiers struct {
	// PopulateFromSegments seeds (or re-seeds, after an edit-list offset
	// correction) the table from a full snapshot.
	PopulateFromSegments func(entries []FragmentEntry)
	// AppendFragments extends the table after a refresh ingests new
	// segments; startTimeSeconds is the cumulative stream time at the
	// first of the new entries.
	AppendFragments func(entries []FragmentEntry, startTimeSeconds float64)
	// RemoveFragments drops entries whose moof offset lies in now-gap
	// territory after a sliding-window expiry.
	RemoveFragments func(sequences []int)
}

// Bridge mirrors the demuxer's fragment lookup table so that
// ApplyEditListOffset can recompute every recorded time value and so
// FindOffsetForTime can serve seek queries without round-tripping through
// the demuxer.
type Bridge struct {
	mu            sync.Mutex
	notifiers     Notifiers
	entries       []FragmentEntry // sequence-ordered
	seeded        bool
	offsetApplied bool
}

// New constructs a Bridge around the demuxer's three notifier callbacks.
func New(notifiers Notifiers) *Bridge {
	return &Bridge{notifiers: notifiers}
}

// AttachToSource wires a Source's LookupBridgeHooks to this bridge and
// seeds it from whatever window the Source already tracks (New's initial
// ingest runs before WithHooks can be called, so that window would
// otherwise never reach PopulateFromSegments).
func AttachToSource(src *source.Source, b *Bridge) {
	initial := src.Snapshot()
	if len(initial) > 0 {
		entries := make([]FragmentEntry, len(initial))
		for i, info := range initial {
			entries[i] = toEntry(&info)
		}
		b.Seed(entries)
	}

	src.WithHooks(source.LookupBridgeHooks{
		OnSegmentsAdded: func(added []*source.SegmentInfo, startTime float64) {
			entries := make([]FragmentEntry, len(added))
			for i, info := range added {
				entries[i] = toEntry(info)
			}
			if !b.HasSeeded() {
				b.Seed(entries)
				return
			}
			b.Append(entries, startTime)
		},
		OnSegmentsRemoved: func(sequences []int) {
			b.Remove(sequences)
		},
	})
}

func toEntry(info *source.SegmentInfo) FragmentEntry {
	return FragmentEntry{
		Sequence:   info.Sequence,
		StartTime:  info.StartTime,
		Duration:   info.Segment.Duration,
		MoofOffset: info.Start,
	}
}

// HasSeeded reports whether Seed has ever been called.
func (b *Bridge) HasSeeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seeded
}

// Seed is populate_fragment_lookup_table_from_segments: the initial table
// build from the window tracked at attach time.
func (b *Bridge) Seed(entries []FragmentEntry) {
	b.mu.Lock()
	b.entries = sortedCopy(entries)
	b.seeded = true
	notify := b.notifiers.PopulateFromSegments
	snapshot := cloneEntries(b.entries)
	b.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}
}

// Append is append_fragments_to_lookup_table: extend the table after a
// refresh ingests new segments.
func (b *Bridge) Append(entries []FragmentEntry, startTimeSeconds float64) {
	if len(entries) == 0 {
		return
	}
	b.mu.Lock()
	b.entries = sortedCopy(append(cloneEntries(b.entries), entries...))
	notify := b.notifiers.AppendFragments
	b.mu.Unlock()

	if notify != nil {
		notify(cloneEntries(entries), startTimeSeconds)
	}
}

// Remove is remove_old_fragments_from_lookup_table: drop entries for
// sequences that just expired from the sliding window.
func (b *Bridge) Remove(sequences []int) {
	if len(sequences) == 0 {
		return
	}
	gone := make(map[int]struct{}, len(sequences))
	for _, seq := range sequences {
		gone[seq] = struct{}{}
	}

	b.mu.Lock()
	kept := b.entries[:0:0]
	for _, e := range b.entries {
		if _, remove := gone[e.Sequence]; !remove {
			kept = append(kept, e)
		}
	}
	b.entries = kept
	notify := b.notifiers.RemoveFragments
	b.mu.Unlock()

	if notify != nil {
		notify(sequences)
	}
}

// ApplyEditListOffset re-applies a scalar shift to every recorded start
// time, once, after the demuxer's start-timestamp normalization and
// before any seek queries. A second call is a no-op: the ordering
// requirement ("this adjustment happens once") is enforced here rather
// than left to the caller's discipline.
func (b *Bridge) ApplyEditListOffset(offset float64) {
	b.mu.Lock()
	if b.offsetApplied {
		b.mu.Unlock()
		return
	}
	for i := range b.entries {
		b.entries[i].StartTime -= offset
	}
	b.offsetApplied = true
	notify := b.notifiers.PopulateFromSegments
	snapshot := cloneEntries(b.entries)
	b.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}
}

// FindOffsetForTime returns the moof offset of the entry covering
// cumulative stream time t, and whether one was found.
func (b *Bridge) FindOffsetForTime(t float64) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if t >= e.StartTime && t < e.StartTime+e.Duration {
			return e.MoofOffset, true
		}
	}
	return 0, false
}

// Entries returns a copy of the current lookup table in sequence order.
func (b *Bridge) Entries() []FragmentEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneEntries(b.entries)
}

func sortedCopy(entries []FragmentEntry) []FragmentEntry {
	out := cloneEntries(entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func cloneEntries(entries []FragmentEntry) []FragmentEntry {
	out := make([]FragmentEntry, len(entries))
	copy(out, entries)
	return out
}
