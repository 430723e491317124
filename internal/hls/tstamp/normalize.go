// Package tstamp normalizes per-segment decode timestamps onto the
// cumulative playlist timeline, so that a segment's packets read back
// starting at its expected playlist start time regardless of what
// arbitrary base timestamp the encoder burned into the segment.
package tstamp

import "sort"

// Epsilon tolerates float arithmetic jitter in timestamp comparisons and
// lookups.
const Epsilon = 1e-4

// Packet is one decoded audio or video access unit. Sequence is decode
// order, strictly monotonic within a segment; PTS is presentation time and
// is never used for ordering (B-frames reorder it relative to decode order).
type Packet struct {
	Sequence uint64
	PTS      float64
	Duration float64
	KeyFrame bool
	Data     []byte
}

// Normalize sorts packets by decode sequence and shifts every PTS by
// offset = T0 - expectedStart, where T0 is the first packet's (decode-
// order) timestamp, so the earliest resulting timestamp lands on
// expectedStart. The input slice is not mutated; Normalize returns a new
// slice of shifted clones.
func Normalize(packets []Packet, expectedStart float64) []Packet {
	if len(packets) == 0 {
		return nil
	}

	ordered := make([]Packet, len(packets))
	copy(ordered, packets)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	offset := ordered[0].PTS - expectedStart

	out := make([]Packet, len(ordered))
	for i, p := range ordered {
		p.PTS -= offset
		out[i] = p
	}
	return out
}

// EqualTimestamps reports whether a and b are the same instant within
// Epsilon.
func EqualTimestamps(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= Epsilon
}

// FindBySequence returns the packet with the given decode sequence, and
// whether one was found. Packets is assumed sorted by Sequence ascending
// (as Normalize's output always is).
func FindBySequence(packets []Packet, seq uint64) (Packet, bool) {
	i := sort.Search(len(packets), func(i int) bool { return packets[i].Sequence >= seq })
	if i < len(packets) && packets[i].Sequence == seq {
		return packets[i], true
	}
	return Packet{}, false
}
