package tstamp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_ShiftsToExpectedStart(t *testing.T) {
	packets := []Packet{
		{Sequence: 0, PTS: 1000.0},
		{Sequence: 1, PTS: 1000.5},
		{Sequence: 2, PTS: 1001.0},
	}

	out := Normalize(packets, 12.0)

	require.Len(t, out, 3)
	assert.True(t, EqualTimestamps(out[0].PTS, 12.0))
	assert.True(t, EqualTimestamps(out[1].PTS, 12.5))
	assert.True(t, EqualTimestamps(out[2].PTS, 13.0))
}

func TestNormalize_OrdersByDecodeSequenceNotPTS(t *testing.T) {
	// B-frame reordering: decode sequence 1 has a PTS after sequence 2's.
	packets := []Packet{
		{Sequence: 2, PTS: 10.0},
		{Sequence: 0, PTS: 8.0},
		{Sequence: 1, PTS: 12.0},
	}

	out := Normalize(packets, 0)

	require.Len(t, out, 3)
	assert.Equal(t, uint64(0), out[0].Sequence)
	assert.Equal(t, uint64(1), out[1].Sequence)
	assert.Equal(t, uint64(2), out[2].Sequence)
	// offset is computed from the first packet in decode order (seq 0, PTS 8.0).
	assert.True(t, EqualTimestamps(out[0].PTS, 0))
	assert.True(t, EqualTimestamps(out[1].PTS, 4.0))
	assert.True(t, EqualTimestamps(out[2].PTS, 2.0))
}

func TestNormalize_EmptyInput(t *testing.T) {
	assert.Nil(t, Normalize(nil, 5.0))
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	packets := []Packet{{Sequence: 0, PTS: 100.0}}
	_ = Normalize(packets, 0)
	assert.Equal(t, 100.0, packets[0].PTS)
}

func TestEqualTimestamps(t *testing.T) {
	assert.True(t, EqualTimestamps(1.00005, 1.0))
	assert.False(t, EqualTimestamps(1.001, 1.0))
}

func TestFindBySequence(t *testing.T) {
	packets := []Packet{
		{Sequence: 0, PTS: 0},
		{Sequence: 1, PTS: 1},
		{Sequence: 3, PTS: 3},
	}

	p, ok := FindBySequence(packets, 1)
	require.True(t, ok)
	assert.Equal(t, 1.0, p.PTS)

	_, ok = FindBySequence(packets, 2)
	assert.False(t, ok)
}
