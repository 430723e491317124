package fragment

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vodlive/hlsingest/internal/hls/playlist"
	"github.com/vodlive/hlsingest/internal/hls/source"
)

func TestBridge_SeedNotifiesAndBuildsTable(t *testing.T) {
	var populated []FragmentEntry
	b := New(Notifiers{
		PopulateFromSegments: func(entries []FragmentEntry) { populated = entries },
	})

	b.Seed([]FragmentEntry{
		{Sequence: 1, StartTime: 6, Duration: 6, MoofOffset: 106},
		{Sequence: 0, StartTime: 0, Duration: 6, MoofOffset: 0},
	})

	require.True(t, b.HasSeeded())
	require.Len(t, populated, 2)
	assert.Equal(t, 0, populated[0].Sequence) // sorted by sequence
	assert.Equal(t, 1, populated[1].Sequence)

	offset, ok := b.FindOffsetForTime(7)
	require.True(t, ok)
	assert.Equal(t, int64(106), offset)

	_, ok = b.FindOffsetForTime(100)
	assert.False(t, ok)
}

func TestBridge_AppendExtendsTable(t *testing.T) {
	var appendedStart float64
	var appendedEntries []FragmentEntry
	b := New(Notifiers{
		AppendFragments: func(entries []FragmentEntry, startTimeSeconds float64) {
			appendedEntries = entries
			appendedStart = startTimeSeconds
		},
	})
	b.Seed([]FragmentEntry{{Sequence: 0, StartTime: 0, Duration: 6, MoofOffset: 0}})

	b.Append([]FragmentEntry{{Sequence: 1, StartTime: 6, Duration: 6, MoofOffset: 106}}, 6)

	require.Len(t, appendedEntries, 1)
	assert.Equal(t, 1, appendedEntries[0].Sequence)
	assert.Equal(t, 6.0, appendedStart)
	assert.Len(t, b.Entries(), 2)
}

func TestBridge_RemoveDropsExpiredEntries(t *testing.T) {
	var removed []int
	b := New(Notifiers{RemoveFragments: func(sequences []int) { removed = sequences }})
	b.Seed([]FragmentEntry{
		{Sequence: 0, StartTime: 0, Duration: 6, MoofOffset: 0},
		{Sequence: 1, StartTime: 6, Duration: 6, MoofOffset: 106},
	})

	b.Remove([]int{0})

	assert.Equal(t, []int{0}, removed)
	assert.Len(t, b.Entries(), 1)
	assert.Equal(t, 1, b.Entries()[0].Sequence)

	_, ok := b.FindOffsetForTime(3)
	assert.False(t, ok)
}

func TestBridge_ApplyEditListOffset_ShiftsTimesOnceOnly(t *testing.T) {
	var lastPopulated []FragmentEntry
	calls := 0
	b := New(Notifiers{
		PopulateFromSegments: func(entries []FragmentEntry) {
			calls++
			lastPopulated = entries
		},
	})
	b.Seed([]FragmentEntry{
		{Sequence: 0, StartTime: 10, Duration: 6, MoofOffset: 0},
		{Sequence: 1, StartTime: 16, Duration: 6, MoofOffset: 106},
	})
	require.Equal(t, 1, calls)

	b.ApplyEditListOffset(10)
	require.Equal(t, 2, calls)
	assert.Equal(t, 0.0, lastPopulated[0].StartTime)
	assert.Equal(t, 6.0, lastPopulated[1].StartTime)

	// A second call is a no-op: the shift must happen exactly once.
	b.ApplyEditListOffset(10)
	assert.Equal(t, 2, calls)

	offset, ok := b.FindOffsetForTime(0)
	require.True(t, ok)
	assert.Equal(t, int64(0), offset)
}

const liveMedia = `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-MAP:URI="init.mp4"
#EXTINF:6.0,
seg0.m4s
#EXTINF:6.0,
seg1.m4s
`

func TestAttachToSource_SeedsFromExistingWindowThenAppends(t *testing.T) {
	p, err := playlist.Parse(strings.NewReader(liveMedia))
	require.NoError(t, err)
	require.Equal(t, playlist.KindMedia, p.Kind)

	src, err := source.New(context.Background(), "http://host/media.m3u8", "http://host/media.m3u8", p.Media, nil, noopFetcher{}, noopFetcher{}, nil)
	require.NoError(t, err)

	var populated []FragmentEntry
	b := New(Notifiers{
		PopulateFromSegments: func(entries []FragmentEntry) { populated = entries },
	})
	AttachToSource(src, b)

	require.True(t, b.HasSeeded())
	require.Len(t, populated, 2)
	assert.Equal(t, 0, populated[0].Sequence)
	assert.Equal(t, 1, populated[1].Sequence)

	var appended []FragmentEntry
	var appendedStart float64
	b2 := New(Notifiers{
		AppendFragments: func(entries []FragmentEntry, startTimeSeconds float64) {
			appended = entries
			appendedStart = startTimeSeconds
		},
	})
	// Re-attach is not a supported flow; exercise Append directly instead
	// to mirror what a refresh-triggered OnSegmentsAdded would do once the
	// bridge has already seeded.
	b2.Seed(nil)
	b2.Append([]FragmentEntry{{Sequence: 2, StartTime: 12, Duration: 6, MoofOffset: 212}}, 12)
	assert.Len(t, appended, 1)
	assert.Equal(t, 12.0, appendedStart)
}

const byterangedMedia = `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-PLAYLIST-TYPE:VOD
#EXT-X-MAP:URI="init.mp4"
#EXT-X-BYTERANGE:100
#EXTINF:6.0,
seg0.m4s
#EXT-X-BYTERANGE:100
#EXTINF:6.0,
seg1.m4s
#EXT-X-ENDLIST
`

// The init segment is fetched before any segment is ingested, so the
// bridge's very first seed already carries offsets shifted by the init
// segment's real length — no later correction needed.
func TestAttachToSource_SeedsWithOffsetsAlreadyShiftedByInitLength(t *testing.T) {
	p, err := playlist.Parse(strings.NewReader(byterangedMedia))
	require.NoError(t, err)

	src, err := source.New(context.Background(), "http://host/media.m3u8", "http://host/media.m3u8", p.Media, nil,
		noopFetcher{}, fixedFetcher{data: make([]byte, 500)}, nil)
	require.NoError(t, err)

	var populated []FragmentEntry
	b := New(Notifiers{
		PopulateFromSegments: func(entries []FragmentEntry) { populated = entries },
	})
	AttachToSource(src, b)

	require.Len(t, populated, 2)
	assert.Equal(t, int64(500), populated[0].MoofOffset)
	assert.Equal(t, int64(600), populated[1].MoofOffset)

	offset, ok := b.FindOffsetForTime(0)
	require.True(t, ok)
	assert.Equal(t, int64(500), offset)

	offset, ok = b.FindOffsetForTime(6)
	require.True(t, ok)
	assert.Equal(t, int64(600), offset)
}

type noopFetcher struct{}

func (noopFetcher) FetchRange(_ context.Context, _ string, _ *playlist.ByteRange) ([]byte, error) {
	return nil, nil
}

// fixedFetcher returns the same byte slice (or a sub-range of it) for every
// URL requested; used where the test only cares about the init fetch path.
type fixedFetcher struct{ data []byte }

func (f fixedFetcher) FetchRange(_ context.Context, _ string, br *playlist.ByteRange) ([]byte, error) {
	if br == nil {
		return f.data, nil
	}
	offset := int64(0)
	if br.Offset != nil {
		offset = *br.Offset
	}
	end := offset + br.Length
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	return f.data[offset:end], nil
}
