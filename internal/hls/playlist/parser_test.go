package playlist

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMaster = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-INDEPENDENT-SEGMENTS
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud1",NAME="English",LANGUAGE="en",DEFAULT=YES,AUTOSELECT=YES,URI="audio/en.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=5000000,AVERAGE-BANDWIDTH=4500000,CODECS="avc1.64001f,mp4a.40.2",RESOLUTION=1920x1080,FRAME-RATE=29.97,AUDIO="aud1"
video/1080p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2000000,CODECS="avc1.4d001f,mp4a.40.2",RESOLUTION=1280x720,AUDIO="aud1"
video/720p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=500000,CODECS="ec-3",AUDIO="aud1"
video/dolby-only.m3u8
`

const sampleMedia = `#EXTM3U
#EXT-X-VERSION:7
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:100
#EXT-X-MAP:URI="init.mp4",BYTERANGE="500@0"
#EXT-X-PROGRAM-DATE-TIME:2026-08-06T12:00:00.000Z
#EXT-X-BYTERANGE:1000@500
#EXTINF:6.006,
segment100.m4s
#EXT-X-BYTERANGE:1000@1500
#EXTINF:6.006,
segment101.m4s
#EXT-X-DISCONTINUITY
#EXTINF:5.994,
segment102.m4s
`

const sampleMediaEndList = `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXT-X-PLAYLIST-TYPE:VOD
#EXTINF:10.0,
seg0.m4s
#EXTINF:10.0,
seg1.m4s
#EXT-X-ENDLIST
`

func TestParse_Master(t *testing.T) {
	p, err := Parse(strings.NewReader(sampleMaster))
	require.NoError(t, err)
	require.Equal(t, KindMaster, p.Kind)

	m := p.Master
	assert.Equal(t, 6, m.Version)
	assert.True(t, m.IndependentSegments)
	require.Len(t, m.Renditions, 1)
	assert.Equal(t, RenditionAudio, m.Renditions[0].Type)
	assert.Equal(t, "aud1", m.Renditions[0].GroupID)
	assert.True(t, m.Renditions[0].Default)

	require.Len(t, m.Variants, 3)
	assert.Equal(t, 5000000, m.Variants[0].Bandwidth)
	assert.Equal(t, 4500000, m.Variants[0].AverageBandwidth)
	require.NotNil(t, m.Variants[0].Resolution)
	assert.Equal(t, 1920, m.Variants[0].Resolution.Width)
	assert.Equal(t, 1080, m.Variants[0].Resolution.Height)
	assert.InDelta(t, 29.97, m.Variants[0].FrameRate, 1e-6)
	assert.Equal(t, "video/1080p.m3u8", m.Variants[0].URI)
	assert.Equal(t, "ec-3", m.Variants[2].Codecs)
}

func TestParse_Master_MissingBandwidth(t *testing.T) {
	input := "#EXTM3U\n#EXT-X-STREAM-INF:CODECS=\"avc1\"\nvideo.m3u8\n"
	_, err := Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BANDWIDTH")
}

func TestParse_Media(t *testing.T) {
	p, err := Parse(strings.NewReader(sampleMedia))
	require.NoError(t, err)
	require.Equal(t, KindMedia, p.Kind)

	m := p.Media
	assert.Equal(t, 7, m.Version)
	assert.Equal(t, 6, m.TargetDuration)
	assert.Equal(t, 100, m.MediaSequence)
	require.Len(t, m.Segments, 3)

	require.NotNil(t, m.Segments[0].Map)
	assert.Equal(t, "init.mp4", m.Segments[0].Map.URI)
	require.NotNil(t, m.Segments[0].ProgramDateTime)

	require.NotNil(t, m.Segments[0].ByteRange)
	assert.Equal(t, int64(1000), m.Segments[0].ByteRange.Length)
	require.NotNil(t, m.Segments[0].ByteRange.Offset)
	assert.Equal(t, int64(500), *m.Segments[0].ByteRange.Offset)

	// segment 1 has explicit offset too, but the init map carries forward
	require.NotNil(t, m.Segments[1].Map)
	assert.Equal(t, "init.mp4", m.Segments[1].Map.URI)

	assert.True(t, m.Segments[2].Discontinuity)
}

func TestParse_Media_ByteRangeElidedOffset(t *testing.T) {
	input := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MAP:URI="init.mp4"
#EXT-X-BYTERANGE:1000@0
#EXTINF:6.0,
seg0.m4s
#EXT-X-BYTERANGE:1000
#EXTINF:6.0,
seg1.m4s
`
	p, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	segs := p.Media.Segments
	require.Len(t, segs, 2)
	require.NotNil(t, segs[1].ByteRange.Offset)
	assert.Equal(t, int64(1000), *segs[1].ByteRange.Offset)
}

func TestParse_Media_EndList(t *testing.T) {
	p, err := Parse(strings.NewReader(sampleMediaEndList))
	require.NoError(t, err)
	assert.True(t, p.Media.EndList)
	assert.Equal(t, PlaylistTypeVOD, p.Media.PlaylistType)
}

func TestParse_MissingEXTM3U(t *testing.T) {
	_, err := Parse(strings.NewReader("#EXT-X-VERSION:1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#EXTM3U")
}

func TestParse_KeyCarriesForwardUntilCleared(t *testing.T) {
	input := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=AES-128,URI="key1"
#EXTINF:6.0,
seg0.m4s
#EXTINF:6.0,
seg1.m4s
#EXT-X-KEY:METHOD=NONE
#EXTINF:6.0,
seg2.m4s
`
	p, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	segs := p.Media.Segments
	require.NotNil(t, segs[0].Key)
	require.NotNil(t, segs[1].Key)
	assert.Equal(t, "key1", segs[1].Key.URI)
	assert.Nil(t, segs[2].Key)
}

func TestParseCompressed_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte(sampleMediaEndList))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	p, err := ParseCompressed(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindMedia, p.Kind)
	assert.True(t, p.Media.EndList)
}

func TestParseCompressed_Bzip2(t *testing.T) {
	var buf bytes.Buffer
	bw, err := bzip2.NewWriter(&buf, nil)
	require.NoError(t, err)
	_, err = bw.Write([]byte(sampleMediaEndList))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	p, err := ParseCompressed(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindMedia, p.Kind)
	assert.True(t, p.Media.EndList)
}

func TestParseCompressed_Plain(t *testing.T) {
	p, err := ParseCompressed(strings.NewReader(sampleMediaEndList))
	require.NoError(t, err)
	assert.True(t, p.Media.EndList)
}

func TestParse_DateRange(t *testing.T) {
	input := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-DATERANGE:ID="ad1",CLASS="com.example.ad",START-DATE="2026-08-06T12:00:00.000Z",DURATION=30.5,X-CUSTOM=42,X-NAME="promo"
#EXTINF:6.0,
seg0.m4s
`
	p, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, p.Media.DateRanges, 1)
	dr := p.Media.DateRanges[0]
	assert.Equal(t, "ad1", dr.ID)
	require.NotNil(t, dr.Duration)
	assert.InDelta(t, 30.5, *dr.Duration, 1e-6)
	assert.Equal(t, float64(42), dr.Client["X-CUSTOM"])
	assert.Equal(t, "promo", dr.Client["X-NAME"])
}
