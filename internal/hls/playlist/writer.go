package playlist

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Write serializes p as M3U8 text. The output is round-trippable: parsing
// the result reproduces an equivalent Playlist modulo normalized duration
// formatting and collapsed duplicate EXT-X-KEY/EXT-X-MAP tags.
func Write(w io.Writer, p *Playlist) error {
	switch p.Kind {
	case KindMaster:
		return writeMaster(w, p.Master)
	case KindMedia:
		return writeMedia(w, p.Media)
	default:
		return fmt.Errorf("playlist: unknown kind %d", p.Kind)
	}
}

func writeMaster(w io.Writer, m *MasterPlaylist) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	if m.Version != 1 {
		fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", m.Version)
	}
	if m.IndependentSegments {
		b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	}

	for _, sd := range m.SessionData {
		b.WriteString("#EXT-X-SESSION-DATA:")
		writeAttr(&b, "DATA-ID", sd.DataID, true, true)
		if sd.Value != "" {
			writeAttr(&b, "VALUE", sd.Value, true, false)
		}
		if sd.URI != "" {
			writeAttr(&b, "URI", sd.URI, true, false)
		}
		if sd.Language != "" {
			writeAttr(&b, "LANGUAGE", sd.Language, true, false)
		}
		b.WriteString("\n")
	}

	if m.SessionKey != nil {
		b.WriteString("#EXT-X-SESSION-KEY:")
		writeKeyAttrs(&b, m.SessionKey)
		b.WriteString("\n")
	}

	for _, r := range m.Renditions {
		b.WriteString("#EXT-X-MEDIA:")
		writeAttr(&b, "TYPE", r.Type.String(), false, true)
		writeAttr(&b, "GROUP-ID", r.GroupID, true, false)
		writeAttr(&b, "NAME", r.Name, true, false)
		if r.URI != "" {
			writeAttr(&b, "URI", r.URI, true, false)
		}
		if r.Language != "" {
			writeAttr(&b, "LANGUAGE", r.Language, true, false)
		}
		if r.AssocLanguage != "" {
			writeAttr(&b, "ASSOC-LANGUAGE", r.AssocLanguage, true, false)
		}
		writeBoolAttr(&b, "DEFAULT", r.Default)
		writeBoolAttr(&b, "AUTOSELECT", r.Autoselect)
		writeBoolAttr(&b, "FORCED", r.Forced)
		if r.InstreamID != "" {
			writeAttr(&b, "INSTREAM-ID", r.InstreamID, true, false)
		}
		if r.Characteristics != "" {
			writeAttr(&b, "CHARACTERISTICS", r.Characteristics, true, false)
		}
		if r.Channels != "" {
			writeAttr(&b, "CHANNELS", r.Channels, true, false)
		}
		b.WriteString("\n")
	}

	for _, v := range m.Variants {
		b.WriteString("#EXT-X-STREAM-INF:")
		writeAttr(&b, "BANDWIDTH", strconv.Itoa(v.Bandwidth), false, true)
		if v.AverageBandwidth > 0 {
			writeAttr(&b, "AVERAGE-BANDWIDTH", strconv.Itoa(v.AverageBandwidth), false, false)
		}
		if v.Codecs != "" {
			writeAttr(&b, "CODECS", v.Codecs, true, false)
		}
		if v.Resolution != nil {
			writeAttr(&b, "RESOLUTION", fmt.Sprintf("%dx%d", v.Resolution.Width, v.Resolution.Height), false, false)
		}
		if v.FrameRate > 0 {
			writeAttr(&b, "FRAME-RATE", trimFloat(v.FrameRate, 3), false, false)
		}
		if v.Audio != "" {
			writeAttr(&b, "AUDIO", v.Audio, true, false)
		}
		if v.Video != "" {
			writeAttr(&b, "VIDEO", v.Video, true, false)
		}
		if v.Subtitles != "" {
			writeAttr(&b, "SUBTITLES", v.Subtitles, true, false)
		}
		if v.ClosedCaptions != "" {
			writeAttr(&b, "CLOSED-CAPTIONS", v.ClosedCaptions, true, false)
		}
		if v.HDCPLevel != "" {
			writeAttr(&b, "HDCP-LEVEL", v.HDCPLevel, false, false)
		}
		b.WriteString("\n")
		b.WriteString(v.URI)
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeMedia(w io.Writer, m *MediaPlaylist) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	if m.Version != 1 {
		fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", m.Version)
	}
	if m.IndependentSegments {
		b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	}
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", m.TargetDuration)
	if m.MediaSequence != 0 {
		fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", m.MediaSequence)
	}
	if m.DiscontinuitySequence != 0 {
		fmt.Fprintf(&b, "#EXT-X-DISCONTINUITY-SEQUENCE:%d\n", m.DiscontinuitySequence)
	}
	if m.PlaylistType != PlaylistTypeUnset {
		fmt.Fprintf(&b, "#EXT-X-PLAYLIST-TYPE:%s\n", m.PlaylistType)
	}
	if m.IFramesOnly {
		b.WriteString("#EXT-X-I-FRAMES-ONLY\n")
	}
	if m.Start != nil {
		b.WriteString("#EXT-X-START:")
		writeAttr(&b, "TIME-OFFSET", trimFloat(m.Start.TimeOffset, 3), false, true)
		writeBoolAttr(&b, "PRECISE", m.Start.Precise)
		b.WriteString("\n")
	}

	for _, dr := range m.DateRanges {
		writeDateRange(&b, dr)
	}

	var lastKey *Key
	var lastMap *Map
	keyCleared := false

	for _, s := range m.Segments {
		if s.Discontinuity {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		if s.ProgramDateTime != nil {
			fmt.Fprintf(&b, "#EXT-X-PROGRAM-DATE-TIME:%s\n", s.ProgramDateTime.Format("2006-01-02T15:04:05.000Z07:00"))
		}

		if !keysEqual(lastKey, s.Key) {
			if s.Key == nil {
				b.WriteString("#EXT-X-KEY:METHOD=NONE\n")
			} else {
				b.WriteString("#EXT-X-KEY:")
				writeKeyAttrs(&b, s.Key)
				b.WriteString("\n")
			}
			lastKey = s.Key
			keyCleared = s.Key == nil
		}
		_ = keyCleared

		if !mapsEqual(lastMap, s.Map) && s.Map != nil {
			b.WriteString("#EXT-X-MAP:")
			writeAttr(&b, "URI", s.Map.URI, true, true)
			if s.Map.ByteRange != nil {
				writeAttr(&b, "BYTERANGE", formatByteRange(s.Map.ByteRange), true, false)
			}
			b.WriteString("\n")
			lastMap = s.Map
		}

		if s.Gap {
			b.WriteString("#EXT-X-GAP\n")
		}
		if s.Bitrate > 0 {
			fmt.Fprintf(&b, "#EXT-X-BITRATE:%d\n", s.Bitrate/1000)
		}
		if s.ByteRange != nil {
			fmt.Fprintf(&b, "#EXT-X-BYTERANGE:%s\n", formatByteRange(s.ByteRange))
		}

		fmt.Fprintf(&b, "#EXTINF:%s", trimFloat(s.Duration, 3))
		if s.Title != "" {
			fmt.Fprintf(&b, ",%s", s.Title)
		} else {
			b.WriteString(",")
		}
		b.WriteString("\n")
		b.WriteString(s.URI)
		b.WriteString("\n")
	}

	if m.EndList {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeDateRange(b *strings.Builder, dr DateRange) {
	b.WriteString("#EXT-X-DATERANGE:")
	writeAttr(b, "ID", dr.ID, true, true)
	if dr.Class != "" {
		writeAttr(b, "CLASS", dr.Class, true, false)
	}
	writeAttr(b, "START-DATE", dr.StartDate.Format("2006-01-02T15:04:05.000Z07:00"), true, false)
	if dr.EndDate != nil {
		writeAttr(b, "END-DATE", dr.EndDate.Format("2006-01-02T15:04:05.000Z07:00"), true, false)
	}
	if dr.Duration != nil {
		writeAttr(b, "DURATION", trimFloat(*dr.Duration, 3), false, false)
	}
	if dr.PlannedDuration != nil {
		writeAttr(b, "PLANNED-DURATION", trimFloat(*dr.PlannedDuration, 3), false, false)
	}
	writeBoolAttr(b, "END-ON-NEXT", dr.EndOnNext)
	for k, v := range dr.Client {
		switch val := v.(type) {
		case float64:
			writeAttr(b, k, trimFloat(val, 6), false, false)
		default:
			writeAttr(b, k, fmt.Sprintf("%v", val), true, false)
		}
	}
	b.WriteString("\n")
}

func writeKeyAttrs(b *strings.Builder, k *Key) {
	writeAttr(b, "METHOD", string(k.Method), false, true)
	if k.URI != "" {
		writeAttr(b, "URI", k.URI, true, false)
	}
	if k.IV != "" {
		writeAttr(b, "IV", k.IV, true, false)
	}
	if k.Keyformat != "" {
		writeAttr(b, "KEYFORMAT", k.Keyformat, true, false)
	}
	if k.Keyformatversions != "" {
		writeAttr(b, "KEYFORMATVERSIONS", k.Keyformatversions, true, false)
	}
}

// writeAttr appends KEY=VALUE (optionally quoted) to b, prefixing a comma
// unless first is true.
func writeAttr(b *strings.Builder, key, value string, quoted, first bool) {
	if !first {
		b.WriteString(",")
	}
	if quoted {
		fmt.Fprintf(b, "%s=%q", key, value)
	} else {
		fmt.Fprintf(b, "%s=%s", key, value)
	}
}

func writeBoolAttr(b *strings.Builder, key string, value bool) {
	if value {
		writeAttr(b, key, "YES", false, false)
	}
}

func formatByteRange(br *ByteRange) string {
	if br.Offset != nil {
		return fmt.Sprintf("%d@%d", br.Length, *br.Offset)
	}
	return strconv.FormatInt(br.Length, 10)
}

// trimFloat formats f with up to prec decimals, trailing zeros trimmed.
func trimFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

func keysEqual(a, b *Key) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func mapsEqual(a, b *Map) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.URI != b.URI {
		return false
	}
	return byteRangesEqual(a.ByteRange, b.ByteRange)
}

func byteRangesEqual(a, b *ByteRange) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Length != b.Length {
		return false
	}
	if (a.Offset == nil) != (b.Offset == nil) {
		return false
	}
	return a.Offset == nil || *a.Offset == *b.Offset
}
