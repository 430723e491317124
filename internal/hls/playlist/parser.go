package playlist

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"golang.org/x/text/language"

	"github.com/vodlive/hlsingest/internal/hls/hlserr"
)

const maxLineSize = 1024 * 1024 // 1MB, some CDNs emit very long signed URLs

// rawLine is one non-empty, trimmed line paired with its 1-based line number.
type rawLine struct {
	num  int
	text string
}

// Parse parses an M3U8 playlist, dispatching to a master or media playlist
// based on the presence of EXT-X-STREAM-INF, EXT-X-MEDIA, or
// EXT-X-I-FRAME-STREAM-INF anywhere in the document.
func Parse(r io.Reader) (*Playlist, error) {
	lines, err := scanLines(r)
	if err != nil {
		return nil, err
	}

	if len(lines) == 0 || lines[0].text != "#EXTM3U" {
		line := 0
		if len(lines) > 0 {
			line = lines[0].num
		}
		return nil, &hlserr.ParseError{Line: line, Message: "playlist must begin with #EXTM3U"}
	}

	isMaster := false
	for _, l := range lines[1:] {
		tag := tagName(l.text)
		if tag == "#EXT-X-STREAM-INF" || tag == "#EXT-X-MEDIA" || tag == "#EXT-X-I-FRAME-STREAM-INF" {
			isMaster = true
			break
		}
	}

	if isMaster {
		m, err := parseMasterPlaylist(lines[1:])
		if err != nil {
			return nil, err
		}
		return &Playlist{Kind: KindMaster, Master: m}, nil
	}

	m, err := parseMediaPlaylist(lines[1:])
	if err != nil {
		return nil, err
	}
	return &Playlist{Kind: KindMedia, Media: m}, nil
}

// ParseCompressed parses a potentially compressed M3U8 playlist, auto
// detecting gzip, bzip2, or xz compression from magic bytes. Many HLS CDNs
// gzip-serve playlists behind a compressing proxy.
func ParseCompressed(r io.Reader) (*Playlist, error) {
	br := bufio.NewReader(r)

	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peeking header: %w", err)
	}

	var reader io.Reader = br

	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()
		reader = gzr

	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		reader = bzip2.NewReader(br)

	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' && header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		reader = xzr
	}

	return Parse(reader)
}

func scanLines(r io.Reader) ([]rawLine, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, maxLineSize)
	scanner.Buffer(buf, maxLineSize)

	var lines []rawLine
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		lines = append(lines, rawLine{num: n, text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning playlist: %w", err)
	}
	return lines, nil
}

// tagName returns the tag portion of a line up to the first ':', or the
// whole line for tags without attributes (e.g. #EXT-X-ENDLIST).
func tagName(line string) string {
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// tagValue returns the portion of a line after the first ':', or "" if the
// tag carries no value.
func tagValue(line string) string {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return ""
	}
	return line[idx+1:]
}

// parseAttributeList parses a comma-separated KEY=VALUE attribute list where
// a value is either a double-quoted string or an unquoted run terminated by
// a comma outside quotes. Keys are returned verbatim (case-sensitive).
func parseAttributeList(s string) map[string]string {
	attrs := make(map[string]string)
	i := 0
	n := len(s)

	for i < n {
		// skip leading whitespace/commas
		for i < n && (s[i] == ' ' || s[i] == ',') {
			i++
		}
		if i >= n {
			break
		}

		keyStart := i
		for i < n && s[i] != '=' {
			i++
		}
		if i >= n {
			break
		}
		key := strings.TrimSpace(s[keyStart:i])
		i++ // skip '='

		if i < n && s[i] == '"' {
			i++
			valStart := i
			for i < n && s[i] != '"' {
				i++
			}
			attrs[key] = s[valStart:i]
			if i < n {
				i++ // skip closing quote
			}
		} else {
			valStart := i
			for i < n && s[i] != ',' {
				i++
			}
			attrs[key] = strings.TrimSpace(s[valStart:i])
		}
	}

	return attrs
}

func parseByteRange(s string) (*ByteRange, error) {
	parts := strings.SplitN(s, "@", 2)
	length, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid byte-range length %q: %w", parts[0], err)
	}
	br := &ByteRange{Length: length}
	if len(parts) == 2 {
		offset, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid byte-range offset %q: %w", parts[1], err)
		}
		br.Offset = &offset
	}
	return br, nil
}

func parseProgramDateTime(s string) (*time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("invalid EXT-X-PROGRAM-DATE-TIME %q: %w", s, err)
		}
	}
	return &t, nil
}

func validateLanguageTag(tag string) {
	if tag == "" {
		return
	}
	if _, err := language.Parse(tag); err != nil {
		slog.Default().Warn("invalid BCP-47 language tag in rendition", slog.String("tag", tag), slog.String("error", err.Error()))
	}
}

func parseMasterPlaylist(lines []rawLine) (*MasterPlaylist, error) {
	m := &MasterPlaylist{Version: 1}

	var pendingVariant *Variant

	for _, l := range lines {
		tag := tagName(l.text)
		value := tagValue(l.text)

		switch tag {
		case "#EXT-X-VERSION":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid EXT-X-VERSION: " + value}
			}
			m.Version = v

		case "#EXT-X-INDEPENDENT-SEGMENTS":
			m.IndependentSegments = true

		case "#EXT-X-STREAM-INF":
			attrs := parseAttributeList(value)
			bandwidthStr, ok := attrs["BANDWIDTH"]
			if !ok {
				return nil, &hlserr.ParseError{Line: l.num, Message: "EXT-X-STREAM-INF missing required BANDWIDTH"}
			}
			bandwidth, err := strconv.Atoi(bandwidthStr)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid BANDWIDTH: " + bandwidthStr}
			}

			variant := Variant{
				Bandwidth: bandwidth,
				Codecs:    attrs["CODECS"],
				Audio:     attrs["AUDIO"],
				Video:     attrs["VIDEO"],
				Subtitles: attrs["SUBTITLES"],
				ClosedCaptions: attrs["CLOSED-CAPTIONS"],
				HDCPLevel: attrs["HDCP-LEVEL"],
			}
			if avg, ok := attrs["AVERAGE-BANDWIDTH"]; ok {
				if n, err := strconv.Atoi(avg); err == nil {
					variant.AverageBandwidth = n
				}
			}
			if fr, ok := attrs["FRAME-RATE"]; ok {
				if f, err := strconv.ParseFloat(fr, 64); err == nil {
					variant.FrameRate = f
				}
			}
			if res, ok := attrs["RESOLUTION"]; ok {
				if w, h, err := parseResolution(res); err == nil {
					variant.Resolution = &Resolution{Width: w, Height: h}
				}
			}
			pendingVariant = &variant

		case "#EXT-X-MEDIA":
			attrs := parseAttributeList(value)
			typeStr, ok := attrs["TYPE"]
			if !ok {
				return nil, &hlserr.ParseError{Line: l.num, Message: "EXT-X-MEDIA missing required TYPE"}
			}
			groupID, ok := attrs["GROUP-ID"]
			if !ok {
				return nil, &hlserr.ParseError{Line: l.num, Message: "EXT-X-MEDIA missing required GROUP-ID"}
			}
			name, ok := attrs["NAME"]
			if !ok {
				return nil, &hlserr.ParseError{Line: l.num, Message: "EXT-X-MEDIA missing required NAME"}
			}

			rendType, err := parseRenditionType(typeStr)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: err.Error()}
			}

			rendition := MediaRendition{
				Type:            rendType,
				GroupID:         groupID,
				Name:            name,
				URI:             attrs["URI"],
				Language:        attrs["LANGUAGE"],
				AssocLanguage:   attrs["ASSOC-LANGUAGE"],
				Default:         attrs["DEFAULT"] == "YES",
				Autoselect:      attrs["AUTOSELECT"] == "YES",
				Forced:          attrs["FORCED"] == "YES",
				InstreamID:      attrs["INSTREAM-ID"],
				Characteristics: attrs["CHARACTERISTICS"],
				Channels:        attrs["CHANNELS"],
			}
			validateLanguageTag(rendition.Language)
			validateLanguageTag(rendition.AssocLanguage)
			m.Renditions = append(m.Renditions, rendition)

		case "#EXT-X-SESSION-DATA":
			attrs := parseAttributeList(value)
			m.SessionData = append(m.SessionData, SessionData{
				DataID:   attrs["DATA-ID"],
				Value:    attrs["VALUE"],
				URI:      attrs["URI"],
				Language: attrs["LANGUAGE"],
			})

		case "#EXT-X-SESSION-KEY":
			attrs := parseAttributeList(value)
			method, ok := attrs["METHOD"]
			if !ok {
				return nil, &hlserr.ParseError{Line: l.num, Message: "EXT-X-SESSION-KEY missing required METHOD"}
			}
			m.SessionKey = &Key{
				Method:            KeyMethod(method),
				URI:               attrs["URI"],
				IV:                attrs["IV"],
				Keyformat:         attrs["KEYFORMAT"],
				Keyformatversions: attrs["KEYFORMATVERSIONS"],
			}

		case "#EXT-X-I-FRAME-STREAM-INF":
			// I-frame-only variants are recognized for master/media
			// dispatch but not modeled as playable variants here; the
			// player never selects an I-frame stream directly.
			continue

		default:
			if pendingVariant != nil && !strings.HasPrefix(l.text, "#") {
				pendingVariant.URI = l.text
				m.Variants = append(m.Variants, *pendingVariant)
				pendingVariant = nil
			}
			// otherwise: ignored unknown tag/comment
		}
	}

	return m, nil
}

func parseMediaPlaylist(lines []rawLine) (*MediaPlaylist, error) {
	m := &MediaPlaylist{Version: 1}

	var (
		currentKey      *Key
		currentMap      *Map
		pendingDuration float64
		pendingTitle    string
		havePending     bool
		pendingByteRange *ByteRange
		pendingDiscontinuity bool
		pendingPDT      *time.Time
		pendingGap      bool
		pendingBitrate  int
		byteRangeCursor int64
	)

	for _, l := range lines {
		tag := tagName(l.text)
		value := tagValue(l.text)

		switch tag {
		case "#EXT-X-VERSION":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid EXT-X-VERSION: " + value}
			}
			m.Version = v

		case "#EXT-X-INDEPENDENT-SEGMENTS":
			m.IndependentSegments = true

		case "#EXT-X-TARGETDURATION":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid EXT-X-TARGETDURATION: " + value}
			}
			m.TargetDuration = v

		case "#EXT-X-MEDIA-SEQUENCE":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid EXT-X-MEDIA-SEQUENCE: " + value}
			}
			m.MediaSequence = v

		case "#EXT-X-DISCONTINUITY-SEQUENCE":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid EXT-X-DISCONTINUITY-SEQUENCE: " + value}
			}
			m.DiscontinuitySequence = v

		case "#EXT-X-PLAYLIST-TYPE":
			switch value {
			case "VOD":
				m.PlaylistType = PlaylistTypeVOD
			case "EVENT":
				m.PlaylistType = PlaylistTypeEvent
			default:
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid EXT-X-PLAYLIST-TYPE: " + value}
			}

		case "#EXT-X-I-FRAMES-ONLY":
			m.IFramesOnly = true

		case "#EXT-X-ENDLIST":
			m.EndList = true

		case "#EXT-X-START":
			attrs := parseAttributeList(value)
			offset, err := strconv.ParseFloat(attrs["TIME-OFFSET"], 64)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid EXT-X-START TIME-OFFSET: " + attrs["TIME-OFFSET"]}
			}
			m.Start = &StartPoint{TimeOffset: offset, Precise: attrs["PRECISE"] == "YES"}

		case "#EXTINF":
			parts := strings.SplitN(value, ",", 2)
			dur, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid EXTINF duration: " + parts[0]}
			}
			pendingDuration = dur
			if len(parts) == 2 {
				pendingTitle = parts[1]
			} else {
				pendingTitle = ""
			}
			havePending = true

		case "#EXT-X-BYTERANGE":
			br, err := parseByteRange(value)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: err.Error()}
			}
			if br.Offset == nil {
				off := byteRangeCursor
				br.Offset = &off
			}
			byteRangeCursor = *br.Offset + br.Length
			pendingByteRange = br

		case "#EXT-X-DISCONTINUITY":
			pendingDiscontinuity = true

		case "#EXT-X-PROGRAM-DATE-TIME":
			pdt, err := parseProgramDateTime(value)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: err.Error()}
			}
			pendingPDT = pdt

		case "#EXT-X-KEY":
			attrs := parseAttributeList(value)
			method, ok := attrs["METHOD"]
			if !ok {
				return nil, &hlserr.ParseError{Line: l.num, Message: "EXT-X-KEY missing required METHOD"}
			}
			if KeyMethod(method) == KeyMethodNone {
				currentKey = nil
			} else {
				currentKey = &Key{
					Method:            KeyMethod(method),
					URI:               attrs["URI"],
					IV:                attrs["IV"],
					Keyformat:         attrs["KEYFORMAT"],
					Keyformatversions: attrs["KEYFORMATVERSIONS"],
				}
			}

		case "#EXT-X-MAP":
			attrs := parseAttributeList(value)
			uri, ok := attrs["URI"]
			if !ok {
				return nil, &hlserr.ParseError{Line: l.num, Message: "EXT-X-MAP missing required URI"}
			}
			mp := &Map{URI: uri}
			if brStr, ok := attrs["BYTERANGE"]; ok {
				br, err := parseByteRange(brStr)
				if err != nil {
					return nil, &hlserr.ParseError{Line: l.num, Message: err.Error()}
				}
				mp.ByteRange = br
			}
			currentMap = mp

		case "#EXT-X-GAP":
			pendingGap = true

		case "#EXT-X-BITRATE":
			kbps, err := strconv.Atoi(value)
			if err != nil {
				return nil, &hlserr.ParseError{Line: l.num, Message: "invalid EXT-X-BITRATE: " + value}
			}
			pendingBitrate = kbps * 1000

		case "#EXT-X-DATERANGE":
			dr, err := parseDateRange(value, l.num)
			if err != nil {
				return nil, err
			}
			m.DateRanges = append(m.DateRanges, *dr)

		default:
			if !strings.HasPrefix(l.text, "#") {
				seg := Segment{
					Duration:        pendingDuration,
					Title:           pendingTitle,
					URI:             l.text,
					ByteRange:       pendingByteRange,
					Discontinuity:   pendingDiscontinuity,
					ProgramDateTime: pendingPDT,
					Key:             currentKey,
					Map:             currentMap,
					Gap:             pendingGap,
					Bitrate:         pendingBitrate,
				}
				m.Segments = append(m.Segments, seg)

				havePending = false
				pendingDuration = 0
				pendingTitle = ""
				pendingByteRange = nil
				pendingDiscontinuity = false
				pendingPDT = nil
				pendingGap = false
				pendingBitrate = 0
			}
			// unknown tags are ignored
		}
	}

	_ = havePending // last EXTINF without a following URI is simply dropped

	return m, nil
}

func parseResolution(s string) (int, int, error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid RESOLUTION: %s", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid RESOLUTION width: %s", parts[0])
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid RESOLUTION height: %s", parts[1])
	}
	return w, h, nil
}

func parseRenditionType(s string) (RenditionType, error) {
	switch s {
	case "AUDIO":
		return RenditionAudio, nil
	case "VIDEO":
		return RenditionVideo, nil
	case "SUBTITLES":
		return RenditionSubtitles, nil
	case "CLOSED-CAPTIONS":
		return RenditionClosedCaptions, nil
	default:
		return 0, fmt.Errorf("invalid EXT-X-MEDIA TYPE: %s", s)
	}
}

func parseDateRange(value string, lineNum int) (*DateRange, error) {
	attrs := parseAttributeList(value)

	id, ok := attrs["ID"]
	if !ok {
		return nil, &hlserr.ParseError{Line: lineNum, Message: "EXT-X-DATERANGE missing required ID"}
	}
	startStr, ok := attrs["START-DATE"]
	if !ok {
		return nil, &hlserr.ParseError{Line: lineNum, Message: "EXT-X-DATERANGE missing required START-DATE"}
	}
	start, err := parseProgramDateTime(startStr)
	if err != nil {
		return nil, &hlserr.ParseError{Line: lineNum, Message: err.Error()}
	}

	dr := &DateRange{
		ID:        id,
		Class:     attrs["CLASS"],
		StartDate: *start,
		EndOnNext: attrs["END-ON-NEXT"] == "YES",
		Client:    make(map[string]any),
	}

	if endStr, ok := attrs["END-DATE"]; ok {
		end, err := parseProgramDateTime(endStr)
		if err != nil {
			return nil, &hlserr.ParseError{Line: lineNum, Message: err.Error()}
		}
		dr.EndDate = end
	}
	if durStr, ok := attrs["DURATION"]; ok {
		if d, err := strconv.ParseFloat(durStr, 64); err == nil {
			dr.Duration = &d
		}
	}
	if durStr, ok := attrs["PLANNED-DURATION"]; ok {
		if d, err := strconv.ParseFloat(durStr, 64); err == nil {
			dr.PlannedDuration = &d
		}
	}

	for key, val := range attrs {
		if !strings.HasPrefix(key, "X-") {
			continue
		}
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			dr.Client[key] = n
		} else {
			dr.Client[key] = val
		}
	}

	return dr, nil
}
