package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size value that supports human-readable parsing, used for
// the HLS sliding-window segment cache's capacity (hls.segment_cache_size).
// It extends standard integer sizes with binary units like KB, MB, GB -
// terabyte-scale units aren't supported since a per-session segment cache
// never grows anywhere near that large.
//
// Examples:
//   - "64MB" = 64 * 1024 * 1024 bytes
//   - "1.5GB" = 1.5 * 1024^3 bytes
//   - "67108864" = 67108864 bytes (raw number still works)
//
// This type implements encoding.TextUnmarshaler for Viper/YAML support
// and json.Unmarshaler for JSON configuration files.
type ByteSize int64

// Binary byte-size constants used by ParseByteSize and String.
const (
	byteSizeB  ByteSize = 1
	byteSizeKB          = 1024 * byteSizeB
	byteSizeMB          = 1024 * byteSizeKB
	byteSizeGB          = 1024 * byteSizeMB
)

var byteSizeUnits = map[string]ByteSize{
	"b": byteSizeB, "byte": byteSizeB, "bytes": byteSizeB,
	"k": byteSizeKB, "kb": byteSizeKB, "kib": byteSizeKB,
	"m": byteSizeMB, "mb": byteSizeMB, "mib": byteSizeMB,
	"g": byteSizeGB, "gb": byteSizeGB, "gib": byteSizeGB,
}

var byteSizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// ParseByteSize parses a human-readable byte size string for the segment
// cache config field. If no unit is given, bytes are assumed.
func ParseByteSize(s string) (ByteSize, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	matches := byteSizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", matches[1], err)
	}

	multiplier := byteSizeB
	if unit := strings.ToLower(matches[2]); unit != "" {
		m, ok := byteSizeUnits[unit]
		if !ok {
			return 0, fmt.Errorf("bytesize: unknown unit %q", unit)
		}
		multiplier = m
	}

	return ByteSize(value * float64(multiplier)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as a number (bytes) for backwards compatibility
		var bytes int64
		if err := json.Unmarshal(data, &bytes); err != nil {
			return err
		}
		*b = ByteSize(bytes)
		return nil
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the size in bytes as int64.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// Int64 returns the size as int64 (alias for Bytes).
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// String returns a human-readable string representation, using the largest
// unit that keeps the value >= 1.
func (b ByteSize) String() string {
	if b == 0 {
		return "0B"
	}

	negative := b < 0
	if negative {
		b = -b
	}

	var result string
	switch {
	case b >= byteSizeGB:
		result = formatByteSizeFloat(float64(b)/float64(byteSizeGB), "GB")
	case b >= byteSizeMB:
		result = formatByteSizeFloat(float64(b)/float64(byteSizeMB), "MB")
	case b >= byteSizeKB:
		result = formatByteSizeFloat(float64(b)/float64(byteSizeKB), "KB")
	default:
		result = fmt.Sprintf("%dB", b)
	}

	if negative {
		return "-" + result
	}
	return result
}

func formatByteSizeFloat(value float64, unit string) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d%s", int64(value), unit)
	}
	formatted := strings.TrimRight(fmt.Sprintf("%.2f", value), "0")
	formatted = strings.TrimRight(formatted, ".")
	return formatted + unit
}
