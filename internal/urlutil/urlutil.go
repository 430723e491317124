// Package urlutil provides URL manipulation utilities.
package urlutil

import (
	"fmt"
	"net/url"
)

// ResolveURL resolves ref against base per RFC 3986 relative reference
// resolution. ref may itself be absolute, in which case base is ignored.
func ResolveURL(ref, base string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference URL: %w", err)
	}

	return baseURL.ResolveReference(refURL).String(), nil
}

// ByteRange describes an inclusive byte range request, mirroring the
// playlist model's EXT-X-BYTERANGE representation.
type ByteRange struct {
	Length int64
	Offset int64
}

// RangeHeader formats an HTTP Range header value for br: "bytes=START-END"
// with START = br.Offset and END = START + br.Length - 1, inclusive.
func RangeHeader(br ByteRange) string {
	start := br.Offset
	end := start + br.Length - 1
	return fmt.Sprintf("bytes=%d-%d", start, end)
}
