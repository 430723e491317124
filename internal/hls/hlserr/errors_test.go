package hlserr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ParseError
		expected string
	}{
		{"with line", &ParseError{Line: 12, Message: "missing BANDWIDTH"}, "parse error at line 12: missing BANDWIDTH"},
		{"without line", &ParseError{Message: "empty playlist"}, "parse error: empty playlist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *FetchError
		expected string
	}{
		{
			"with status",
			&FetchError{URL: "https://cdn.example.com/master.m3u8", Status: 404, Message: "not found"},
			"fetch error for https://cdn.example.com/master.m3u8: status 404: not found",
		},
		{
			"without status",
			&FetchError{URL: "https://cdn.example.com/master.m3u8", Message: "connection refused"},
			"fetch error for https://cdn.example.com/master.m3u8: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestLiveEdgeKind_String(t *testing.T) {
	assert.Equal(t, "behind_window", LiveEdgeKindBehindWindow.String())
	assert.Equal(t, "timeout", LiveEdgeKindTimeout.String())
}

func TestErrors_As(t *testing.T) {
	var err error = &LiveEdgeError{Kind: LiveEdgeKindTimeout}

	var liveEdge *LiveEdgeError
	assert.True(t, errors.As(err, &liveEdge))
	assert.Equal(t, LiveEdgeKindTimeout, liveEdge.Kind)

	var parseErr *ParseError
	assert.False(t, errors.As(err, &parseErr))
}

func TestNoVariantError_Error(t *testing.T) {
	err := &NoVariantError{}
	assert.Equal(t, "no variants available in master playlist", err.Error())
}

func TestUnsupportedMediaError_Error(t *testing.T) {
	err := &UnsupportedMediaError{Message: "fMP4 required"}
	assert.Equal(t, "unsupported media: fMP4 required", err.Error())
}
