package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vodlive/hlsingest/internal/hls/resolve"
)

// parseQualitySelection parses the hls.quality_selection config value into
// a resolve.QualitySelection: "highest", "lowest", "auto",
// "bandwidth:<bps>", or "resolution:<w>x<h>".
func parseQualitySelection(s string) (resolve.QualitySelection, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == "highest":
		return resolve.Highest{}, nil
	case s == "lowest":
		return resolve.Lowest{}, nil
	case s == "auto":
		return resolve.Auto{}, nil
	case strings.HasPrefix(s, "bandwidth:"):
		target, err := strconv.Atoi(strings.TrimPrefix(s, "bandwidth:"))
		if err != nil {
			return nil, fmt.Errorf("invalid bandwidth target: %w", err)
		}
		return resolve.ByBandwidth{Target: target}, nil
	case strings.HasPrefix(s, "resolution:"):
		dims := strings.TrimPrefix(s, "resolution:")
		parts := strings.SplitN(dims, "x", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid resolution, want WIDTHxHEIGHT: %q", dims)
		}
		width, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid resolution width: %w", err)
		}
		height, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid resolution height: %w", err)
		}
		return resolve.ByResolution{Width: width, Height: height}, nil
	default:
		return nil, fmt.Errorf("unrecognized quality_selection: %q", s)
	}
}
