package cmd

import (
	"log/slog"
	"time"

	"github.com/vodlive/hlsingest/internal/config"
	"github.com/vodlive/hlsingest/internal/hls/resolve"
	"github.com/vodlive/hlsingest/internal/hls/source"
	"github.com/vodlive/hlsingest/internal/hlsinput"
)

// buildInput constructs an Input wired to real HTTP fetchers from cfg. No
// Demuxer is attached: the CLI drives the facade at the byte-stream level
// only (probe/serve), leaving demuxing to an embedding application.
func buildInput(manifestURL string, cfg *config.HLSConfig, logger *slog.Logger) (*hlsinput.Input, error) {
	quality, err := parseQualitySelection(cfg.QualitySelection)
	if err != nil {
		return nil, err
	}

	retryDelay := cfg.RetryDelay
	maxAttempts := cfg.RetryAttempts
	retry := func(attempt int, _ error, _ string) (time.Duration, bool) {
		if attempt >= maxAttempts {
			return 0, false
		}
		return retryDelay, true
	}

	sourceCfg := source.DefaultConfig()
	sourceCfg.RefreshTimeout = cfg.FetchTimeout
	sourceCfg.SegmentFetchTimeout = cfg.FetchTimeout
	sourceCfg.InitFetchTimeout = cfg.FetchTimeout
	sourceCfg.PrefetchLimit = cfg.PrefetchLimit
	sourceCfg.BufferBehindSegments = cfg.BufferBehindSegments
	sourceCfg.LiveEdgePollInterval = cfg.LiveEdgePollPeriod

	in := hlsinput.New(manifestURL, resolve.Policy{Quality: quality, Retry: retry}, hlsinput.Deps{
		ManifestFetcher: resolve.NewHTTPFetcher(cfg.ManifestTimeout),
		SegmentFetcher:  source.NewHTTPFetcher("segment"),
		InitFetcher:     source.NewHTTPFetcher("init-segment"),
		SourceConfig:    &sourceCfg,
		Logger:          logger,
	})
	return in, nil
}
