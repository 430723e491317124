// Package hlsinput composes the manifest resolver, segment source, and
// fragment lookup bridge into the single facade a player-side consumer
// drives: list/select variants, read tracks, and read the virtual byte
// stream through a demuxer.
package hlsinput

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vodlive/hlsingest/internal/hls/fragment"
	"github.com/vodlive/hlsingest/internal/hls/playlist"
	"github.com/vodlive/hlsingest/internal/hls/resolve"
	"github.com/vodlive/hlsingest/internal/hls/source"
	"github.com/vodlive/hlsingest/internal/observability"
	"github.com/vodlive/hlsingest/internal/urlutil"
)

// Input is the HLS input facade: one manifest resolution, one active
// segment source, and (optionally) one bound demuxer.
type Input struct {
	manifestURL string
	policy      resolve.Policy

	resolver        *resolve.Resolver
	playlistFetcher source.PlaylistFetcher
	segmentFetcher  source.Fetcher
	initFetcher     source.Fetcher
	sourceConfig    *source.Config
	demuxerFactory  func() Demuxer

	logger    *slog.Logger
	sessionID string

	initOnce sync.Once
	initErr  error

	mu       sync.Mutex
	resolved *resolve.ResolvedStream
	src      *source.Source
	bridge   *fragment.Bridge
	demuxer  Demuxer

	live liveEdgeState
	ids  asyncIDs
}

// Deps bundles Input's collaborators. ManifestFetcher doubles as the
// refresh loop's playlist fetcher, matching resolve.Fetcher's shape.
type Deps struct {
	ManifestFetcher resolve.Fetcher
	SegmentFetcher  source.Fetcher
	InitFetcher     source.Fetcher
	DemuxerFactory  func() Demuxer // nil disables demuxer wiring entirely
	SourceConfig    *source.Config
	Logger          *slog.Logger
}

// New constructs an Input for manifestURL. Resolution and source
// construction are deferred until the first call that needs them
// (ListVariants, SelectVariant, ComputeDuration, ...).
func New(manifestURL string, policy resolve.Policy, deps Deps) *Input {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "hlsinput")
	return &Input{
		manifestURL:     manifestURL,
		policy:          policy,
		resolver:        resolve.New(deps.ManifestFetcher, logger),
		playlistFetcher: manifestFetcherAdapter{deps.ManifestFetcher},
		segmentFetcher:  deps.SegmentFetcher,
		initFetcher:     deps.InitFetcher,
		sourceConfig:    deps.SourceConfig,
		demuxerFactory:  deps.DemuxerFactory,
		logger:          logger,
		sessionID:       ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
	}
}

// manifestFetcherAdapter lets a resolve.Fetcher satisfy source.PlaylistFetcher
// (identical method shape, different package).
type manifestFetcherAdapter struct{ resolve.Fetcher }

// SessionID identifies this Input instance across log lines.
func (in *Input) SessionID() string {
	return in.sessionID
}

// ensureInit performs the single memoized resolve + source construction.
// Concurrent callers share one underlying fetch.
func (in *Input) ensureInit(ctx context.Context) error {
	in.initOnce.Do(func() {
		in.initErr = in.doInit(ctx)
	})
	return in.initErr
}

func (in *Input) doInit(ctx context.Context) error {
	resolved, err := in.resolver.Resolve(ctx, in.manifestURL, in.policy)
	if err != nil {
		return fmt.Errorf("hlsinput: resolving manifest: %w", err)
	}

	src, bridge, demuxer, err := in.buildPipeline(ctx, resolved)
	if err != nil {
		return err
	}

	in.mu.Lock()
	in.resolved = resolved
	in.src = src
	in.bridge = bridge
	in.demuxer = demuxer
	in.mu.Unlock()
	return nil
}

// buildPipeline constructs the segment source, fragment bridge, and (if
// configured) demuxer for an already-resolved stream, wiring the bridge's
// notifiers to the demuxer and arming live refresh. Shared by doInit and
// SelectVariant so switching variants goes through the exact same
// construction path as the initial resolve.
func (in *Input) buildPipeline(ctx context.Context, resolved *resolve.ResolvedStream) (*source.Source, *fragment.Bridge, Demuxer, error) {
	src, err := source.New(ctx, resolved.BaseURL, resolved.BaseURL, resolved.MediaPlaylist,
		in.playlistFetcher, in.segmentFetcher, in.initFetcher, in.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("hlsinput: constructing source: %w", err)
	}
	if in.sourceConfig != nil {
		src = src.WithConfig(*in.sourceConfig)
	}

	var demuxer Demuxer
	if in.demuxerFactory != nil {
		demuxer = in.demuxerFactory()
	}

	bridge := fragment.New(fragment.Notifiers{
		PopulateFromSegments: func(entries []fragment.FragmentEntry) {
			if demuxer != nil {
				demuxer.PopulateFragmentLookupTable(entries)
			}
		},
		AppendFragments: func(entries []fragment.FragmentEntry, startTime float64) {
			if demuxer != nil {
				demuxer.AppendFragmentsToLookupTable(entries, startTime)
			}
		},
		RemoveFragments: func(sequences []int) {
			if demuxer != nil {
				demuxer.RemoveOldFragmentsFromLookupTable(sequences)
			}
		},
	})
	fragment.AttachToSource(src, bridge)

	if demuxer != nil {
		if err := demuxer.ReadMetadata(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("hlsinput: demuxer read_metadata: %w", err)
		}
		bridge.ApplyEditListOffset(demuxer.NormalizeStartTimestamp())
		demuxer.SetFragmentedSource(src)
	}

	src.StartRefresh(ctx)
	return src, bridge, demuxer, nil
}

// ListVariants returns the master playlist's variants in manifest order,
// or an empty slice for a media-only manifest.
func (in *Input) ListVariants(ctx context.Context) ([]playlist.Variant, error) {
	if err := in.ensureInit(ctx); err != nil {
		return nil, err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.resolved.MasterPlaylist == nil {
		return nil, nil
	}
	out := make([]playlist.Variant, len(in.resolved.MasterPlaylist.Variants))
	copy(out, in.resolved.MasterPlaylist.Variants)
	return out, nil
}

// CurrentVariant returns the variant currently backing the source, or nil
// for a media-only manifest.
func (in *Input) CurrentVariant() *playlist.Variant {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.resolved == nil {
		return nil
	}
	return in.resolved.SelectedVariant
}

// SelectVariant switches to variant v, which must be one of the entries
// ListVariants returned, fetching its media playlist and rebuilding the
// pipeline before disposing the previous one. A no-op if the URI is
// unchanged. asyncID must be the token this caller obtained from
// NewAsyncID(); if a later NewAsyncID() call supersedes it before or
// during the fetch, SelectVariant abandons its side effects and returns
// nil without swapping in the new pipeline.
func (in *Input) SelectVariant(ctx context.Context, asyncID uint64, v playlist.Variant) error {
	if err := in.ensureInit(ctx); err != nil {
		return err
	}

	in.mu.Lock()
	current := in.resolved.SelectedVariant
	in.mu.Unlock()
	if current != nil && current.URI == v.URI {
		return nil
	}

	if !in.ids.isCurrent(asyncID) {
		return nil
	}

	in.mu.Lock()
	master := in.resolved.MasterPlaylist
	masterURL := in.manifestURL
	in.mu.Unlock()

	variantURL, err := urlutil.ResolveURL(v.URI, masterURL)
	if err != nil {
		return fmt.Errorf("hlsinput: resolving variant URL: %w", err)
	}

	resolved, err := in.resolver.ResolveMediaURL(ctx, variantURL, in.policy.Retry)
	if err != nil {
		return fmt.Errorf("hlsinput: resolving selected variant: %w", err)
	}
	if !in.ids.isCurrent(asyncID) {
		return nil
	}
	resolved.MasterPlaylist = master
	if master != nil {
		resolved.AudioRenditions, resolved.SubtitleRenditions = resolve.SelectRenditions(master.Renditions, v)
	}
	resolved.SelectedVariant = &v

	newSrc, bridge, demuxer, err := in.buildPipeline(ctx, resolved)
	if err != nil {
		return err
	}

	in.mu.Lock()
	oldSrc := in.src
	in.resolved = resolved
	in.src = newSrc
	in.bridge = bridge
	in.demuxer = demuxer
	in.mu.Unlock()

	if oldSrc != nil {
		oldSrc.Dispose()
	}
	return nil
}

// Dispose releases the active source and clears demuxer references. It is
// idempotent and safe to call more than once.
func (in *Input) Dispose() {
	in.mu.Lock()
	src := in.src
	in.src = nil
	in.bridge = nil
	in.demuxer = nil
	in.mu.Unlock()

	if src != nil {
		src.Dispose()
	}
}

// FragmentBridge exposes the active fragment lookup bridge, or nil before
// initialization.
func (in *Input) FragmentBridge() *fragment.Bridge {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.bridge
}

// Source exposes the active segment source, or nil before initialization.
func (in *Input) Source() *source.Source {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.src
}
