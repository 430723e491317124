// Package resolve implements the HLS manifest resolver: fetching a
// manifest, classifying master vs. media, selecting one variant per a
// quality policy, and exposing a resolved view ready to back a segment
// source.
package resolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/vodlive/hlsingest/internal/hls/hlserr"
	"github.com/vodlive/hlsingest/internal/hls/playlist"
	"github.com/vodlive/hlsingest/internal/observability"
	"github.com/vodlive/hlsingest/internal/urlutil"
	"github.com/vodlive/hlsingest/pkg/httpclient"
)

// ResolvedStream is the resolver's output: the media playlist that will
// back the segment source, plus the master-playlist context it was chosen
// from (when the manifest was a master playlist).
type ResolvedStream struct {
	BaseURL            string
	MediaPlaylist      *playlist.MediaPlaylist
	MasterPlaylist     *playlist.MasterPlaylist
	SelectedVariant    *playlist.Variant
	AudioRenditions    []playlist.MediaRendition
	SubtitleRenditions []playlist.MediaRendition
	IsLive             bool
}

// QualitySelection is a tagged union of variant-selection policies,
// dispatched in one type switch rather than a virtual method per strategy.
type QualitySelection interface {
	isQualitySelection()
}

// Highest selects the variant with the maximum bandwidth.
type Highest struct{}

// Lowest selects the variant with the minimum bandwidth.
type Lowest struct{}

// Auto behaves like Highest; it is a distinct type so callers can express
// "no explicit preference" versus "I explicitly want the top bitrate".
type Auto struct{}

// ByBandwidth selects the variant minimizing |bandwidth - Target|.
type ByBandwidth struct {
	Target int
}

// ByResolution selects the variant minimizing |w-Width| + |h-Height| among
// variants that carry a RESOLUTION attribute, falling back to Highest when
// none do.
type ByResolution struct {
	Width  int
	Height int
}

func (Highest) isQualitySelection()      {}
func (Lowest) isQualitySelection()       {}
func (Auto) isQualitySelection()         {}
func (ByBandwidth) isQualitySelection()  {}
func (ByResolution) isQualitySelection() {}

// dolbyOnlyCodecs are codec identifiers that indicate a Dolby-only audio
// track with no widely-supported fallback embedded in the same variant.
var dolbyOnlyCodecs = []string{"ec-3", "ac-3"}

// RetryHook is invoked after a failed fetch. Returning ok=false gives up;
// otherwise delay is how long to wait before the next attempt.
type RetryHook func(attempt int, prevErr error, url string) (delay time.Duration, ok bool)

// Policy configures a single Resolve call.
type Policy struct {
	Quality QualitySelection
	Retry   RetryHook
}

// Fetcher abstracts manifest retrieval so tests can stub it deterministically.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// httpFetcher is the default Fetcher, backed by pkg/httpclient's
// circuit-breaker-protected client under the "manifest" service profile.
type httpFetcher struct {
	client *httpclient.Client
}

// NewHTTPFetcher builds the default Fetcher used outside of tests: an
// httpclient.Client wired to the "manifest" circuit breaker profile.
func NewHTTPFetcher(timeout time.Duration) Fetcher {
	factory := httpclient.DefaultFactory
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = timeout
	client := factory.CreateClientWithConfig("manifest", cfg)
	httpclient.DefaultRegistry.Register("manifest", client)
	return &httpFetcher{client: client}
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return nil, &hlserr.FetchError{URL: url, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, &hlserr.FetchError{URL: url, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return resp.Body, nil
}

// Resolver fetches and resolves HLS manifests.
type Resolver struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// New creates a Resolver using the given Fetcher. Pass nil logger to use
// slog.Default().
func New(fetcher Fetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: fetcher, logger: observability.WithComponent(logger, "resolve")}
}

// Resolve fetches manifestURL, parses it, and (for a master playlist)
// selects one variant per policy.Quality before fetching that variant's
// media playlist.
func (r *Resolver) Resolve(ctx context.Context, manifestURL string, policy Policy) (*ResolvedStream, error) {
	body, err := r.fetchWithRetry(ctx, manifestURL, policy.Retry)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	pl, err := playlist.ParseCompressed(body)
	if err != nil {
		return nil, err
	}

	if pl.Kind == playlist.KindMedia {
		return &ResolvedStream{
			BaseURL:       manifestURL,
			MediaPlaylist: pl.Media,
			IsLive:        !pl.Media.EndList,
		}, nil
	}

	master := pl.Master
	if len(master.Variants) == 0 {
		return nil, &hlserr.NoVariantError{}
	}

	variant := selectVariant(master.Variants, policy.Quality)

	variantURL, err := urlutil.ResolveURL(variant.URI, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("resolving variant URL: %w", err)
	}

	mediaBody, err := r.fetchWithRetry(ctx, variantURL, policy.Retry)
	if err != nil {
		return nil, err
	}
	defer mediaBody.Close()

	mediaPl, err := playlist.ParseCompressed(mediaBody)
	if err != nil {
		return nil, err
	}
	if mediaPl.Kind != playlist.KindMedia {
		return nil, &hlserr.ParseError{Message: "variant playlist is not a media playlist"}
	}

	audio, subs := selectRenditions(master.Renditions, variant)

	return &ResolvedStream{
		BaseURL:            variantURL,
		MediaPlaylist:      mediaPl.Media,
		MasterPlaylist:     master,
		SelectedVariant:    &variant,
		AudioRenditions:    audio,
		SubtitleRenditions: subs,
		IsLive:             !mediaPl.Media.EndList,
	}, nil
}

// ResolveMediaURL fetches and parses a known media-playlist URL directly,
// skipping master-playlist variant selection. It is used when a caller has
// already chosen a specific variant (e.g. Input.SelectVariant) and only
// needs that variant's media playlist re-fetched.
func (r *Resolver) ResolveMediaURL(ctx context.Context, mediaURL string, retry RetryHook) (*ResolvedStream, error) {
	body, err := r.fetchWithRetry(ctx, mediaURL, retry)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	pl, err := playlist.ParseCompressed(body)
	if err != nil {
		return nil, err
	}
	if pl.Kind != playlist.KindMedia {
		return nil, &hlserr.ParseError{Message: "expected a media playlist at " + mediaURL}
	}
	return &ResolvedStream{
		BaseURL:       mediaURL,
		MediaPlaylist: pl.Media,
		IsLive:        !pl.Media.EndList,
	}, nil
}

// SelectRenditions exports selectRenditions for callers that already hold
// a chosen variant (e.g. after Input.SelectVariant) and need its matching
// audio/subtitle rendition groups from the master playlist.
func SelectRenditions(renditions []playlist.MediaRendition, variant playlist.Variant) (audio, subtitles []playlist.MediaRendition) {
	return selectRenditions(renditions, variant)
}

func (r *Resolver) fetchWithRetry(ctx context.Context, url string, retry RetryHook) (io.ReadCloser, error) {
	attempt := 0
	for {
		body, err := r.fetcher.Fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		if retry == nil {
			return nil, err
		}
		delay, ok := retry(attempt, err, url)
		if !ok {
			return nil, err
		}
		r.logger.Debug("retrying manifest fetch", slog.String("url", url), slog.Int("attempt", attempt), slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		attempt++
	}
}

func selectVariant(variants []playlist.Variant, quality QualitySelection) playlist.Variant {
	candidates := filterDolbyOnly(variants)

	if quality == nil {
		quality = Highest{}
	}

	switch q := quality.(type) {
	case Highest, Auto:
		return maxBy(candidates, func(v playlist.Variant) int { return v.Bandwidth })
	case Lowest:
		return minBy(candidates, func(v playlist.Variant) int { return v.Bandwidth })
	case ByBandwidth:
		return minBy(candidates, func(v playlist.Variant) int { return absInt(v.Bandwidth - q.Target) })
	case ByResolution:
		withRes := make([]playlist.Variant, 0, len(candidates))
		for _, v := range candidates {
			if v.Resolution != nil {
				withRes = append(withRes, v)
			}
		}
		if len(withRes) == 0 {
			return maxBy(candidates, func(v playlist.Variant) int { return v.Bandwidth })
		}
		return minBy(withRes, func(v playlist.Variant) int {
			return absInt(v.Resolution.Width-q.Width) + absInt(v.Resolution.Height-q.Height)
		})
	default:
		return maxBy(candidates, func(v playlist.Variant) int { return v.Bandwidth })
	}
}

// filterDolbyOnly demotes variants whose codecs string names a Dolby-only
// identifier behind widely-supported ones: if any variant without such an
// identifier exists, only those are considered, else all variants are.
func filterDolbyOnly(variants []playlist.Variant) []playlist.Variant {
	var nonDolby []playlist.Variant
	for _, v := range variants {
		if !containsDolbyOnly(v.Codecs) {
			nonDolby = append(nonDolby, v)
		}
	}
	if len(nonDolby) > 0 {
		return nonDolby
	}
	return variants
}

func containsDolbyOnly(codecs string) bool {
	lower := strings.ToLower(codecs)
	for _, c := range dolbyOnlyCodecs {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// maxBy and minBy return the first variant (manifest order, tie-break) at
// the selected extreme of key.
func maxBy(variants []playlist.Variant, key func(playlist.Variant) int) playlist.Variant {
	best := variants[0]
	bestKey := key(best)
	for _, v := range variants[1:] {
		if k := key(v); k > bestKey {
			best, bestKey = v, k
		}
	}
	return best
}

func minBy(variants []playlist.Variant, key func(playlist.Variant) int) playlist.Variant {
	best := variants[0]
	bestKey := key(best)
	for _, v := range variants[1:] {
		if k := key(v); k < bestKey {
			best, bestKey = v, k
		}
	}
	return best
}

func absInt(n int) int {
	return int(math.Abs(float64(n)))
}

func selectRenditions(renditions []playlist.MediaRendition, variant playlist.Variant) (audio, subtitles []playlist.MediaRendition) {
	for _, rend := range renditions {
		switch rend.Type {
		case playlist.RenditionAudio:
			if variant.Audio != "" && rend.GroupID == variant.Audio {
				audio = append(audio, rend)
			}
		case playlist.RenditionSubtitles:
			if variant.Subtitles != "" && rend.GroupID == variant.Subtitles {
				subtitles = append(subtitles, rend)
			}
		}
	}
	return audio, subtitles
}
