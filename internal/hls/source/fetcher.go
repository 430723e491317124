package source

import (
	"context"
	"io"
	"net/http"

	"github.com/vodlive/hlsingest/internal/hls/hlserr"
	"github.com/vodlive/hlsingest/internal/hls/playlist"
	"github.com/vodlive/hlsingest/internal/urlutil"
	"github.com/vodlive/hlsingest/pkg/httpclient"
)

// Fetcher retrieves segment or init-segment bytes, optionally restricted to
// a byte range. Implementations must treat a nil range as "fetch the whole
// resource".
type Fetcher interface {
	FetchRange(ctx context.Context, url string, br *playlist.ByteRange) ([]byte, error)
}

// httpFetcher is the default Fetcher, backed by an httpclient.Client bound
// to a named circuit-breaker profile ("segment" or "init-segment").
type httpFetcher struct {
	client *httpclient.Client
}

// NewHTTPFetcher builds a Fetcher for serviceName ("segment" or
// "init-segment") using the default circuit breaker manager.
func NewHTTPFetcher(serviceName string) Fetcher {
	client := httpclient.DefaultFactory.CreateClientForService(serviceName)
	httpclient.DefaultRegistry.Register(serviceName, client)
	return &httpFetcher{client: client}
}

func (f *httpFetcher) FetchRange(ctx context.Context, url string, br *playlist.ByteRange) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, &hlserr.FetchError{URL: url, Message: err.Error()}
	}
	if br != nil {
		req.Header.Set("Range", urlutil.RangeHeader(urlutil.ByteRange{Length: br.Length, Offset: offsetOrZero(br)}))
	}

	resp, err := f.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, &hlserr.FetchError{URL: url, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &hlserr.FetchError{URL: url, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &hlserr.FetchError{URL: url, Message: err.Error()}
	}
	return data, nil
}

func offsetOrZero(br *playlist.ByteRange) int64 {
	if br.Offset == nil {
		return 0
	}
	return *br.Offset
}
