package extract

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Response is the part of an HTTP response the extractors read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher retrieves a URL. Implementations return an error only for
// transport failures; any HTTP status is a valid Response.
type Fetcher interface {
	Get(ctx context.Context, url string) (Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (Response, error)

// Get calls f.
func (f FetcherFunc) Get(ctx context.Context, url string) (Response, error) {
	return f(ctx, url)
}

// PageMetadata summarizes a fetched page. An empty ContentType means the
// header was absent.
type PageMetadata struct {
	ContentType   string `json:"content_type,omitempty"`
	ContentLength int64  `json:"content_length"`
	StatusCode    int    `json:"status"`
}

// PageInfo fetches rawURL and reports its content type, length and status.
// Transport failures and cancellation return *FetchError.
func PageInfo(ctx context.Context, fetcher Fetcher, rawURL string) (PageMetadata, error) {
	if err := ctx.Err(); err != nil {
		return PageMetadata{}, &FetchError{URL: rawURL, Err: err}
	}
	resp, err := fetcher.Get(ctx, rawURL)
	if err != nil {
		return PageMetadata{}, &FetchError{URL: rawURL, Err: err}
	}
	return PageMetadata{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: contentLength(resp),
		StatusCode:    resp.StatusCode,
	}, nil
}

func contentLength(resp Response) int64 {
	raw := strings.TrimSpace(resp.Header.Get("Content-Length"))
	if raw == "" {
		return int64(len(resp.Body))
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
