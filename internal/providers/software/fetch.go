package software

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

var (
	ErrTooLarge    = errors.New("document exceeds size limit")
	ErrFetchStatus = errors.New("unexpected response status")
)

// Fetcher loads documents for every provider built by one factory.
type Fetcher struct {
	client   *resty.Client
	maxBytes int64
}

// NewFetcher creates a fetcher with a retrying transport.
func NewFetcher(opts Options) *Fetcher {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.FetchRetries
	retryClient.RetryWaitMin = 50 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = opts.FetchTimeout

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(opts.FetchTimeout).
		SetDoNotParseResponse(true).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,image/*;q=0.9,*/*;q=0.8")

	return &Fetcher{client: client, maxBytes: opts.MaxDocumentBytes}
}

// Get fetches a remote document.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s returned %d", ErrFetchStatus, rawURL, resp.StatusCode())
	}
	return f.readLimited(body)
}

// ReadFile loads a local document.
func (f *Fetcher) ReadFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return f.readLimited(file)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
