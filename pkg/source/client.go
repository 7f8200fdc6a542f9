package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bitey-pm/bitey/pkg/metrics"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultDownloadTimeout = 10 * time.Minute
	DefaultRetries         = 2
	DefaultBackoff         = 250 * time.Millisecond

	// maxDocumentSize bounds index, pointer and manifest bodies.
	maxDocumentSize = 4 << 20
	userAgent       = "bitey"
)

// Options configures a Client. The zero value is usable.
type Options struct {
	// Insecure skips TLS certificate validation for every request.
	Insecure bool
	// Timeout bounds each index, pointer and manifest request.
	Timeout time.Duration
	// DownloadTimeout bounds each archive download.
	DownloadTimeout time.Duration
	// Retries is how many times a transport error or 5xx is retried.
	Retries uint64
	// Backoff is the base delay of the exponential retry backoff.
	Backoff time.Duration
	// Concurrency is the maximum number of index fetches in flight while
	// locating a package. Values below 2 fetch sequentially.
	Concurrency int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Client fetches remote indexes, pointers, manifests and archives. One
// Client is shared by every request of an operation so the certificate
// policy is applied uniformly.
type Client struct {
	http    *http.Client
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = DefaultDownloadTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ResponseHeaderTimeout = opts.Timeout
	transport.IdleConnTimeout = 30 * time.Second
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		// Per-request deadlines come from contexts; downloads need a
		// longer bound than documents, so the client itself has none.
		http:    &http.Client{Transport: transport},
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Insecure reports whether certificate validation is skipped.
func (c *Client) Insecure() bool {
	return c.opts.Insecure
}

// getDocument fetches a small document, retrying transient failures.
func (c *Client) getDocument(ctx context.Context, stage Stage, url string) ([]byte, error) {
	var body []byte
	err := c.withRetry(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		resp, err := c.do(ctx, stage, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
		if err != nil {
			return retry.RetryableError(&FetchError{Stage: stage, URL: url, Kind: ErrRemoteUnreachable, Err: err})
		}
		if len(data) > maxDocumentSize {
			return &FetchError{Stage: stage, URL: url, Kind: ErrMalformedDocument, Err: fmt.Errorf("document exceeds %d bytes", maxDocumentSize)}
		}
		body = data
		return nil
	})

	c.metrics.ObserveFetch(string(stage), err)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// do issues a GET and classifies failures. A returned response always has
// a 2xx status. Retryable failures are wrapped with retry.RetryableError.
func (c *Client) do(ctx context.Context, stage Stage, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Stage: stage, URL: url, Kind: ErrMalformedDocument, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("fetching", "stage", stage, "url", url)

	resp, err := c.http.Do(req)
	if err != nil {
		ferr := &FetchError{Stage: stage, URL: url, Kind: ErrRemoteUnreachable, Err: err}
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil, ferr
		}
		return nil, retry.RetryableError(ferr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	ferr := &FetchError{Stage: stage, URL: url, StatusCode: resp.StatusCode, Kind: ErrRemoteUnreachable}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		ferr.Kind = ErrDocumentNotFound
		return nil, ferr
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.RetryableError(ferr)
	default:
		return nil, ferr
	}
}

func (c *Client) withRetry(ctx context.Context, f retry.RetryFunc) error {
	b := retry.WithMaxRetries(c.opts.Retries, retry.NewExponential(c.opts.Backoff))
	return retry.Do(ctx, b, f)
}
