package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

// DefaultTimeout bounds one page fetch. Callers on slow connections may raise
// it up to ~20s, fast ones can lower it to 5s.
const DefaultTimeout = 10 * time.Second

// Client fetches listing pages from one domain of the backend API. It is the
// HTTP implementation of the browse session's Source.
type Client struct {
	baseURL string
	domain  types.Domain
	http    *http.Client
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func New(baseURL string, domain types.Domain, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		domain:  domain,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage issues one listing query and normalizes the response. Errors come
// back classified: TimeoutError for an exceeded deadline, NetworkError for
// refused connections and error statuses, ResponseShapeError for payloads
// that match no known envelope.
func (c *Client) FetchPage(ctx context.Context, params url.Values) (*types.Page, error) {
	u := c.baseURL + c.domain.Path() + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &types.NetworkError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, time.Since(start))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &types.NetworkError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s: status %d", c.domain, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err, time.Since(start))
	}
	return types.DecodePage(body)
}

func classifyTransportError(err error, elapsed time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.TimeoutError{Elapsed: elapsed, Err: err}
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &types.TimeoutError{Elapsed: elapsed, Err: err}
	}
	return &types.NetworkError{Err: err}
}
