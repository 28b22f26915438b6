// Package indexer fetches wallet activity snapshots from an HTTP indexer.
//
// The indexer serves GET {base}/wallets/{address}?network={network} with the
// snapshot wire format as body. 404 means the indexer has never seen the
// wallet.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/dotrep/internal/adapters/chain"
	"github.com/okian/dotrep/internal/domain/model"
)

const (
	sourceName     = "indexer"
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 4 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. A client given to WithHTTPClient
// is copied, never modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

// Client is a chain.Provider backed by the indexer HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ chain.Provider = (*Client)(nil)

// New creates a client for the indexer at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid indexer url %q", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name implements chain.Provider.
func (c *Client) Name() string { return sourceName }

// apiError represents an error response from the indexer.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Activity implements chain.Provider.
func (c *Client) Activity(ctx context.Context, addr, network string) (model.WalletActivity, error) {
	var activity model.WalletActivity

	q := url.Values{}
	if network != "" {
		q.Set("network", network)
	}
	body, err := c.doRequest(ctx, "/wallets/"+url.PathEscape(addr), q)
	if err != nil {
		return activity, err
	}
	if err := json.Unmarshal(body, &activity); err != nil {
		return activity, fmt.Errorf("%w: decode indexer response: %w", chain.ErrUpstream, err)
	}
	return activity, nil
}

// doRequest makes a GET request to the indexer and returns the response body.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", chain.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", chain.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", chain.ErrWalletNotFound, path)
	case resp.StatusCode >= http.StatusBadRequest:
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("%w: indexer error (%d): %s", chain.ErrUpstream, resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("%w: indexer error (%d): %s", chain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return respBody, nil
}
