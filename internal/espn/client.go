package espn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	maxRedirects   = 3
	maxBodyBytes   = 8 << 20
)

// Client fetches scoreboard documents from a results feed
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a feed client for url. A nil httpClient gets a default
// with a timeout and a redirect limit.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}
	return &Client{url: url, http: httpClient}
}

// URL returns the feed address
func (c *Client) URL() string {
	return c.url
}

// Fetch downloads and decodes the current scoreboard
func (c *Client) Fetch(ctx context.Context) (*Scoreboard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "picknroll-results-feed/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var board Scoreboard
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&board); err != nil {
		return nil, fmt.Errorf("failed to decode scoreboard: %w", err)
	}
	return &board, nil
}
