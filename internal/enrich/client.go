// Package enrich fetches social-profile data for share subjects from the
// platform backend and a reputation-score API, and applies it to shares
// that are still missing it. Enrichment is best-effort: it never blocks
// trade processing and falls back to sentinel defaults after bounded
// retries.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Profile is the social identity fetched for one address.
type Profile struct {
	TwitterUsername string `json:"twitterUsername"`
	TwitterName     string `json:"twitterName"`
	Rank            int64  `json:"rank"`
}

type scoreResponse struct {
	Success      bool            `json:"success"`
	TwitterScore decimal.Decimal `json:"twitter_score"`
}

// Client calls the platform backend for profiles and the score API for
// reputation scores.
type Client struct {
	backendURL string
	scoreURL   string
	scoreKey   string
	httpc      *http.Client
}

// NewClient creates an enrichment client. scoreURL/scoreKey may be empty,
// in which case scores resolve to zero.
func NewClient(backendURL, scoreURL, scoreKey string) *Client {
	return &Client{
		backendURL: backendURL,
		scoreURL:   scoreURL,
		scoreKey:   scoreKey,
		httpc:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("enrich: %s returned status %d", req.URL.Host, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ProfileByAddress fetches the social profile for an address.
func (c *Client) ProfileByAddress(ctx context.Context, address string) (*Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, fmt.Sprintf("%s/users/%s", c.backendURL, address), &p); err != nil {
		return nil, err
	}
	if p.TwitterUsername == "" {
		return nil, fmt.Errorf("enrich: no profile for %s", address)
	}
	return &p, nil
}

// Score fetches the reputation score for a username. Returns zero when
// the score API is not configured or reports failure.
func (c *Client) Score(ctx context.Context, username string) (decimal.Decimal, error) {
	if c.scoreURL == "" {
		return decimal.Decimal{}, nil
	}

	q := url.Values{}
	q.Set("username", username)
	q.Set("key", c.scoreKey)

	var sr scoreResponse
	if err := c.getJSON(ctx, c.scoreURL+"?"+q.Encode(), &sr); err != nil {
		return decimal.Decimal{}, err
	}
	if !sr.Success {
		return decimal.Decimal{}, nil
	}
	return sr.TwitterScore, nil
}
