// Package neynar is a minimal Farcaster client over the Neynar v2 API
package neynar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/heurist-network/reply-bridge/internal/infra/httpapi"
)

const defaultBaseURL = "https://api.neynar.com/v2/farcaster"

// User is a Farcaster account
type User struct {
	FID      int64  `json:"fid"`
	Username string `json:"username"`
}

// Embed is a url attached to a cast
type Embed struct {
	URL string `json:"url"`
}

// Cast is a Farcaster post
type Cast struct {
	Hash       string  `json:"hash"`
	ParentHash string  `json:"parent_hash"`
	Text       string  `json:"text"`
	Timestamp  string  `json:"timestamp"`
	Author     User    `json:"author"`
	Embeds     []Embed `json:"embeds,omitempty"`
}

// CreatedAt parses the cast timestamp, zero on failure
func (c *Cast) CreatedAt() time.Time {
	t, err := time.Parse(time.RFC3339, c.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Notification is one entry of the notifications feed
type Notification struct {
	Type string `json:"type"`
	Cast *Cast  `json:"cast"`
}

// NotificationsResponse is one page of notifications
type NotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	Next          struct {
		Cursor string `json:"cursor"`
	} `json:"next"`
}

// PublishCastRequest is the body of POST /cast
type PublishCastRequest struct {
	SignerUUID string  `json:"signer_uuid"`
	Text       string  `json:"text"`
	Parent     string  `json:"parent,omitempty"`
	Embeds     []Embed `json:"embeds,omitempty"`
}

type castResponse struct {
	Success bool  `json:"success"`
	Cast    *Cast `json:"cast"`
}

// Client is the Neynar API client
type Client struct {
	BaseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Neynar client
func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: httpapi.NewHTTPClient(),
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.BaseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := httpapi.NewJSONRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("api_key", c.apiKey)
	return httpapi.Do(c.httpClient, "neynar", req, out)
}

// Mentions returns one page of mention notifications for fid
func (c *Client) Mentions(ctx context.Context, fid int64, cursor string) (*NotificationsResponse, error) {
	query := url.Values{}
	query.Set("fid", strconv.FormatInt(fid, 10))
	query.Set("type", "mentions")
	query.Set("priority_mode", "false")
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var resp NotificationsResponse
	if err := c.do(ctx, http.MethodGet, "notifications", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCast looks up a cast by hash
func (c *Client) GetCast(ctx context.Context, hash string) (*Cast, error) {
	query := url.Values{}
	query.Set("identifier", hash)
	query.Set("type", "hash")

	var resp castResponse
	if err := c.do(ctx, http.MethodGet, "cast", query, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Cast == nil {
		return nil, fmt.Errorf("neynar: cast %s missing from response", hash)
	}
	return resp.Cast, nil
}

// PublishCast posts a cast and returns it
func (c *Client) PublishCast(ctx context.Context, req PublishCastRequest) (*Cast, error) {
	var resp castResponse
	if err := c.do(ctx, http.MethodPost, "cast", nil, req, &resp); err != nil {
		return nil, err
	}
	if resp.Cast == nil || resp.Cast.Hash == "" {
		return nil, fmt.Errorf("neynar: publish returned no cast")
	}
	return resp.Cast, nil
}
