// Package imgbb re-hosts images on imgbb
package imgbb

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/heurist-network/reply-bridge/internal/infra/httpapi"
)

const (
	defaultUploadURL = "https://api.imgbb.com/1/upload"
	maxImageBytes    = 32 << 20
)

type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Client uploads images to imgbb
type Client struct {
	UploadURL  string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new imgbb client
func NewClient(apiKey string) *Client {
	return &Client{
		UploadURL:  defaultUploadURL,
		apiKey:     apiKey,
		httpClient: httpapi.NewHTTPClient(),
	}
}

// UploadFromURL downloads imageURL and uploads its bytes, returning the hosted url
func (c *Client) UploadFromURL(ctx context.Context, imageURL string) (string, error) {
	data, err := httpapi.Download(ctx, c.httpClient, imageURL, maxImageBytes)
	if err != nil {
		return "", err
	}
	return c.Upload(ctx, data)
}

// Upload sends raw image bytes and returns the hosted url
func (c *Client) Upload(ctx context.Context, image []byte) (string, error) {
	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("image", base64.StdEncoding.EncodeToString(image))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp uploadResponse
	if err := httpapi.Do(c.httpClient, "imgbb", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.URL == "" {
		return "", fmt.Errorf("imgbb: upload returned no url")
	}
	return resp.Data.URL, nil
}
