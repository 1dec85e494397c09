// Package twitter searches mentions through the apidance proxy and reads and
// writes tweets through the X API v2 with an OAuth2 user token.
package twitter

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/heurist-network/reply-bridge/internal/infra/httpapi"
)

const (
	defaultSearchBaseURL = "https://api.apidance.pro"
	defaultAPIBaseURL    = "https://api.x.com"

	maxImageBytes = 5 << 20
)

// SearchUser is the author block of a search result
type SearchUser struct {
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

// SearchTweet is one tweet from the search proxy
type SearchTweet struct {
	TweetID          string     `json:"tweet_id"`
	Text             string     `json:"text"`
	User             SearchUser `json:"user"`
	IsSelfSend       bool       `json:"is_self_send"`
	RelatedTweetID   string     `json:"related_tweet_id"`
	InReplyToTweetID string     `json:"in_reply_to_status_id_str"`
	CreatedAt        string     `json:"created_at"`
}

// SearchResponse is one page of search results
type SearchResponse struct {
	Tweets     []SearchTweet `json:"tweets"`
	NextCursor string        `json:"next_cursor_str"`
}

// Tweet is a tweet read from the X API
type Tweet struct {
	ID        string
	Text      string
	Username  string
	ParentID  string
	CreatedAt time.Time
}

type lookupResponse struct {
	Data struct {
		ID               string `json:"id"`
		Text             string `json:"text"`
		AuthorID         string `json:"author_id"`
		CreatedAt        string `json:"created_at"`
		ReferencedTweets []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"referenced_tweets"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

type createTweetRequest struct {
	Text  string `json:"text"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
	Media *struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media,omitempty"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type mediaUploadResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Config configures the client
type Config struct {
	SearchAPIKey string
	AccessToken  string // OAuth2 user-context token for the bot account
	SearchTerms  []string
}

// Client talks to the search proxy and the X API
type Client struct {
	SearchBaseURL string
	APIBaseURL    string

	searchKey   string
	searchTerms []string
	searchHTTP  *http.Client
	apiHTTP     *http.Client
}

// NewClient creates a new Twitter client
func NewClient(cfg Config) *Client {
	apiHTTP := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.AccessToken,
		TokenType:   "Bearer",
	}))
	apiHTTP.Timeout = httpapi.DefaultTimeout

	return &Client{
		SearchBaseURL: defaultSearchBaseURL,
		APIBaseURL:    defaultAPIBaseURL,
		searchKey:     cfg.SearchAPIKey,
		searchTerms:   cfg.SearchTerms,
		searchHTTP:    httpapi.NewHTTPClient(),
		apiHTTP:       apiHTTP,
	}
}

// Search returns one page of tweets matching any search term
func (c *Client) Search(ctx context.Context, cursor string) (*SearchResponse, error) {
	query := url.Values{}
	query.Set("q", strings.Join(c.searchTerms, " OR "))
	query.Set("cursor", cursor)

	req, err := httpapi.NewJSONRequest(ctx, http.MethodGet, c.SearchBaseURL+"/sapi/Search?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.searchKey)

	var resp SearchResponse
	if err := httpapi.Do(c.searchHTTP, "search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTweet looks up a tweet by id
func (c *Client) GetTweet(ctx context.Context, id string) (*Tweet, error) {
	query := url.Values{}
	query.Set("expansions", "author_id")
	query.Set("tweet.fields", "created_at,referenced_tweets")
	query.Set("user.fields", "username")

	req, err := httpapi.NewJSONRequest(ctx, http.MethodGet, c.APIBaseURL+"/2/tweets/"+url.PathEscape(id)+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp lookupResponse
	if err := httpapi.Do(c.apiHTTP, "x", req, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, fmt.Errorf("x: tweet %s missing from response", id)
	}

	tweet := &Tweet{ID: resp.Data.ID, Text: resp.Data.Text}
	for _, u := range resp.Includes.Users {
		if u.ID == resp.Data.AuthorID {
			tweet.Username = u.Username
		}
	}
	for _, ref := range resp.Data.ReferencedTweets {
		if ref.Type == "replied_to" {
			tweet.ParentID = ref.ID
		}
	}
	if t, err := time.Parse(time.RFC3339, resp.Data.CreatedAt); err == nil {
		tweet.CreatedAt = t.UTC()
	}
	return tweet, nil
}

// CreateTweet posts text, optionally as a reply and with uploaded media
func (c *Client) CreateTweet(ctx context.Context, text, replyTo string, mediaIDs []string) (string, error) {
	body := createTweetRequest{Text: text}
	if replyTo != "" {
		body.Reply = &struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		}{InReplyToTweetID: replyTo}
	}
	if len(mediaIDs) > 0 {
		body.Media = &struct {
			MediaIDs []string `json:"media_ids"`
		}{MediaIDs: mediaIDs}
	}

	req, err := httpapi.NewJSONRequest(ctx, http.MethodPost, c.APIBaseURL+"/2/tweets", body)
	if err != nil {
		return "", err
	}

	var resp createTweetResponse
	if err := httpapi.Do(c.apiHTTP, "x", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("x: create tweet returned no id")
	}
	return resp.Data.ID, nil
}

// UploadImage downloads imageURL and uploads it as tweet media
func (c *Client) UploadImage(ctx context.Context, imageURL string) (string, error) {
	data, err := httpapi.Download(ctx, c.searchHTTP, imageURL, maxImageBytes)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("media_category", "tweet_image"); err != nil {
		return "", fmt.Errorf("failed to write media form: %w", err)
	}
	part, err := w.CreateFormFile("media", "image.png")
	if err != nil {
		return "", fmt.Errorf("failed to write media form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write media form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to write media form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/2/media/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp mediaUploadResponse
	if err := httpapi.Do(c.apiHTTP, "x", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("x: media upload returned no id")
	}
	return resp.Data.ID, nil
}
