package neynar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heurist-network/reply-bridge/internal/infra/httpapi"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("key")
	c.BaseURL = srv.URL
	return c
}

func TestMentions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("api_key"))
		assert.Equal(t, "42", r.URL.Query().Get("fid"))
		assert.Equal(t, "mentions", r.URL.Query().Get("type"))
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		w.Write([]byte(`{"notifications":[{"type":"mention","cast":{"hash":"0x1","parent_hash":"0x0","text":"@bot hi","timestamp":"2024-05-01T12:00:00.000Z","author":{"fid":7,"username":"alice"}}}],"next":{"cursor":"def"}}`))
	})

	resp, err := c.Mentions(context.Background(), 42, "abc")
	require.NoError(t, err)
	require.Len(t, resp.Notifications, 1)
	cast := resp.Notifications[0].Cast
	assert.Equal(t, "0x1", cast.Hash)
	assert.Equal(t, "0x0", cast.ParentHash)
	assert.Equal(t, "alice", cast.Author.Username)
	assert.Equal(t, 2024, cast.CreatedAt().Year())
	assert.Equal(t, "def", resp.Next.Cursor)
}

func TestGetCast(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cast", r.URL.Path)
		assert.Equal(t, "0xabc", r.URL.Query().Get("identifier"))
		assert.Equal(t, "hash", r.URL.Query().Get("type"))
		w.Write([]byte(`{"cast":{"hash":"0xabc","text":"root","author":{"username":"bob"}}}`))
	})

	cast, err := c.GetCast(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "root", cast.Text)
	assert.Equal(t, "bob", cast.Author.Username)
}

func TestPublishCast(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body PublishCastRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "signer", body.SignerUUID)
		assert.Equal(t, "0xparent", body.Parent)
		require.Len(t, body.Embeds, 1)
		assert.Equal(t, "https://i.ibb.co/x.png", body.Embeds[0].URL)
		w.Write([]byte(`{"success":true,"cast":{"hash":"0xnew","author":{"username":"heurist"}}}`))
	})

	cast, err := c.PublishCast(context.Background(), PublishCastRequest{
		SignerUUID: "signer",
		Text:       "hello",
		Parent:     "0xparent",
		Embeds:     []Embed{{URL: "https://i.ibb.co/x.png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "0xnew", cast.Hash)
}

func TestAPIErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"slow down"}`))
	})

	_, err := c.GetCast(context.Background(), "0x1")
	require.Error(t, err)
	var apiErr *httpapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatus())
}
