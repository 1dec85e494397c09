package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/infra/heurist"
	"github.com/heurist-network/reply-bridge/internal/infra/imgbb"
	"github.com/heurist-network/reply-bridge/internal/infra/neynar"
	"github.com/heurist-network/reply-bridge/internal/infra/twitter"
)

func TestFarcasterRepo_SearchPageMapsCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"notifications":[
			{"type":"mention","cast":{"hash":"0x1","parent_hash":"0x0","text":"@heuman explain zk proofs please","timestamp":"2024-05-01T12:00:00.000Z","author":{"fid":7,"username":"alice"}}},
			{"type":"mention","cast":{"hash":"0x2","text":"@heuman self","timestamp":"2024-05-01T12:01:00.000Z","author":{"fid":42,"username":"heuman"}}},
			{"type":"follows"}
		],"next":{"cursor":"n2"}}`))
	}))
	defer srv.Close()

	client := neynar.NewClient("key")
	client.BaseURL = srv.URL
	r := NewFarcasterRepo(client, 42, "signer", "heuman", zerolog.Nop())

	page, err := r.SearchPage(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "n2", page.NextCursor)

	first := page.Items[0]
	assert.Equal(t, "0x1", first.ID)
	assert.Equal(t, "alice", first.Author)
	assert.Equal(t, "0x0", first.ParentID)
	assert.False(t, first.IsSelf)
	assert.True(t, page.Items[1].IsSelf, "author fid equal to bot fid is self-originated")
}

func TestFarcasterRepo_PostWithEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body neynar.PublishCastRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0x1", body.Parent)
		require.Len(t, body.Embeds, 1)
		w.Write([]byte(`{"success":true,"cast":{"hash":"0xreply","author":{"fid":42}}}`))
	}))
	defer srv.Close()

	client := neynar.NewClient("key")
	client.BaseURL = srv.URL
	r := NewFarcasterRepo(client, 42, "signer", "heuman", zerolog.Nop())

	res, err := r.Post(context.Background(), domain.Post{Text: "hi", ReplyToID: "0x1", MediaURL: "https://i.ibb.co/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "0xreply", res.ID)
	assert.Equal(t, "heuman", res.Author)
}

func TestFarcasterRepo_PostRetriesUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"success":true,"cast":{"hash":"0xreply","author":{"fid":42,"username":"heuman"}}}`))
	}))
	defer srv.Close()

	client := neynar.NewClient("key")
	client.BaseURL = srv.URL
	r := NewFarcasterRepo(client, 42, "signer", "heuman", zerolog.Nop())

	res, err := r.Post(context.Background(), domain.Post{Text: "hi", ReplyToID: "0x1"})
	require.NoError(t, err)
	assert.Equal(t, "0xreply", res.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFarcasterRepo_PostDoesNotRetryClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := neynar.NewClient("key")
	client.BaseURL = srv.URL
	r := NewFarcasterRepo(client, 42, "signer", "heuman", zerolog.Nop())

	_, err := r.Post(context.Background(), domain.Post{Text: "hi", ReplyToID: "0x1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTwitterRepo_PostRetriesUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":{"id":"77","text":"hi alice"}}`))
	}))
	defer srv.Close()

	client := twitter.NewClient(twitter.Config{SearchAPIKey: "k", AccessToken: "t", SearchTerms: []string{"@heurist_ai"}})
	client.SearchBaseURL = srv.URL
	client.APIBaseURL = srv.URL
	r := NewTwitterRepo(client, "Heuman", zerolog.Nop())

	res, err := r.Post(context.Background(), domain.Post{Text: "hi alice", ReplyToID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "77", res.ID)
	assert.Equal(t, "Heuman", res.Author)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTwitterRepo_SearchAndLookup(t *testing.T) {
	var lookups int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sapi/Search":
			w.Write([]byte(`{"tweets":[{"tweet_id":"1","text":"@heurist_ai hello there friend","user":{"name":"Alice"},"is_self_send":false,"related_tweet_id":"9","created_at":"Wed May 01 12:00:00 +0000 2024"}],"next_cursor_str":"c2"}`))
		case "/2/tweets/9":
			atomic.AddInt32(&lookups, 1)
			w.Write([]byte(`{"data":{"id":"9","text":"quoted","author_id":"u"},"includes":{"users":[{"id":"u","username":"bob"}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := twitter.NewClient(twitter.Config{SearchAPIKey: "k", AccessToken: "t", SearchTerms: []string{"@heurist_ai"}})
	client.SearchBaseURL = srv.URL
	client.APIBaseURL = srv.URL
	r := NewTwitterRepo(client, "Heuman", zerolog.Nop())

	page, err := r.SearchPage(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	c := page.Items[0]
	assert.Equal(t, "Alice", c.Author)
	assert.Equal(t, "9", c.RelatedID)
	assert.Equal(t, 2024, c.CreatedAt.Year())

	for i := 0; i < 2; i++ {
		entry, err := r.GetItem(context.Background(), "9")
		require.NoError(t, err)
		assert.Equal(t, "quoted", entry.Text)
		assert.Equal(t, "bob", entry.Author)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&lookups), "lookups are cached")
}

func TestImageRepo_GenerateAndHost(t *testing.T) {
	var uploads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/submit_job":
			w.Write([]byte(`"` + "http://" + r.Host + `/generated.png"`))
		case "/generated.png":
			w.Write([]byte("png"))
		case "/upload":
			atomic.AddInt32(&uploads, 1)
			w.Write([]byte(`{"success":true,"data":{"url":"https://i.ibb.co/hosted.png"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	host := imgbb.NewClient("key")
	host.UploadURL = srv.URL + "/upload"
	r := NewImageRepo(heurist.NewImageClient(srv.URL+"/submit_job", "key", "BrainDance"), host, zerolog.Nop())

	url, err := r.Generate(context.Background(), "robot")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/generated.png", url)

	for i := 0; i < 2; i++ {
		hosted, err := r.Host(context.Background(), url)
		require.NoError(t, err)
		assert.Equal(t, "https://i.ibb.co/hosted.png", hosted)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&uploads))
}

func TestFormatMirrorText(t *testing.T) {
	item := &domain.WorkItem{Platform: "twitter", Author: "alice", Content: "@heurist_ai hello"}
	text := FormatMirrorText(item, &domain.PostResult{ID: "99", Author: "Heuman"}, "hi alice")

	assert.Contains(t, text, "[twitter] @alice: @heurist_ai hello")
	assert.Contains(t, text, "@Heuman: hi alice")
	assert.Contains(t, text, "reply id 99")
}
