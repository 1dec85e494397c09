package data

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/infra/twitter"
	"github.com/heurist-network/reply-bridge/internal/middleware"
	"github.com/heurist-network/reply-bridge/internal/retry"
)

// twitterRepo implements PlatformRepo on the search proxy and the X API
type twitterRepo struct {
	client  *twitter.Client
	botName string
	logger  zerolog.Logger

	search middleware.Func[string, *twitter.SearchResponse]
	lookup middleware.Func[string, *twitter.Tweet]
	create middleware.Func[tweetRequest, string]
}

// tweetRequest carries the CreateTweet arguments through the call chain
type tweetRequest struct {
	Text     string
	ReplyTo  string
	MediaIDs []string
}

// NewTwitterRepo creates a new Twitter platform repository
func NewTwitterRepo(client *twitter.Client, botName string, logger zerolog.Logger) repo.PlatformRepo {
	cfg := retry.DefaultRetryConfig()
	cfg.RetryIf = retry.IsRetryableError
	writeCfg := retry.DefaultRetryConfig()
	writeCfg.RetryIf = retry.IsRetryableWriteError

	create := func(ctx context.Context, req tweetRequest) (string, error) {
		return client.CreateTweet(ctx, req.Text, req.ReplyTo, req.MediaIDs)
	}

	return &twitterRepo{
		client:  client,
		botName: botName,
		logger:  logger,
		search: middleware.Chain(client.Search,
			middleware.Timed[string, *twitter.SearchResponse]("twitter.search", logger),
			middleware.Retry[string, *twitter.SearchResponse](cfg, logger),
		),
		lookup: middleware.Chain(client.GetTweet,
			middleware.Timed[string, *twitter.Tweet]("twitter.lookup", logger),
			middleware.Cached[string, *twitter.Tweet]("twitter.lookup", 500, 5*time.Minute),
			middleware.Retry[string, *twitter.Tweet](cfg, logger),
		),
		create: middleware.Chain(create,
			middleware.Timed[tweetRequest, string]("twitter.create", logger),
			middleware.Retry[tweetRequest, string](writeCfg, logger),
		),
	}
}

// Name returns the platform name
func (r *twitterRepo) Name() string {
	return "twitter"
}

// SearchPage fetches one page of matching tweets
func (r *twitterRepo) SearchPage(ctx context.Context, cursor string) (*repo.Page, error) {
	resp, err := r.search(ctx, cursor)
	if err != nil {
		return nil, err
	}

	page := &repo.Page{NextCursor: resp.NextCursor}
	for _, t := range resp.Tweets {
		if t.TweetID == "" {
			continue
		}
		page.Items = append(page.Items, domain.Candidate{
			ID:        t.TweetID,
			Content:   t.Text,
			Author:    t.User.Name,
			IsSelf:    t.IsSelfSend,
			RelatedID: t.RelatedTweetID,
			ParentID:  t.InReplyToTweetID,
			CreatedAt: parseTweetTime(t.CreatedAt),
		})
	}
	return page, nil
}

// GetItem looks up one tweet
func (r *twitterRepo) GetItem(ctx context.Context, id string) (*domain.ThreadEntry, error) {
	t, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.ThreadEntry{
		ID:        t.ID,
		Author:    t.Username,
		Text:      t.Text,
		ParentID:  t.ParentID,
		Timestamp: t.CreatedAt,
	}, nil
}

// Post publishes a tweet; a media upload failure posts text only
func (r *twitterRepo) Post(ctx context.Context, post domain.Post) (*domain.PostResult, error) {
	var mediaIDs []string
	if post.MediaURL != "" {
		mediaID, err := r.client.UploadImage(ctx, post.MediaURL)
		if err != nil {
			r.logger.Warn().Err(err).Str("media_url", post.MediaURL).Msg("media upload failed, posting without image")
		} else {
			mediaIDs = append(mediaIDs, mediaID)
		}
	}

	id, err := r.create(ctx, tweetRequest{Text: post.Text, ReplyTo: post.ReplyToID, MediaIDs: mediaIDs})
	if err != nil {
		return nil, err
	}
	return &domain.PostResult{ID: id, Author: r.botName}, nil
}

// parseTweetTime accepts the classic Twitter format and RFC 3339
func parseTweetTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RubyDate, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
