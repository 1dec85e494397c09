package data

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/infra/neynar"
	"github.com/heurist-network/reply-bridge/internal/middleware"
	"github.com/heurist-network/reply-bridge/internal/retry"
)

// farcasterRepo implements PlatformRepo on Neynar
type farcasterRepo struct {
	client     *neynar.Client
	fid        int64
	signerUUID string
	username   string

	mentions middleware.Func[string, *neynar.NotificationsResponse]
	lookup   middleware.Func[string, *neynar.Cast]
	publish  middleware.Func[neynar.PublishCastRequest, *neynar.Cast]
}

// NewFarcasterRepo creates a new Farcaster platform repository
func NewFarcasterRepo(client *neynar.Client, fid int64, signerUUID, username string, logger zerolog.Logger) repo.PlatformRepo {
	cfg := retry.DefaultRetryConfig()
	cfg.RetryIf = retry.IsRetryableError
	writeCfg := retry.DefaultRetryConfig()
	writeCfg.RetryIf = retry.IsRetryableWriteError

	mentions := func(ctx context.Context, cursor string) (*neynar.NotificationsResponse, error) {
		return client.Mentions(ctx, fid, cursor)
	}

	return &farcasterRepo{
		client:     client,
		fid:        fid,
		signerUUID: signerUUID,
		username:   username,
		mentions: middleware.Chain(mentions,
			middleware.Timed[string, *neynar.NotificationsResponse]("farcaster.mentions", logger),
			middleware.Retry[string, *neynar.NotificationsResponse](cfg, logger),
		),
		lookup: middleware.Chain(client.GetCast,
			middleware.Timed[string, *neynar.Cast]("farcaster.lookup", logger),
			middleware.Cached[string, *neynar.Cast]("farcaster.lookup", 500, 5*time.Minute),
			middleware.Retry[string, *neynar.Cast](cfg, logger),
		),
		publish: middleware.Chain(client.PublishCast,
			middleware.Timed[neynar.PublishCastRequest, *neynar.Cast]("farcaster.publish", logger),
			middleware.Retry[neynar.PublishCastRequest, *neynar.Cast](writeCfg, logger),
		),
	}
}

// Name returns the platform name
func (r *farcasterRepo) Name() string {
	return "farcaster"
}

// SearchPage fetches one page of mention notifications
func (r *farcasterRepo) SearchPage(ctx context.Context, cursor string) (*repo.Page, error) {
	resp, err := r.mentions(ctx, cursor)
	if err != nil {
		return nil, err
	}

	page := &repo.Page{NextCursor: resp.Next.Cursor}
	for _, n := range resp.Notifications {
		if n.Cast == nil || n.Cast.Hash == "" {
			continue
		}
		page.Items = append(page.Items, domain.Candidate{
			ID:        n.Cast.Hash,
			Content:   n.Cast.Text,
			Author:    n.Cast.Author.Username,
			IsSelf:    n.Cast.Author.FID == r.fid,
			ParentID:  n.Cast.ParentHash,
			CreatedAt: n.Cast.CreatedAt(),
		})
	}
	return page, nil
}

// GetItem looks up one cast
func (r *farcasterRepo) GetItem(ctx context.Context, id string) (*domain.ThreadEntry, error) {
	cast, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.ThreadEntry{
		ID:        cast.Hash,
		Author:    cast.Author.Username,
		Text:      cast.Text,
		ParentID:  cast.ParentHash,
		Timestamp: cast.CreatedAt(),
	}, nil
}

// Post publishes a cast
func (r *farcasterRepo) Post(ctx context.Context, post domain.Post) (*domain.PostResult, error) {
	req := neynar.PublishCastRequest{
		SignerUUID: r.signerUUID,
		Text:       post.Text,
		Parent:     post.ReplyToID,
	}
	if post.MediaURL != "" {
		req.Embeds = []neynar.Embed{{URL: post.MediaURL}}
	}

	cast, err := r.publish(ctx, req)
	if err != nil {
		return nil, err
	}

	author := cast.Author.Username
	if author == "" {
		author = r.username
	}
	return &domain.PostResult{ID: cast.Hash, Author: author}, nil
}
