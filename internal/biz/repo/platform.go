package repo

import (
	"context"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
)

// Page is one page of search or notification results
type Page struct {
	Items      []domain.Candidate
	NextCursor string
}

// PlatformRepo is the social platform read/write API
type PlatformRepo interface {
	// Name returns the platform name (twitter, farcaster)
	Name() string

	// SearchPage fetches one page of mentions starting at cursor ("" for the first page)
	SearchPage(ctx context.Context, cursor string) (*Page, error)

	// GetItem looks up a single message by id
	GetItem(ctx context.Context, id string) (*domain.ThreadEntry, error)

	// Post publishes a message, optionally as a reply with one media url
	Post(ctx context.Context, post domain.Post) (*domain.PostResult, error)
}
