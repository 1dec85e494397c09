package repo

import (
	"context"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
)

// MirrorRepo copies sent replies to an operator channel
type MirrorRepo interface {
	Mirror(ctx context.Context, item *domain.WorkItem, result *domain.PostResult, reply string) error
}
