package data

import (
	"context"
	"fmt"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/infra/lark"
)

// larkMirror copies sent replies into an ops chat
type larkMirror struct {
	client *lark.Client
	chatID string
}

// NewLarkMirror creates a mirror that posts into chatID
func NewLarkMirror(client *lark.Client, chatID string) repo.MirrorRepo {
	return &larkMirror{client: client, chatID: chatID}
}

// Mirror posts a short summary of the reply
func (m *larkMirror) Mirror(ctx context.Context, item *domain.WorkItem, result *domain.PostResult, reply string) error {
	return m.client.SendText(ctx, m.chatID, FormatMirrorText(item, result, reply))
}

// FormatMirrorText renders the ops chat message for a sent reply
func FormatMirrorText(item *domain.WorkItem, result *domain.PostResult, reply string) string {
	text := fmt.Sprintf("[%s] @%s: %s\n↳ @%s: %s", item.Platform, item.Author, item.Content, result.Author, reply)
	if result.ID != "" {
		text += "\n(reply id " + result.ID + ")"
	}
	return text
}

// nopMirror is used when no ops chat is configured
type nopMirror struct{}

// NewNopMirror returns a mirror that does nothing
func NewNopMirror() repo.MirrorRepo {
	return nopMirror{}
}

func (nopMirror) Mirror(ctx context.Context, item *domain.WorkItem, result *domain.PostResult, reply string) error {
	return nil
}
