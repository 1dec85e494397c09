package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/biz/usecase"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// QueueServer exposes read-only queue inspection tools over MCP
type QueueServer struct {
	server  *mcp.Server
	queueUC *usecase.QueueUsecase
}

// NewQueueServer creates the MCP server and registers its tools
func NewQueueServer(queueUC *usecase.QueueUsecase, version string) *QueueServer {
	s := &QueueServer{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "reply-bridge-queue",
			Version: version,
		}, nil),
		queueUC: queueUC,
	}
	s.registerTools()
	return s
}

func (s *QueueServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "queue_summary",
		Description: "Count pending, processing and processed reply items, and cached conversation threads.",
	}, s.handleSummary)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_items",
		Description: "List reply work items in one state (pending, processing or processed), oldest first.",
	}, s.handleListItems)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_thread",
		Description: "Get the cached conversation thread for a root post id, root first.",
	}, s.handleGetThread)
}

// Run serves the tools over stdio until ctx is done or the client disconnects
func (s *QueueServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// SummaryInput is empty - no input needed
type SummaryInput struct{}

// SummaryOutput mirrors the queue summary
type SummaryOutput struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Processed  int `json:"processed"`
	Threads    int `json:"threads"`
}

func (s *QueueServer) handleSummary(ctx context.Context, req *mcp.CallToolRequest, input SummaryInput) (*mcp.CallToolResult, SummaryOutput, error) {
	summary, err := s.queueUC.Summary(ctx)
	if err != nil {
		return nil, SummaryOutput{}, fmt.Errorf("failed to summarize queue: %w", err)
	}
	return nil, SummaryOutput{
		Pending:    summary.Pending,
		Processing: summary.Processing,
		Processed:  summary.Processed,
		Threads:    summary.Threads,
	}, nil
}

// ListItemsInput selects the items to list
type ListItemsInput struct {
	State string `json:"state,omitempty" jsonschema:"Item state: pending, processing or processed (default pending)"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of items to return (default 20, max 200)"`
}

// ItemView is a work item flattened for tool output
type ItemView struct {
	ID         string `json:"id"`
	Platform   string `json:"platform,omitempty"`
	Author     string `json:"author"`
	Content    string `json:"content"`
	ParentID   string `json:"parent_id,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	EnqueuedAt string `json:"enqueued_at"`
	Response   string `json:"response,omitempty"`
	ReplyID    string `json:"reply_id,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// ListItemsOutput contains the matching items
type ListItemsOutput struct {
	State string     `json:"state"`
	Items []ItemView `json:"items"`
}

func (s *QueueServer) handleListItems(ctx context.Context, req *mcp.CallToolRequest, input ListItemsInput) (*mcp.CallToolResult, ListItemsOutput, error) {
	state := domain.ItemState(input.State)
	if state == "" {
		state = domain.StatePending
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	items, err := s.queueUC.List(ctx, state, limit)
	if err != nil {
		return nil, ListItemsOutput{}, err
	}
	out := ListItemsOutput{State: string(state), Items: make([]ItemView, 0, len(items))}
	for _, item := range items {
		out.Items = append(out.Items, ItemView{
			ID:         item.ID,
			Platform:   item.Platform,
			Author:     item.Author,
			Content:    item.Content,
			ParentID:   item.ParentID,
			Attempts:   item.Attempts,
			EnqueuedAt: item.EnqueuedAt.UTC().Format(time.RFC3339),
			Response:   item.Response,
			ReplyID:    item.ReplyID,
			ImageURL:   item.ImageURL,
		})
	}
	return nil, out, nil
}

// GetThreadInput names the thread root
type GetThreadInput struct {
	RootID string `json:"root_id" jsonschema:"The id of the first post in the conversation"`
}

// EntryView is one thread message
type EntryView struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// GetThreadOutput contains the cached thread
type GetThreadOutput struct {
	RootID  string      `json:"root_id"`
	Entries []EntryView `json:"entries"`
	Found   bool        `json:"found"`
}

func (s *QueueServer) handleGetThread(ctx context.Context, req *mcp.CallToolRequest, input GetThreadInput) (*mcp.CallToolResult, GetThreadOutput, error) {
	if input.RootID == "" {
		return nil, GetThreadOutput{}, errors.New("root_id is required")
	}

	thread, err := s.queueUC.Thread(ctx, input.RootID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, GetThreadOutput{RootID: input.RootID, Entries: []EntryView{}}, nil
	}
	if err != nil {
		return nil, GetThreadOutput{}, fmt.Errorf("failed to load thread: %w", err)
	}
	out := GetThreadOutput{RootID: thread.RootID, Entries: make([]EntryView, 0, len(thread.Entries)), Found: true}
	for _, e := range thread.Entries {
		out.Entries = append(out.Entries, EntryView{ID: e.ID, Author: e.Author, Text: e.Text})
	}
	return nil, out, nil
}
