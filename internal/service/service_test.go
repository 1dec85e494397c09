package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/biz/usecase"
	"github.com/heurist-network/reply-bridge/internal/data"
)

// pagedPlatform serves a fixed list of pages keyed by cursor
type pagedPlatform struct {
	mu      sync.Mutex
	pages   map[string]*repo.Page
	errs    map[string]error
	fetched []string
	posts   []domain.Post
}

func (p *pagedPlatform) Name() string {
	return "twitter"
}

func (p *pagedPlatform) SearchPage(ctx context.Context, cursor string) (*repo.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetched = append(p.fetched, cursor)
	if err := p.errs[cursor]; err != nil {
		return nil, err
	}
	if page, ok := p.pages[cursor]; ok {
		return page, nil
	}
	return &repo.Page{}, nil
}

func (p *pagedPlatform) GetItem(ctx context.Context, id string) (*domain.ThreadEntry, error) {
	return nil, errors.New("not found")
}

func (p *pagedPlatform) Post(ctx context.Context, post domain.Post) (*domain.PostResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post)
	return &domain.PostResult{ID: "r-" + post.ReplyToID, Author: "heurist_ai"}, nil
}

func (p *pagedPlatform) fetchedCursors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.fetched...)
}

type staticLLM struct {
	reply string
}

func (l staticLLM) Complete(ctx context.Context, req repo.CompletionRequest) (string, error) {
	return l.reply, nil
}

type harness struct {
	queue    repo.QueueRepo
	queueUC  *usecase.QueueUsecase
	platform *pagedPlatform
	monitor  *Monitor
	pool     *WorkerPool
}

func newHarness(t *testing.T, maxPages int) *harness {
	t.Helper()
	queue, err := data.NewJSONQueueRepo(filepath.Join(t.TempDir(), "replies.json"), zerolog.Nop())
	require.NoError(t, err)

	platform := &pagedPlatform{pages: map[string]*repo.Page{}, errs: map[string]error{}}
	llm := staticLLM{reply: "hi alice"}
	queueUC := usecase.NewQueueUsecase(queue, usecase.QueueConfig{LeaseTTL: time.Minute, MaxAttempts: 3})
	filterUC := usecase.NewFilterUsecase(queue, llm, nil, usecase.FilterConfig{
		BotIdentity: "heurist_ai",
		SearchTerms: []string{"@heurist_ai"},
	}, zerolog.Nop())
	contextUC := usecase.NewContextBuilderUsecase(platform, queue, nil, zerolog.Nop())
	replyUC := usecase.NewReplyUsecase(queueUC, contextUC, platform, llm, nil, nil, nil,
		usecase.ReplyConfig{Platform: "twitter"}, zerolog.Nop())

	return &harness{
		queue:    queue,
		queueUC:  queueUC,
		platform: platform,
		monitor:  NewMonitor(platform, filterUC, queueUC, MonitorConfig{MaxPages: maxPages, PollInterval: time.Hour}, zerolog.Nop()),
		pool:     NewWorkerPool(queueUC, replyUC, 10*time.Millisecond, zerolog.Nop()),
	}
}

func mention(id, author, text string) domain.Candidate {
	return domain.Candidate{ID: id, Author: author, Content: text}
}

func TestMonitor_StopsOnFirstPageWithAcceptedItems(t *testing.T) {
	h := newHarness(t, 5)
	h.platform.pages[""] = &repo.Page{
		Items:      []domain.Candidate{mention("x1", "heurist_ai", "@heurist_ai replying to myself here")},
		NextCursor: "c2",
	}
	h.platform.pages["c2"] = &repo.Page{
		Items:      []domain.Candidate{mention("t1", "alice", "@heurist_ai what is heurist about?")},
		NextCursor: "c3",
	}
	h.platform.pages["c3"] = &repo.Page{
		Items: []domain.Candidate{mention("t9", "bob", "@heurist_ai never fetched at all")},
	}

	accepted, err := h.monitor.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "c2"}, h.platform.fetchedCursors())
	require.Len(t, accepted, 1)
	assert.Equal(t, "t1", accepted[0].ID)

	pending, err := h.queue.List(context.Background(), domain.StatePending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t1", pending[0].ID)
	assert.Equal(t, "twitter", pending[0].Platform)
}

func TestMonitor_BoundedByMaxPages(t *testing.T) {
	h := newHarness(t, 3)
	for _, cursor := range []string{"", "c1", "c2", "c3"} {
		h.platform.pages[cursor] = &repo.Page{
			Items:      []domain.Candidate{mention("n-"+cursor, "alice", "no trigger term in this text")},
			NextCursor: cursor + "x",
		}
	}
	h.platform.pages[""].NextCursor = "c1"
	h.platform.pages["c1"].NextCursor = "c2"
	h.platform.pages["c2"].NextCursor = "c3"

	accepted, err := h.monitor.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accepted)
	assert.Equal(t, []string{"", "c1", "c2"}, h.platform.fetchedCursors())
}

func TestMonitor_StopsOnMissingCursor(t *testing.T) {
	h := newHarness(t, 5)
	h.platform.pages[""] = &repo.Page{
		Items: []domain.Candidate{mention("n1", "alice", "no trigger term in this text")},
	}

	_, err := h.monitor.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{""}, h.platform.fetchedCursors())
}

func TestMonitor_PageErrorIsNotFatal(t *testing.T) {
	h := newHarness(t, 5)
	h.platform.errs[""] = errors.New("connection reset")

	accepted, err := h.monitor.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accepted)
}

func TestMonitor_SkipsKnownIDs(t *testing.T) {
	h := newHarness(t, 5)
	h.platform.pages[""] = &repo.Page{
		Items: []domain.Candidate{mention("t1", "alice", "@heurist_ai what is heurist about?")},
	}

	first, err := h.monitor.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := h.monitor.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestMonitor_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, 1)
	h.platform.pages[""] = &repo.Page{
		Items: []domain.Candidate{mention("t1", "alice", "@heurist_ai what is heurist about?")},
	}

	h.monitor.Start(context.Background())
	require.Eventually(t, func() bool {
		known, err := h.queue.KnownIDs(context.Background())
		return err == nil && len(known) == 1
	}, 2*time.Second, 10*time.Millisecond)
	h.monitor.Stop()
}

func TestWorkerPool_ProcessesItemEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := h.queueUC.Enqueue(ctx, "twitter", []domain.Candidate{mention("t1", "alice", "@heurist_ai hello")})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.pool.Run(ctx, 2) }()

	require.Eventually(t, func() bool {
		items, err := h.queue.List(context.Background(), domain.StateProcessed, 0)
		return err == nil && len(items) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	processed, err := h.queue.List(context.Background(), domain.StateProcessed, 0)
	require.NoError(t, err)
	assert.Equal(t, "t1", processed[0].ID)
	assert.Equal(t, "hi alice", processed[0].Response)
	assert.Equal(t, "r-t1", processed[0].ReplyID)

	summary, err := h.queue.Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Pending)
	assert.Zero(t, summary.Processing)
	assert.Len(t, h.platform.posts, 1)
}

func TestWorkerPool_RunOnceIdle(t *testing.T) {
	h := newHarness(t, 1)
	assert.False(t, h.pool.RunOnce(context.Background(), zerolog.Nop()))
}

func TestWorkerPool_RejectsZeroWorkers(t *testing.T) {
	h := newHarness(t, 1)
	assert.Error(t, h.pool.Run(context.Background(), 0))
}

func TestReaper_RequeuesExpiredClaims(t *testing.T) {
	defer goleak.VerifyNone(t)

	queue, err := data.NewJSONQueueRepo(filepath.Join(t.TempDir(), "replies.json"), zerolog.Nop())
	require.NoError(t, err)
	queueUC := usecase.NewQueueUsecase(queue, usecase.QueueConfig{LeaseTTL: time.Millisecond, MaxAttempts: 3})

	ctx := context.Background()
	_, err = queueUC.Enqueue(ctx, "twitter", []domain.Candidate{mention("t1", "alice", "@heurist_ai hello")})
	require.NoError(t, err)
	item, err := queueUC.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	time.Sleep(5 * time.Millisecond)

	reaper := NewReaper(queueUC, time.Hour, zerolog.Nop())
	reaper.Start(ctx)
	require.Eventually(t, func() bool {
		pending, err := queue.List(ctx, domain.StatePending, 0)
		return err == nil && len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)
	reaper.Stop()

	again, err := queueUC.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), 0))
}
