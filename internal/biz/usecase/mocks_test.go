package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
)

// memQueue is an in-memory QueueRepo
type memQueue struct {
	mu         sync.Mutex
	order      []string
	items      map[string]*domain.WorkItem
	threads    map[string]*domain.ConversationThread
	knownErr   error
	savedRoots []string
}

func newMemQueue() *memQueue {
	return &memQueue{
		items:   map[string]*domain.WorkItem{},
		threads: map[string]*domain.ConversationThread{},
	}
}

func (q *memQueue) Enqueue(ctx context.Context, item *domain.WorkItem) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[item.ID]; ok {
		return false, nil
	}
	cp := *item
	cp.State = domain.StatePending
	q.items[item.ID] = &cp
	q.order = append(q.order, item.ID)
	return true, nil
}

func (q *memQueue) ClaimNext(ctx context.Context, lease time.Duration) (*domain.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		item := q.items[id]
		if item.State == domain.StatePending {
			item.Claim(time.Now().UTC(), lease)
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (q *memQueue) Complete(ctx context.Context, id string, result domain.CompletionResult) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok || item.State != domain.StateProcessing {
		return false, nil
	}
	item.Finish(result)
	return true, nil
}

func (q *memQueue) RenewLease(ctx context.Context, id string, attempt int, lease time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok || item.State != domain.StateProcessing || item.Attempts != attempt {
		return false, nil
	}
	item.Renew(time.Now().UTC(), lease)
	return true, nil
}

func (q *memQueue) Release(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok || item.State != domain.StateProcessing {
		return false, nil
	}
	item.Requeue()
	return true, nil
}

func (q *memQueue) RequeueExpired(ctx context.Context, now time.Time, maxAttempts int) (int, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	requeued, abandoned := 0, 0
	for _, item := range q.items {
		if !item.LeaseExpired(now) {
			continue
		}
		if item.Attempts >= maxAttempts {
			item.Finish(domain.CompletionResult{Error: "abandoned", CompletedAt: now})
			abandoned++
			continue
		}
		item.Requeue()
		requeued++
	}
	return requeued, abandoned, nil
}

func (q *memQueue) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.knownErr != nil {
		return nil, q.knownErr
	}
	ids := make(map[string]struct{}, len(q.items))
	for id := range q.items {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (q *memQueue) Summary(ctx context.Context) (*domain.QueueSummary, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := &domain.QueueSummary{Threads: len(q.threads)}
	for _, item := range q.items {
		switch item.State {
		case domain.StatePending:
			s.Pending++
		case domain.StateProcessing:
			s.Processing++
		case domain.StateProcessed:
			s.Processed++
		}
	}
	return s, nil
}

func (q *memQueue) List(ctx context.Context, state domain.ItemState, limit int) ([]*domain.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*domain.WorkItem
	for _, id := range q.order {
		if item := q.items[id]; item.State == state {
			cp := *item
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueue) get(id string) *domain.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items[id]
}

func (q *memQueue) SaveThread(ctx context.Context, rootID string, entries []domain.ThreadEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	thread, ok := q.threads[rootID]
	if !ok {
		thread = &domain.ConversationThread{RootID: rootID}
		q.threads[rootID] = thread
	}
	thread.Append(entries...)
	q.savedRoots = append(q.savedRoots, rootID)
	return nil
}

func (q *memQueue) GetThread(ctx context.Context, rootID string) (*domain.ConversationThread, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if thread, ok := q.threads[rootID]; ok {
		return thread, nil
	}
	return nil, repo.ErrNotFound
}

func (q *memQueue) LookupThreadEntry(ctx context.Context, id string) (*domain.ThreadEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, thread := range q.threads {
		if e, ok := thread.Find(id); ok {
			return &e, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (q *memQueue) Close() error {
	return nil
}

// mockPlatform serves lookups from a map and records posts
type mockPlatform struct {
	mu      sync.Mutex
	entries map[string]domain.ThreadEntry
	lookups map[string]int
	posts   []domain.Post
	postErr error
}

func newMockPlatform(entries ...domain.ThreadEntry) *mockPlatform {
	p := &mockPlatform{entries: map[string]domain.ThreadEntry{}, lookups: map[string]int{}}
	for _, e := range entries {
		p.entries[e.ID] = e
	}
	return p
}

func (p *mockPlatform) Name() string {
	return "twitter"
}

func (p *mockPlatform) SearchPage(ctx context.Context, cursor string) (*repo.Page, error) {
	return &repo.Page{}, nil
}

func (p *mockPlatform) GetItem(ctx context.Context, id string) (*domain.ThreadEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups[id]++
	e, ok := p.entries[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &e, nil
}

func (p *mockPlatform) Post(ctx context.Context, post domain.Post) (*domain.PostResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.postErr != nil {
		return nil, p.postErr
	}
	p.posts = append(p.posts, post)
	return &domain.PostResult{ID: "reply-" + post.ReplyToID, Author: "heurist_ai"}, nil
}

// mockLLM answers reply requests and classifier requests separately
type mockLLM struct {
	mu          sync.Mutex
	reply       string
	replyErr    error
	classify    func(text string) (string, error)
	imagePrompt string
	requests    []repo.CompletionRequest
}

func (m *mockLLM) Complete(ctx context.Context, req repo.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if req.Small && req.MaxTokens == classifierTokens {
		if m.classify == nil {
			return "```json\n{\"ignore\": false}\n```", nil
		}
		return m.classify(req.User)
	}
	if req.Small {
		return m.imagePrompt, nil
	}
	return m.reply, m.replyErr
}

func (m *mockLLM) calls() []repo.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repo.CompletionRequest(nil), m.requests...)
}

type mockImage struct {
	genErr  error
	hostErr error
}

func (m *mockImage) Generate(ctx context.Context, prompt string) (string, error) {
	if m.genErr != nil {
		return "", m.genErr
	}
	return "http://sequencer/img.png", nil
}

func (m *mockImage) Host(ctx context.Context, url string) (string, error) {
	if m.hostErr != nil {
		return "", m.hostErr
	}
	return "https://i.ibb.co/img.png", nil
}

type mockMirror struct {
	mirrored []string
}

func (m *mockMirror) Mirror(ctx context.Context, item *domain.WorkItem, result *domain.PostResult, reply string) error {
	m.mirrored = append(m.mirrored, item.ID)
	return nil
}
