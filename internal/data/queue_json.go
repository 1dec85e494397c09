package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
)

// queueDocument is the on-disk layout of the JSON queue
type queueDocument struct {
	Pending    []*domain.WorkItem              `json:"pending"`
	Processing map[string]*domain.WorkItem     `json:"processing"`
	Processed  map[string]*domain.WorkItem     `json:"processed"`
	Threads    map[string][]domain.ThreadEntry `json:"threads"`
}

func newQueueDocument() *queueDocument {
	return &queueDocument{
		Pending:    []*domain.WorkItem{},
		Processing: map[string]*domain.WorkItem{},
		Processed:  map[string]*domain.WorkItem{},
		Threads:    map[string][]domain.ThreadEntry{},
	}
}

func (d *queueDocument) normalize() {
	if d.Pending == nil {
		d.Pending = []*domain.WorkItem{}
	}
	if d.Processing == nil {
		d.Processing = map[string]*domain.WorkItem{}
	}
	if d.Processed == nil {
		d.Processed = map[string]*domain.WorkItem{}
	}
	if d.Threads == nil {
		d.Threads = map[string][]domain.ThreadEntry{}
	}
}

func (d *queueDocument) known(id string) bool {
	if _, ok := d.Processing[id]; ok {
		return true
	}
	if _, ok := d.Processed[id]; ok {
		return true
	}
	for _, item := range d.Pending {
		if item.ID == id {
			return true
		}
	}
	return false
}

func (d *queueDocument) removePending(id string) {
	kept := d.Pending[:0]
	for _, item := range d.Pending {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	d.Pending = kept
}

// jsonQueueRepo is a single-document file store. Every call reads the whole
// document, mutates it in memory and writes it back under mu.
type jsonQueueRepo struct {
	mu       sync.Mutex
	path     string
	readOnly bool
	logger   zerolog.Logger
	now      func() time.Time
}

// NewJSONQueueRepo opens (or creates) a JSON file queue at path
func NewJSONQueueRepo(path string, logger zerolog.Logger) (repo.QueueRepo, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	r := &jsonQueueRepo{
		path:   path,
		logger: logger.With().Str("store", path).Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := r.write(newQueueDocument()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewReadOnlyJSONQueueRepo opens a JSON queue for inspection. It never creates,
// moves or rewrites the file; mutating calls return repo.ErrReadOnly.
func NewReadOnlyJSONQueueRepo(path string, logger zerolog.Logger) repo.QueueRepo {
	return &jsonQueueRepo{
		path:     path,
		readOnly: true,
		logger:   logger.With().Str("store", path).Bool("read_only", true).Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// read loads the document. A missing file is empty state. A corrupt file is
// moved aside and replaced by empty state, except in read-only mode where it
// is reported as an error. Any other read failure is returned.
func (r *jsonQueueRepo) read() (*queueDocument, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return newQueueDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue store: %w", err)
	}

	doc := newQueueDocument()
	if err := json.Unmarshal(raw, doc); err != nil {
		if r.readOnly {
			return nil, fmt.Errorf("queue store is corrupt: %w", err)
		}
		aside := fmt.Sprintf("%s.corrupt-%d", r.path, r.now().Unix())
		if renameErr := os.Rename(r.path, aside); renameErr != nil {
			return nil, fmt.Errorf("failed to move corrupt queue store aside: %w", renameErr)
		}
		r.logger.Error().Err(err).Str("moved_to", aside).Msg("queue store is corrupt, using empty state")
		return newQueueDocument(), nil
	}
	doc.normalize()
	return doc, nil
}

// write replaces the document atomically via a temp file and rename
func (r *jsonQueueRepo) write(doc *queueDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write queue store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close queue store: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace queue store: %w", err)
	}
	return nil
}

// update runs fn on a fresh copy of the document and persists it when fn reports a change
func (r *jsonQueueRepo) update(fn func(doc *queueDocument) (bool, error)) error {
	if r.readOnly {
		return repo.ErrReadOnly
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.write(doc)
}

// view runs fn on a fresh copy of the document without writing
func (r *jsonQueueRepo) view(fn func(doc *queueDocument)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}
	fn(doc)
	return nil
}

// Enqueue inserts a pending item unless its id is already known
func (r *jsonQueueRepo) Enqueue(ctx context.Context, item *domain.WorkItem) (bool, error) {
	if item == nil || item.ID == "" {
		return false, fmt.Errorf("work item id is required")
	}

	inserted := false
	err := r.update(func(doc *queueDocument) (bool, error) {
		if doc.known(item.ID) {
			return false, nil
		}
		copied := *item
		copied.State = domain.StatePending
		if copied.EnqueuedAt.IsZero() {
			copied.EnqueuedAt = r.now()
		}
		doc.Pending = append(doc.Pending, &copied)
		inserted = true
		return true, nil
	})
	return inserted, err
}

// ClaimNext moves the oldest pending item to processing
func (r *jsonQueueRepo) ClaimNext(ctx context.Context, lease time.Duration) (*domain.WorkItem, error) {
	var claimed *domain.WorkItem
	err := r.update(func(doc *queueDocument) (bool, error) {
		for _, item := range doc.Pending {
			if _, busy := doc.Processing[item.ID]; busy {
				continue
			}
			item.Claim(r.now(), lease)
			doc.Processing[item.ID] = item
			doc.removePending(item.ID)
			copied := *item
			claimed = &copied
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete moves a processing item to processed
func (r *jsonQueueRepo) Complete(ctx context.Context, id string, result domain.CompletionResult) (bool, error) {
	completed := false
	err := r.update(func(doc *queueDocument) (bool, error) {
		item, ok := doc.Processing[id]
		if !ok {
			return false, nil
		}
		if result.CompletedAt.IsZero() {
			result.CompletedAt = r.now()
		}
		item.Finish(result)
		delete(doc.Processing, id)
		doc.removePending(id)
		doc.Processed[id] = item
		completed = true
		return true, nil
	})
	return completed, err
}

// RenewLease extends the lease while the claim numbered attempt still holds the item
func (r *jsonQueueRepo) RenewLease(ctx context.Context, id string, attempt int, lease time.Duration) (bool, error) {
	renewed := false
	err := r.update(func(doc *queueDocument) (bool, error) {
		item, ok := doc.Processing[id]
		if !ok || item.Attempts != attempt {
			return false, nil
		}
		item.Renew(r.now(), lease)
		renewed = true
		return true, nil
	})
	return renewed, err
}

// Release returns one processing item to the tail of pending
func (r *jsonQueueRepo) Release(ctx context.Context, id string) (bool, error) {
	released := false
	err := r.update(func(doc *queueDocument) (bool, error) {
		item, ok := doc.Processing[id]
		if !ok {
			return false, nil
		}
		item.Requeue()
		delete(doc.Processing, id)
		doc.Pending = append(doc.Pending, item)
		released = true
		return true, nil
	})
	return released, err
}

// RequeueExpired releases or abandons processing items whose lease expired
func (r *jsonQueueRepo) RequeueExpired(ctx context.Context, now time.Time, maxAttempts int) (int, int, error) {
	requeued, abandoned := 0, 0
	err := r.update(func(doc *queueDocument) (bool, error) {
		expired := make([]*domain.WorkItem, 0)
		for _, item := range doc.Processing {
			if item.LeaseExpired(now) {
				expired = append(expired, item)
			}
		}
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].StartedAt.Before(*expired[j].StartedAt)
		})

		for _, item := range expired {
			delete(doc.Processing, item.ID)
			if maxAttempts > 0 && item.Attempts >= maxAttempts {
				item.Finish(domain.CompletionResult{
					Error:       fmt.Sprintf("abandoned after %d attempts", item.Attempts),
					CompletedAt: now,
				})
				doc.Processed[item.ID] = item
				abandoned++
				continue
			}
			item.Requeue()
			doc.Pending = append(doc.Pending, item)
			requeued++
		}
		return len(expired) > 0, nil
	})
	return requeued, abandoned, err
}

// KnownIDs returns the ids in any of the three states
func (r *jsonQueueRepo) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := r.view(func(doc *queueDocument) {
		for _, item := range doc.Pending {
			ids[item.ID] = struct{}{}
		}
		for id := range doc.Processing {
			ids[id] = struct{}{}
		}
		for id := range doc.Processed {
			ids[id] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Summary returns queue counts
func (r *jsonQueueRepo) Summary(ctx context.Context) (*domain.QueueSummary, error) {
	summary := &domain.QueueSummary{}
	err := r.view(func(doc *queueDocument) {
		summary.Pending = len(doc.Pending)
		summary.Processing = len(doc.Processing)
		summary.Processed = len(doc.Processed)
		summary.Threads = len(doc.Threads)
		if len(doc.Pending) > 0 {
			oldest := doc.Pending[0].EnqueuedAt
			summary.OldestPending = &oldest
		}
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// List returns up to limit items in state, oldest first
func (r *jsonQueueRepo) List(ctx context.Context, state domain.ItemState, limit int) ([]*domain.WorkItem, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("unknown state %q", state)
	}

	var items []*domain.WorkItem
	err := r.view(func(doc *queueDocument) {
		switch state {
		case domain.StatePending:
			items = append(items, doc.Pending...)
		case domain.StateProcessing:
			for _, item := range doc.Processing {
				items = append(items, item)
			}
			sortByStarted(items)
		case domain.StateProcessed:
			for _, item := range doc.Processed {
				items = append(items, item)
			}
			sortByCompleted(items)
		}
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// SaveThread merges entries into the cached thread of rootID
func (r *jsonQueueRepo) SaveThread(ctx context.Context, rootID string, entries []domain.ThreadEntry) error {
	if rootID == "" || len(entries) == 0 {
		return nil
	}
	return r.update(func(doc *queueDocument) (bool, error) {
		thread := &domain.ConversationThread{RootID: rootID, Entries: doc.Threads[rootID]}
		if thread.Append(entries...) == 0 {
			return false, nil
		}
		doc.Threads[rootID] = thread.Entries
		return true, nil
	})
}

// GetThread returns the cached thread of rootID
func (r *jsonQueueRepo) GetThread(ctx context.Context, rootID string) (*domain.ConversationThread, error) {
	var thread *domain.ConversationThread
	err := r.view(func(doc *queueDocument) {
		if entries, ok := doc.Threads[rootID]; ok {
			thread = &domain.ConversationThread{RootID: rootID, Entries: entries}
		}
	})
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, repo.ErrNotFound
	}
	return thread, nil
}

// LookupThreadEntry finds a cached entry by id in any thread
func (r *jsonQueueRepo) LookupThreadEntry(ctx context.Context, id string) (*domain.ThreadEntry, error) {
	var found *domain.ThreadEntry
	err := r.view(func(doc *queueDocument) {
		for _, entries := range doc.Threads {
			for i := range entries {
				if entries[i].ID == id {
					e := entries[i]
					found = &e
					return
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, repo.ErrNotFound
	}
	return found, nil
}

// Close is a no-op for the file store
func (r *jsonQueueRepo) Close() error {
	return nil
}

func sortByStarted(items []*domain.WorkItem) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].StartedAt, items[j].StartedAt
		if a == nil || b == nil {
			return items[i].ID < items[j].ID
		}
		return a.Before(*b)
	})
}

func sortByCompleted(items []*domain.WorkItem) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].CompletedAt, items[j].CompletedAt
		if a == nil || b == nil {
			return items[i].ID < items[j].ID
		}
		return a.Before(*b)
	})
}
