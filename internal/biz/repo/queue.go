package repo

import (
	"context"
	"errors"
	"time"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
)

// ErrNotFound is returned when an item or thread does not exist
var ErrNotFound = errors.New("not found")

// ErrReadOnly is returned by mutating calls on a store opened for inspection
var ErrReadOnly = errors.New("store is read-only")

// QueueRepo is the durable work queue
// Every mutating call is a full read-modify-write serialized inside the store
type QueueRepo interface {
	// Enqueue inserts a pending item unless its id is already known.
	// A duplicate is a silent no-op and returns false.
	Enqueue(ctx context.Context, item *domain.WorkItem) (bool, error)

	// ClaimNext moves the oldest pending item to processing.
	// Returns nil when nothing is pending.
	ClaimNext(ctx context.Context, lease time.Duration) (*domain.WorkItem, error)

	// Complete moves a processing item to processed.
	// Returns false if the id is not currently processing.
	Complete(ctx context.Context, id string, result domain.CompletionResult) (bool, error)

	// RenewLease extends the lease of a processing item, but only while it is
	// still held by the claim numbered attempt. Returns false otherwise.
	RenewLease(ctx context.Context, id string, attempt int, lease time.Duration) (bool, error)

	// Release returns one processing item to the tail of pending
	Release(ctx context.Context, id string) (bool, error)

	// RequeueExpired releases processing items whose lease has expired.
	// Items that already used maxAttempts claims are completed with an error instead.
	RequeueExpired(ctx context.Context, now time.Time, maxAttempts int) (requeued, abandoned int, err error)

	// KnownIDs returns the ids in any of the three states
	KnownIDs(ctx context.Context) (map[string]struct{}, error)

	// Summary returns queue counts
	Summary(ctx context.Context) (*domain.QueueSummary, error)

	// List returns up to limit items in the given state, oldest first
	List(ctx context.Context, state domain.ItemState, limit int) ([]*domain.WorkItem, error)

	ThreadCache

	Close() error
}

// ThreadCache stores resolved thread entries keyed by thread root
type ThreadCache interface {
	// SaveThread merges entries into the thread of rootID, skipping known ids
	SaveThread(ctx context.Context, rootID string, entries []domain.ThreadEntry) error

	// GetThread returns the cached thread, or ErrNotFound
	GetThread(ctx context.Context, rootID string) (*domain.ConversationThread, error)

	// LookupThreadEntry finds a cached entry by id in any thread, or ErrNotFound
	LookupThreadEntry(ctx context.Context, id string) (*domain.ThreadEntry, error)
}
