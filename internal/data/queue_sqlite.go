package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// sqliteQueueRepo implements the queue on an embedded sqlite database.
// Items are stored as JSON payloads with the columns needed for ordering and leases.
type sqliteQueueRepo struct {
	mu     sync.Mutex
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewSQLiteQueueRepo opens (or creates) a sqlite queue at dbPath
func NewSQLiteQueueRepo(dbPath string, logger zerolog.Logger) (repo.QueueRepo, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLiteQueueRepo(db, dbPath, logger)
}

// NewReadOnlySQLiteQueueRepo opens an existing sqlite queue for inspection.
// The connection runs with query_only, so every write fails.
func NewReadOnlySQLiteQueueRepo(dbPath string, logger zerolog.Logger) (repo.QueueRepo, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &sqliteQueueRepo{
		db:     db,
		logger: logger.With().Str("store", dbPath).Bool("read_only", true).Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func newSQLiteQueueRepo(db *sql.DB, dbPath string, logger zerolog.Logger) (repo.QueueRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS work_items (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			state TEXT NOT NULL,
			enqueued_at INTEGER NOT NULL,
			lease_expires_at INTEGER,
			payload TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create work_items table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_work_items_state_position ON work_items(state, position)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS thread_entries (
			root_id TEXT NOT NULL,
			id TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			parent_id TEXT NOT NULL DEFAULT '',
			ts INTEGER NOT NULL,
			PRIMARY KEY (root_id, id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create thread_entries table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_thread_entries_id ON thread_entries(id)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &sqliteQueueRepo{
		db:     db,
		logger: logger.With().Str("store", dbPath).Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// inTx runs fn inside one transaction, serialized with the other calls
func (r *sqliteQueueRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nextPosition(ctx context.Context, tx *sql.Tx) (int64, error) {
	var pos int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM work_items`).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate position: %w", err)
	}
	return pos, nil
}

func leaseMillis(item *domain.WorkItem) sql.NullInt64 {
	if item.LeaseExpiresAt == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: item.LeaseExpiresAt.UnixMilli(), Valid: true}
}

func loadItem(ctx context.Context, tx *sql.Tx, id string) (*domain.WorkItem, error) {
	var payload string
	err := tx.QueryRowContext(ctx, `SELECT payload FROM work_items WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query work item: %w", err)
	}
	return decodeItem(payload)
}

func decodeItem(payload string) (*domain.WorkItem, error) {
	var item domain.WorkItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return nil, fmt.Errorf("failed to decode work item: %w", err)
	}
	return &item, nil
}

// storeItem rewrites state, lease and payload of an existing row
func storeItem(ctx context.Context, tx *sql.Tx, item *domain.WorkItem, position int64) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode work item: %w", err)
	}

	query := `UPDATE work_items SET state = ?, lease_expires_at = ?, payload = ? WHERE id = ?`
	args := []any{string(item.State), leaseMillis(item), string(payload), item.ID}
	if position > 0 {
		query = `UPDATE work_items SET state = ?, lease_expires_at = ?, payload = ?, position = ? WHERE id = ?`
		args = []any{string(item.State), leaseMillis(item), string(payload), position, item.ID}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update work item: %w", err)
	}
	return nil
}

// Enqueue inserts a pending item unless its id is already known
func (r *sqliteQueueRepo) Enqueue(ctx context.Context, item *domain.WorkItem) (bool, error) {
	if item == nil || item.ID == "" {
		return false, fmt.Errorf("work item id is required")
	}

	inserted := false
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := loadItem(ctx, tx, item.ID)
		if err != nil || existing != nil {
			return err
		}

		copied := *item
		copied.State = domain.StatePending
		if copied.EnqueuedAt.IsZero() {
			copied.EnqueuedAt = r.now()
		}
		payload, err := json.Marshal(&copied)
		if err != nil {
			return fmt.Errorf("failed to encode work item: %w", err)
		}
		pos, err := nextPosition(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO work_items (id, position, state, enqueued_at, lease_expires_at, payload)
			VALUES (?, ?, ?, ?, NULL, ?)
		`, copied.ID, pos, string(domain.StatePending), copied.EnqueuedAt.UnixMilli(), string(payload))
		if err != nil {
			return fmt.Errorf("failed to insert work item: %w", err)
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// ClaimNext moves the oldest pending item to processing
func (r *sqliteQueueRepo) ClaimNext(ctx context.Context, lease time.Duration) (*domain.WorkItem, error) {
	var claimed *domain.WorkItem
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var payload string
		err := tx.QueryRowContext(ctx, `
			SELECT payload FROM work_items
			WHERE state = ?
			ORDER BY position
			LIMIT 1
		`, string(domain.StatePending)).Scan(&payload)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query pending item: %w", err)
		}

		item, err := decodeItem(payload)
		if err != nil {
			return err
		}
		item.Claim(r.now(), lease)
		if err := storeItem(ctx, tx, item, 0); err != nil {
			return err
		}
		claimed = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete moves a processing item to processed
func (r *sqliteQueueRepo) Complete(ctx context.Context, id string, result domain.CompletionResult) (bool, error) {
	completed := false
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		item, err := loadItem(ctx, tx, id)
		if err != nil || item == nil || item.State != domain.StateProcessing {
			return err
		}
		if result.CompletedAt.IsZero() {
			result.CompletedAt = r.now()
		}
		item.Finish(result)
		if err := storeItem(ctx, tx, item, 0); err != nil {
			return err
		}
		completed = true
		return nil
	})
	return completed, err
}

// RenewLease extends the lease while the claim numbered attempt still holds the item
func (r *sqliteQueueRepo) RenewLease(ctx context.Context, id string, attempt int, lease time.Duration) (bool, error) {
	renewed := false
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		item, err := loadItem(ctx, tx, id)
		if err != nil || item == nil || item.State != domain.StateProcessing || item.Attempts != attempt {
			return err
		}
		item.Renew(r.now(), lease)
		if err := storeItem(ctx, tx, item, 0); err != nil {
			return err
		}
		renewed = true
		return nil
	})
	return renewed, err
}

// Release returns one processing item to the tail of pending
func (r *sqliteQueueRepo) Release(ctx context.Context, id string) (bool, error) {
	released := false
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		item, err := loadItem(ctx, tx, id)
		if err != nil || item == nil || item.State != domain.StateProcessing {
			return err
		}
		pos, err := nextPosition(ctx, tx)
		if err != nil {
			return err
		}
		item.Requeue()
		if err := storeItem(ctx, tx, item, pos); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

// RequeueExpired releases or abandons processing items whose lease expired
func (r *sqliteQueueRepo) RequeueExpired(ctx context.Context, now time.Time, maxAttempts int) (int, int, error) {
	requeued, abandoned := 0, 0
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT payload FROM work_items
			WHERE state = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?
			ORDER BY lease_expires_at
		`, string(domain.StateProcessing), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to query expired claims: %w", err)
		}
		expired, err := scanItems(rows)
		if err != nil {
			return err
		}

		for _, item := range expired {
			if maxAttempts > 0 && item.Attempts >= maxAttempts {
				item.Finish(domain.CompletionResult{
					Error:       fmt.Sprintf("abandoned after %d attempts", item.Attempts),
					CompletedAt: now,
				})
				if err := storeItem(ctx, tx, item, 0); err != nil {
					return err
				}
				abandoned++
				continue
			}

			pos, err := nextPosition(ctx, tx)
			if err != nil {
				return err
			}
			item.Requeue()
			if err := storeItem(ctx, tx, item, pos); err != nil {
				return err
			}
			requeued++
		}
		return nil
	})
	return requeued, abandoned, err
}

func scanItems(rows *sql.Rows) ([]*domain.WorkItem, error) {
	defer rows.Close()

	var items []*domain.WorkItem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		item, err := decodeItem(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate work items: %w", err)
	}
	return items, nil
}

// KnownIDs returns the ids in any of the three states
func (r *sqliteQueueRepo) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM work_items`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Summary returns queue counts
func (r *sqliteQueueRepo) Summary(ctx context.Context) (*domain.QueueSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := &domain.QueueSummary{}
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM work_items GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count work items: %w", err)
	}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		switch domain.ItemState(state) {
		case domain.StatePending:
			summary.Pending = count
		case domain.StateProcessing:
			summary.Processing = count
		case domain.StateProcessed:
			summary.Processed = count
		}
	}
	rows.Close()

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT root_id) FROM thread_entries`).Scan(&summary.Threads); err != nil {
		return nil, fmt.Errorf("failed to count threads: %w", err)
	}

	var oldest sql.NullInt64
	err = r.db.QueryRowContext(ctx, `SELECT MIN(enqueued_at) FROM work_items WHERE state = ?`, string(domain.StatePending)).Scan(&oldest)
	if err != nil {
		return nil, fmt.Errorf("failed to query oldest pending: %w", err)
	}
	if oldest.Valid {
		t := time.UnixMilli(oldest.Int64).UTC()
		summary.OldestPending = &t
	}
	return summary, nil
}

// List returns up to limit items in state, oldest first
func (r *sqliteQueueRepo) List(ctx context.Context, state domain.ItemState, limit int) ([]*domain.WorkItem, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("unknown state %q", state)
	}
	if limit <= 0 {
		limit = -1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM work_items WHERE state = ? ORDER BY position LIMIT ?
	`, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	return scanItems(rows)
}

// SaveThread merges entries into the cached thread of rootID
func (r *sqliteQueueRepo) SaveThread(ctx context.Context, rootID string, entries []domain.ThreadEntry) error {
	if rootID == "" || len(entries) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			if e.ID == "" {
				continue
			}
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO thread_entries (root_id, id, author, text, parent_id, ts)
				VALUES (?, ?, ?, ?, ?, ?)
			`, rootID, e.ID, e.Author, e.Text, e.ParentID, e.Timestamp.UnixMilli())
			if err != nil {
				return fmt.Errorf("failed to save thread entry: %w", err)
			}
		}
		return nil
	})
}

// GetThread returns the cached thread of rootID
func (r *sqliteQueueRepo) GetThread(ctx context.Context, rootID string) (*domain.ConversationThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, author, text, parent_id, ts FROM thread_entries
		WHERE root_id = ?
		ORDER BY ts, rowid
	`, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread: %w", err)
	}
	defer rows.Close()

	thread := &domain.ConversationThread{RootID: rootID}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		thread.Entries = append(thread.Entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate thread: %w", err)
	}
	if len(thread.Entries) == 0 {
		return nil, repo.ErrNotFound
	}
	return thread, nil
}

// LookupThreadEntry finds a cached entry by id in any thread
func (r *sqliteQueueRepo) LookupThreadEntry(ctx context.Context, id string) (*domain.ThreadEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, author, text, parent_id, ts FROM thread_entries WHERE id = ? LIMIT 1
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.ThreadEntry, error) {
	var e domain.ThreadEntry
	var ts int64
	if err := row.Scan(&e.ID, &e.Author, &e.Text, &e.ParentID, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan thread entry: %w", err)
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	return &e, nil
}

// Close closes the database
func (r *sqliteQueueRepo) Close() error {
	return r.db.Close()
}
