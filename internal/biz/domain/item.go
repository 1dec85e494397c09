package domain

import "time"

// ItemState is the queue state of a work item
type ItemState string

const (
	StatePending    ItemState = "pending"
	StateProcessing ItemState = "processing"
	StateProcessed  ItemState = "processed"
)

// Valid reports whether s is one of the three queue states
func (s ItemState) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateProcessed:
		return true
	}
	return false
}

// WorkItem is one platform message accepted for a bot reply
type WorkItem struct {
	ID             string    `json:"id"`
	Platform       string    `json:"platform,omitempty"`
	Content        string    `json:"content"`
	Author         string    `json:"author"`
	RelatedID      string    `json:"related_id,omitempty"`
	RelatedContent string    `json:"related_content,omitempty"`
	ParentID       string    `json:"parent_id,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	State          ItemState `json:"state"`

	// Set once processed
	Response    string     `json:"response,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	ReplyID     string     `json:"reply_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Claim bookkeeping
	Attempts       int        `json:"attempts,omitempty"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// HasParent reports whether the item is a reply inside a thread
func (w *WorkItem) HasParent() bool {
	return w.ParentID != ""
}

// LeaseExpired reports whether a processing claim ran past its lease
func (w *WorkItem) LeaseExpired(now time.Time) bool {
	return w.State == StateProcessing && w.LeaseExpiresAt != nil && !now.Before(*w.LeaseExpiresAt)
}

// Claim marks the item processing with a lease starting at now
func (w *WorkItem) Claim(now time.Time, lease time.Duration) {
	started := now
	expires := now.Add(lease)
	w.State = StateProcessing
	w.StartedAt = &started
	w.LeaseExpiresAt = &expires
	w.Attempts++
}

// Renew moves the lease end to now+lease
func (w *WorkItem) Renew(now time.Time, lease time.Duration) {
	expires := now.Add(lease)
	w.LeaseExpiresAt = &expires
}

// Requeue returns a processing item to pending
func (w *WorkItem) Requeue() {
	w.State = StatePending
	w.StartedAt = nil
	w.LeaseExpiresAt = nil
}

// Finish merges a completion result and marks the item processed
func (w *WorkItem) Finish(result CompletionResult) {
	w.State = StateProcessed
	w.Response = result.Response
	w.ImageURL = result.ImageURL
	w.ReplyID = result.ReplyID
	w.Error = result.Error
	completed := result.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	w.CompletedAt = &completed
	w.LeaseExpiresAt = nil
}

// AsThreadEntry converts the item into its thread representation
func (w *WorkItem) AsThreadEntry() ThreadEntry {
	ts := w.CreatedAt
	if ts.IsZero() {
		ts = w.EnqueuedAt
	}
	return ThreadEntry{
		ID:        w.ID,
		Author:    w.Author,
		Text:      w.Content,
		ParentID:  w.ParentID,
		Timestamp: ts,
	}
}

// CompletionResult holds the fields written when an item is completed
type CompletionResult struct {
	Response    string
	ImageURL    string
	ReplyID     string
	Error       string
	CompletedAt time.Time
}

// Candidate is a raw platform message before filtering
type Candidate struct {
	ID        string
	Content   string
	Author    string
	IsSelf    bool // platform marked it as sent by the bot account
	RelatedID string
	ParentID  string
	CreatedAt time.Time
}

// ToWorkItem converts an accepted candidate into a pending work item
func (c Candidate) ToWorkItem(platform string, now time.Time) *WorkItem {
	return &WorkItem{
		ID:         c.ID,
		Platform:   platform,
		Content:    c.Content,
		Author:     c.Author,
		RelatedID:  c.RelatedID,
		ParentID:   c.ParentID,
		CreatedAt:  c.CreatedAt,
		State:      StatePending,
		EnqueuedAt: now,
	}
}

// QueueSummary is a point-in-time view of the queue
type QueueSummary struct {
	Pending       int        `json:"pending"`
	Processing    int        `json:"processing"`
	Processed     int        `json:"processed"`
	Threads       int        `json:"threads"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// Post is an outgoing reply
type Post struct {
	Text      string
	ReplyToID string
	MediaURL  string
}

// PostResult is what the platform returns for a created post
type PostResult struct {
	ID     string
	Author string
}
