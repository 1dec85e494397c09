package domain

import (
	"sort"
	"time"
)

// ThreadEntry is one message of a conversation thread
type ThreadEntry struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	ParentID  string    `json:"parent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationThread is the cached message list of one thread root
type ConversationThread struct {
	RootID  string        `json:"root_id"`
	Entries []ThreadEntry `json:"entries"`
}

// Append adds entries whose id is not yet present and keeps timestamp order.
// Returns the number of entries added.
func (t *ConversationThread) Append(entries ...ThreadEntry) int {
	seen := make(map[string]struct{}, len(t.Entries))
	for _, e := range t.Entries {
		seen[e.ID] = struct{}{}
	}

	added := 0
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		t.Entries = append(t.Entries, e)
		added++
	}

	if added > 0 {
		sort.SliceStable(t.Entries, func(i, j int) bool {
			return t.Entries[i].Timestamp.Before(t.Entries[j].Timestamp)
		})
	}
	return added
}

// Find returns the entry with the given id
func (t *ConversationThread) Find(id string) (ThreadEntry, bool) {
	for _, e := range t.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return ThreadEntry{}, false
}

// Len returns the number of entries
func (t *ConversationThread) Len() int {
	return len(t.Entries)
}
