package usecase

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
)

func entryIDs(entries []domain.ThreadEntry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestBuildThread_WalksToRoot(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	platform := newMockPlatform(
		domain.ThreadEntry{ID: "a", Author: "alice", Text: "root", Timestamp: base},
		domain.ThreadEntry{ID: "b", Author: "bob", Text: "middle", ParentID: "a", Timestamp: base.Add(time.Minute)},
	)
	q := newMemQueue()
	uc := NewContextBuilderUsecase(platform, q, nil, zerolog.Nop())

	item := &domain.WorkItem{ID: "c", Author: "carol", Content: "leaf", ParentID: "b", CreatedAt: base.Add(2 * time.Minute)}
	thread := uc.BuildThread(context.Background(), item)

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(entryIDs(thread), want) {
		t.Fatalf("BuildThread() = %v, want %v", entryIDs(thread), want)
	}

	cached, err := q.GetThread(context.Background(), "a")
	if err != nil {
		t.Fatalf("expected thread cached under root: %v", err)
	}
	if cached.Len() != 3 {
		t.Errorf("cached thread length = %d, want 3", cached.Len())
	}
}

func TestBuildThread_CycleTerminates(t *testing.T) {
	// A -> B -> A
	platform := newMockPlatform(
		domain.ThreadEntry{ID: "A", Author: "x", Text: "a", ParentID: "B"},
		domain.ThreadEntry{ID: "B", Author: "y", Text: "b", ParentID: "A"},
	)
	uc := NewContextBuilderUsecase(platform, newMemQueue(), nil, zerolog.Nop())

	item := &domain.WorkItem{ID: "A", Author: "x", Content: "a", ParentID: "B"}
	thread := uc.BuildThread(context.Background(), item)

	seen := map[string]int{}
	for _, e := range thread {
		seen[e.ID]++
	}
	if len(thread) != 2 || seen["A"] != 1 || seen["B"] != 1 {
		t.Errorf("BuildThread() = %v, want each of A and B once", entryIDs(thread))
	}
}

func TestBuildThread_TruncatesOnMissingAncestor(t *testing.T) {
	platform := newMockPlatform(
		domain.ThreadEntry{ID: "b", Author: "bob", Text: "middle", ParentID: "gone"},
	)
	uc := NewContextBuilderUsecase(platform, newMemQueue(), nil, zerolog.Nop())

	thread := uc.BuildThread(context.Background(), &domain.WorkItem{ID: "c", Content: "leaf", ParentID: "b"})
	if want := []string{"b", "c"}; !reflect.DeepEqual(entryIDs(thread), want) {
		t.Errorf("BuildThread() = %v, want %v", entryIDs(thread), want)
	}
}

func TestBuildThread_UsesThreadCache(t *testing.T) {
	q := newMemQueue()
	q.SaveThread(context.Background(), "a", []domain.ThreadEntry{
		{ID: "a", Author: "alice", Text: "root"},
		{ID: "b", Author: "bob", Text: "middle", ParentID: "a"},
	})
	platform := newMockPlatform()
	uc := NewContextBuilderUsecase(platform, q, nil, zerolog.Nop())

	thread := uc.BuildThread(context.Background(), &domain.WorkItem{ID: "d", Content: "sibling", ParentID: "b"})

	if want := []string{"a", "b", "d"}; !reflect.DeepEqual(entryIDs(thread), want) {
		t.Errorf("BuildThread() = %v, want %v", entryIDs(thread), want)
	}
	if len(platform.lookups) != 0 {
		t.Errorf("expected no platform lookups, got %v", platform.lookups)
	}
}

func TestBuildThread_NoParent(t *testing.T) {
	q := newMemQueue()
	uc := NewContextBuilderUsecase(newMockPlatform(), q, nil, zerolog.Nop())

	thread := uc.BuildThread(context.Background(), &domain.WorkItem{ID: "solo", Content: "hi"})
	if len(thread) != 1 || thread[0].ID != "solo" {
		t.Errorf("BuildThread() = %v, want [solo]", entryIDs(thread))
	}
	if len(q.savedRoots) != 0 {
		t.Errorf("single entry threads should not be cached")
	}
}

func TestFormatThreadPrompt(t *testing.T) {
	uc := NewContextBuilderUsecase(newMockPlatform(), newMemQueue(), nil, zerolog.Nop())
	entries := []domain.ThreadEntry{
		{ID: "1", Author: "alice", Text: "what is heurist?"},
		{ID: "2", Author: "heuman", Text: "a decentralized AI network"},
		{ID: "3", Author: "alice", Text: "how do I join?"},
	}

	got := uc.FormatThreadPrompt(entries, entries[2])

	want := "This is a conversation thread:\n\n" +
		"@alice: what is heurist?\n@heuman: a decentralized AI network\n@alice: how do I join?\n\n" +
		"The latest reply is from @alice: \"how do I join?\"\n\n" +
		"Please generate a contextually relevant reply that takes into account the entire conversation history."
	if got != want {
		t.Errorf("FormatThreadPrompt() =\n%s\nwant\n%s", got, want)
	}
	if !strings.HasPrefix(got, "This is a conversation thread:") {
		t.Errorf("missing thread header")
	}
}
