package feedback

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreUpsert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := Entry{
		SessionID: "s1",
		RecordID:  "r1",
		Decision:  Escalated,
		BaseScore: 0.8,
		Features:  []float64{1, 0, 1},
	}

	if err := store.RecordDecision(ctx, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := store.Count(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 entry, got %d", count)
	}

	// A changed mind replaces the entry instead of appending
	entry.Decision = Cleared
	if err := store.RecordDecision(ctx, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, _ = store.Count(ctx, "s1")
	if count != 1 {
		t.Errorf("re-deciding the same record should keep count at 1, got %d", count)
	}

	entries, err := store.Entries(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Decision != Cleared {
		t.Errorf("latest decision should win, got %+v", entries)
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.RecordDecision(ctx, Entry{SessionID: "s1", RecordID: "r1", Decision: "Maybe"}); err == nil {
		t.Error("expected error for invalid decision")
	}

	if err := store.RecordDecision(ctx, Entry{RecordID: "r1", Decision: Escalated}); err == nil {
		t.Error("expected error for missing session id")
	}

	count, _ := store.Count(ctx, AllSessions)
	if count != 0 {
		t.Errorf("rejected entries should not be stored, count = %d", count)
	}
}

func TestMemoryStoreScopes(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pairs := []struct{ session, record string }{
		{"s1", "r1"},
		{"s1", "r2"},
		{"s2", "r1"},
	}
	for _, p := range pairs {
		entry := Entry{SessionID: p.session, RecordID: p.record, Decision: Escalated}
		if err := store.RecordDecision(ctx, entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	count, _ := store.Count(ctx, "s1")
	if count != 2 {
		t.Errorf("expected 2 entries in s1, got %d", count)
	}

	count, _ = store.Count(ctx, AllSessions)
	if count != 3 {
		t.Errorf("expected 3 entries across all sessions, got %d", count)
	}

	entries, _ := store.Entries(ctx, "s2")
	if len(entries) != 1 || entries[0].RecordID != "r1" {
		t.Errorf("unexpected s2 entries: %+v", entries)
	}
}

func TestMemoryStoreEntriesOrdered(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r3", "r1", "r2"} {
		entry := Entry{
			SessionID: "s1",
			RecordID:  id,
			Decision:  Cleared,
			DecidedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.RecordDecision(ctx, entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := store.Entries(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"r3", "r1", "r2"}
	for i, entry := range entries {
		if entry.RecordID != want[i] {
			t.Errorf("entry %d = %s, want %s (decision-time order)", i, entry.RecordID, want[i])
		}
	}
}
