package store

import (
	"sync"
	"testing"
	"time"

	"matcha-back/models"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestPollChatsEmitsOnChangeOnly(t *testing.T) {
	var mu sync.Mutex
	snapshot := []ChatRecord{{ID: "a", Title: "first"}}

	var emissions [][]ChatRecord
	sub := newSubscription(func(recs []ChatRecord) {
		mu.Lock()
		defer mu.Unlock()
		emissions = append(emissions, recs)
	})
	defer sub.cancel()

	pollChats(sub, 5*time.Millisecond, func() ([]ChatRecord, error) {
		mu.Lock()
		defer mu.Unlock()
		out := make([]ChatRecord, len(snapshot))
		copy(out, snapshot)
		return out, nil
	}, nil)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emissions) == 1
	}, "initial emission")

	// Unchanged snapshots must not re-emit.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	if len(emissions) != 1 {
		mu.Unlock()
		t.Fatalf("got %d emissions for an unchanged snapshot, want 1", len(emissions))
	}
	snapshot = []ChatRecord{{ID: "a", Title: "renamed"}}
	mu.Unlock()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emissions) == 2
	}, "emission after change")
}

func TestPollChatsStopsAfterCancel(t *testing.T) {
	var mu sync.Mutex
	snapshot := []ChatRecord{{ID: "a"}}
	count := 0

	sub := newSubscription(func([]ChatRecord) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})
	pollChats(sub, 5*time.Millisecond, func() ([]ChatRecord, error) {
		mu.Lock()
		defer mu.Unlock()
		out := make([]ChatRecord, len(snapshot))
		copy(out, snapshot)
		return out, nil
	}, nil)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, "initial emission")

	sub.cancel()
	mu.Lock()
	snapshot = []ChatRecord{{ID: "a"}, {ID: "b"}}
	seen := count
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != seen {
		t.Fatalf("subscription delivered after cancel: %d -> %d", seen, count)
	}
}

func TestFingerprintCoversStamps(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	resolved := []ChatRecord{{ID: "a", UpdatedAt: models.ResolvedAt(at)}}
	pending := []ChatRecord{{ID: "a", UpdatedAt: models.PendingStamp()}}

	if fingerprint(resolved) == fingerprint(pending) {
		t.Fatal("pending and resolved stamps must fingerprint differently")
	}
	if fingerprint(resolved) != fingerprint(resolved) {
		t.Fatal("fingerprint must be deterministic")
	}
}
