package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"matcha-back/models"
	"matcha-back/store"
)

func TestSynthesizeTitle(t *testing.T) {
	cases := []struct {
		name string
		seed string
		want string
	}{
		{"short", "hello", "hello"},
		{"exactly thirty runes", "123456789012345678901234567890", "123456789012345678901234567890"},
		{"thirty one runes", "1234567890123456789012345678901", "123456789012345678901234567890..."},
		{"multibyte", "今日の東京の天気はどうですか明日は雨が降るでしょうか教えてください", "今日の東京の天気はどうですか明日は雨が降るでしょうか教えてく..."},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SynthesizeTitle(tc.seed)
			if got != tc.want {
				t.Fatalf("SynthesizeTitle(%q) = %q, want %q", tc.seed, got, tc.want)
			}
			if len([]rune(tc.seed)) > titleLimit {
				if n := len([]rune(got)); n != titleLimit+len([]rune(titleEllipsis)) {
					t.Fatalf("truncated title length = %d runes, want %d", n, titleLimit+len([]rune(titleEllipsis)))
				}
			}
		})
	}
}

func TestNormalizeSessionsOrdering(t *testing.T) {
	at := func(ms int64) models.Timestamp { return models.ResolvedAt(time.UnixMilli(ms)) }
	recs := []store.ChatRecord{
		{ID: "c", UserID: "u1", UpdatedAt: at(100)},
		{ID: "a", UserID: "u1", UpdatedAt: at(300)},
		{ID: "d", UserID: "u1", UpdatedAt: at(200)},
		{ID: "b", UserID: "u1", UpdatedAt: at(200)},
	}

	got := normalizeSessions(recs)
	wantOrder := []string{"a", "b", "d", "c"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d sessions, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d = %q, want %q (freshness desc, ties by id)", i, got[i].ID, id)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].UpdatedAt > got[i-1].UpdatedAt {
			t.Fatalf("ordering not non-increasing at %d: %d > %d", i, got[i].UpdatedAt, got[i-1].UpdatedAt)
		}
	}
}

func TestSubscribeNormalizesPendingStamps(t *testing.T) {
	mem := store.NewMemory()
	mem.HoldServerStamps(true)
	sessions := NewSessionStore(mem, zap.NewNop())
	ctx := context.Background()

	if _, err := sessions.Create(ctx, "u1", "hello"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var got []models.ChatSession
	cancel, err := sessions.Subscribe("u1", func(s []models.ChatSession) { got = s })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if len(got) != 1 {
		t.Fatalf("got %d sessions, want 1", len(got))
	}
	// 未確定のサーバ時刻でも正規化後は必ず正のミリ秒になる
	if got[0].UpdatedAt <= 0 {
		t.Fatalf("pending stamp normalized to %d, want a positive epoch millis", got[0].UpdatedAt)
	}
}

func TestCreateReturnsOptimisticSession(t *testing.T) {
	mem := store.NewMemory()
	sessions := NewSessionStore(mem, zap.NewNop())

	seed := "この長い最初のメッセージはタイトルとしては長すぎるので途中で切られるはずです"
	sess, err := sessions.Create(context.Background(), "u1", seed)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("optimistic session has no id")
	}
	if sess.Title != SynthesizeTitle(seed) {
		t.Fatalf("title = %q, want synthesized from seed", sess.Title)
	}
	if sess.UpdatedAt <= 0 {
		t.Fatalf("optimistic freshness = %d, want client-clocked positive value", sess.UpdatedAt)
	}
}

func TestUpdateFieldsWritesOnlyPresentFields(t *testing.T) {
	mem := store.NewMemory()
	sessions := NewSessionStore(mem, zap.NewNop())
	ctx := context.Background()

	group := "work"
	pinned := true
	sess, err := sessions.Create(ctx, "u1", "seed")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sessions.UpdateFields(ctx, "u1", sess.ID, models.SessionUpdate{GroupName: &group, Pinned: &pinned}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	var got []models.ChatSession
	cancel, err := sessions.Subscribe("u1", func(s []models.ChatSession) { got = s })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	title := "renamed"
	if err := sessions.UpdateFields(ctx, "u1", sess.ID, models.SessionUpdate{Title: &title}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if len(got) != 1 || got[0].Title != "renamed" {
		t.Fatalf("title after rename = %+v, want renamed", got)
	}
	if !got[0].Pinned || got[0].GroupName != "work" {
		t.Fatalf("absent fields were touched: %+v", got[0])
	}

	// グループ解除は空文字へのポインタで表す
	clear := ""
	if err := sessions.UpdateFields(ctx, "u1", sess.ID, models.SessionUpdate{GroupName: &clear}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if got[0].GroupName != "" {
		t.Fatalf("group not cleared: %q", got[0].GroupName)
	}
	if !got[0].Pinned || got[0].Title != "renamed" {
		t.Fatalf("clearing the group touched other fields: %+v", got[0])
	}
}

func TestSubscribeCancelIsSynchronous(t *testing.T) {
	mem := store.NewMemory()
	sessions := NewSessionStore(mem, zap.NewNop())
	ctx := context.Background()

	count := 0
	cancel, err := sessions.Subscribe("u1", func([]models.ChatSession) { count++ })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if count != 1 {
		t.Fatalf("initial delivery count = %d, want 1", count)
	}

	cancel()
	if _, err := sessions.Create(ctx, "u1", "late"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if count != 1 {
		t.Fatalf("callback fired after cancel returned: count = %d", count)
	}
}

func TestSessionStoreUnavailable(t *testing.T) {
	sessions := NewSessionStore(nil, zap.NewNop())
	ctx := context.Background()

	if sessions.Available() {
		t.Fatal("Available() = true without a backing store")
	}
	if _, err := sessions.Create(ctx, "u1", "x"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Create error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := sessions.Subscribe("u1", func([]models.ChatSession) {}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Subscribe error = %v, want ErrStoreUnavailable", err)
	}
	if err := sessions.Delete(ctx, "u1", "c1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Delete error = %v, want ErrStoreUnavailable", err)
	}
}
