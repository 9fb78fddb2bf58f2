package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"matcha-back/models"
)

// Memory is an in-process ChatStore used by tests and ephemeral runs. Every
// mutation of a chat document pushes a fresh snapshot to the owner's
// subscribers synchronously, which keeps tests deterministic.
type Memory struct {
	mu         sync.Mutex
	chats      map[string]ChatRecord
	msgs       map[string][]MessageRecord
	subs       map[*subscription]string
	now        func() time.Time
	holdStamps bool
}

func NewMemory() *Memory {
	return &Memory{
		chats: make(map[string]ChatRecord),
		msgs:  make(map[string][]MessageRecord),
		subs:  make(map[*subscription]string),
		now:   time.Now,
	}
}

// SetClock replaces the store clock. Tests use a stepping clock so freshness
// comparisons do not depend on wall time.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// HoldServerStamps keeps server timestamps in the pending state until
// ResolveStamps is called, simulating the window between a write and the
// server echoing the resolved value.
func (m *Memory) HoldServerStamps(hold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdStamps = hold
}

// ResolveStamps resolves all pending server timestamps at the current store
// clock and re-emits every owner's snapshot.
func (m *Memory) ResolveStamps() {
	m.mu.Lock()
	resolved := m.now()
	for id, rec := range m.chats {
		if rec.CreatedAt.Pending {
			rec.CreatedAt = models.ResolvedAt(resolved)
		}
		if rec.UpdatedAt.Pending {
			rec.UpdatedAt = models.ResolvedAt(resolved)
		}
		m.chats[id] = rec
	}
	type emission struct {
		sub  *subscription
		recs []ChatRecord
	}
	var emits []emission
	for sub, owner := range m.subs {
		emits = append(emits, emission{sub, m.snapshotLocked(owner)})
	}
	m.mu.Unlock()
	for _, e := range emits {
		e.sub.deliver(e.recs)
	}
}

func (m *Memory) stampLocked(ts models.Timestamp) models.Timestamp {
	if ts.Pending && !m.holdStamps {
		return models.ResolvedAt(m.now())
	}
	return ts
}

func (m *Memory) snapshotLocked(owner string) []ChatRecord {
	var recs []ChatRecord
	for _, rec := range m.chats {
		if rec.UserID == owner {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs
}

// emitLocked collects the deliveries for one owner's subscribers; the caller
// performs them after releasing the store lock so that subscriber callbacks
// can safely call back into the store.
func (m *Memory) emitLocked(owner string) (subs []*subscription, recs []ChatRecord) {
	for sub, o := range m.subs {
		if o == owner {
			subs = append(subs, sub)
		}
	}
	if len(subs) > 0 {
		recs = m.snapshotLocked(owner)
	}
	return subs, recs
}

func (m *Memory) SubscribeChats(ownerID string, fn func([]ChatRecord)) (func(), error) {
	sub := newSubscription(fn)
	m.mu.Lock()
	m.subs[sub] = ownerID
	initial := m.snapshotLocked(ownerID)
	m.mu.Unlock()

	sub.deliver(initial)
	return func() {
		sub.cancel()
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	}, nil
}

func (m *Memory) CreateChat(_ context.Context, rec ChatRecord) (string, error) {
	m.mu.Lock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = m.stampLocked(rec.CreatedAt)
	rec.UpdatedAt = m.stampLocked(rec.UpdatedAt)
	m.chats[rec.ID] = rec
	subs, recs := m.emitLocked(rec.UserID)
	id := rec.ID
	m.mu.Unlock()

	for _, s := range subs {
		s.deliver(recs)
	}
	return id, nil
}

func (m *Memory) UpdateChat(_ context.Context, ownerID, chatID string, upd ChatUpdate) error {
	m.mu.Lock()
	rec, ok := m.chats[chatID]
	if !ok || rec.UserID != ownerID {
		m.mu.Unlock()
		return ErrNotFound
	}
	if upd.Title != nil {
		rec.Title = *upd.Title
	}
	if upd.Pinned != nil {
		rec.Pinned = *upd.Pinned
	}
	if upd.GroupName != nil {
		rec.GroupName = *upd.GroupName
	}
	if upd.Touch {
		rec.UpdatedAt = m.stampLocked(models.PendingStamp())
	}
	m.chats[chatID] = rec
	subs, recs := m.emitLocked(ownerID)
	m.mu.Unlock()

	for _, s := range subs {
		s.deliver(recs)
	}
	return nil
}

// DeleteChat removes the parent document only. Messages of the chat stay in
// place until a cleanup sweep reaps them.
func (m *Memory) DeleteChat(_ context.Context, ownerID, chatID string) error {
	m.mu.Lock()
	rec, ok := m.chats[chatID]
	if !ok || rec.UserID != ownerID {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.chats, chatID)
	subs, recs := m.emitLocked(ownerID)
	m.mu.Unlock()

	for _, s := range subs {
		s.deliver(recs)
	}
	return nil
}

func (m *Memory) ReadMessages(_ context.Context, _ string, chatID string) ([]MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]MessageRecord, len(m.msgs[chatID]))
	copy(recs, m.msgs[chatID])
	return recs, nil
}

func (m *Memory) AppendMessage(_ context.Context, _ string, rec MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.msgs[rec.ChatID] = append(m.msgs[rec.ChatID], rec)
	return nil
}

func (m *Memory) ScanChatIDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]struct{}, len(m.chats))
	for id := range m.chats {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *Memory) ScanMessageRefs(_ context.Context) ([]MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []MessageRef
	for chatID, msgs := range m.msgs {
		for _, msg := range msgs {
			refs = append(refs, MessageRef{ChatID: chatID, MessageID: msg.ID})
		}
	}
	return refs, nil
}

func (m *Memory) DeleteMessage(_ context.Context, chatID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.msgs[chatID]
	for i, msg := range msgs {
		if msg.ID == messageID {
			m.msgs[chatID] = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
	if len(m.msgs[chatID]) == 0 {
		delete(m.msgs, chatID)
	}
	return nil
}
