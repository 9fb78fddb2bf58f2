package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"matcha-back/models"
)

// subscription delivers chat snapshots to one callback until cancelled.
// Delivery and cancellation share a mutex, so once cancel() returns no
// further callback can fire.
type subscription struct {
	mu     sync.Mutex
	fn     func([]ChatRecord)
	closed bool
	stop   chan struct{}
}

func newSubscription(fn func([]ChatRecord)) *subscription {
	return &subscription{
		fn:   fn,
		stop: make(chan struct{}),
	}
}

func (s *subscription) deliver(recs []ChatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(recs)
}

func (s *subscription) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
}

// pollChats drives a subscription for backends without a native change
// stream. It queries on a ticker and emits only when the snapshot
// fingerprint changes. The first query runs immediately.
func pollChats(sub *subscription, interval time.Duration, query func() ([]ChatRecord, error), onError func(error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := ""
		emit := func() {
			recs, err := query()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			fp := fingerprint(recs)
			if fp == last {
				return
			}
			last = fp
			sub.deliver(recs)
		}

		emit()
		for {
			select {
			case <-sub.stop:
				return
			case <-ticker.C:
				emit()
			}
		}
	}()
}

func fingerprint(recs []ChatRecord) string {
	var b strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&b, "%s|%s|%t|%s|%s;", r.ID, r.Title, r.Pinned, r.GroupName, stampKey(r.UpdatedAt))
	}
	return b.String()
}

func stampKey(ts models.Timestamp) string {
	if ts.Resolved != nil {
		return fmt.Sprintf("r%d", ts.Resolved.UnixMilli())
	}
	if ts.Pending {
		return "p"
	}
	return fmt.Sprintf("c%d", ts.Millis)
}
