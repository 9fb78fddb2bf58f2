package models

import "time"

// Timestamp holds the dual representation the document store exposes:
// a server-resolved time, a "pending" marker (write issued but the server
// stamp is not visible yet), or a plain client epoch in milliseconds.
type Timestamp struct {
	Resolved *time.Time
	Pending  bool
	Millis   int64
}

// ResolvedAt wraps a server-resolved time.
func ResolvedAt(t time.Time) Timestamp {
	return Timestamp{Resolved: &t}
}

// PendingStamp marks a write whose server timestamp has not resolved yet.
func PendingStamp() Timestamp {
	return Timestamp{Pending: true}
}

// AtMillis wraps a client-generated epoch in milliseconds.
func AtMillis(ms int64) Timestamp {
	return Timestamp{Millis: ms}
}
