package models

// ChatSession is one conversation in a user's history list. UpdatedAt is the
// normalized freshness marker in epoch milliseconds and the sole sort key for
// display order (descending).
type ChatSession struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updated_at"`
	Pinned    bool   `json:"is_pinned"`
	GroupName string `json:"group_name,omitempty"` // "" means no group
}

// SessionUpdate carries a partial session update. A nil pointer leaves the
// field untouched server-side; a GroupName pointing at "" writes the no-group
// state (distinct from omitting the field).
type SessionUpdate struct {
	Title     *string
	Pinned    *bool
	GroupName *string
}

// SessionGroup is one named bucket of grouped sessions.
type SessionGroup struct {
	Name  string        `json:"name"`
	Chats []ChatSession `json:"chats"`
}

// SessionPartition is the derived sidebar view: every session appears in
// exactly one of the three buckets.
type SessionPartition struct {
	Pinned    []ChatSession  `json:"pinned"`
	Groups    []SessionGroup `json:"groups"`
	Ungrouped []ChatSession  `json:"ungrouped"`
}
