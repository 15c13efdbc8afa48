package client

import (
	"sync"

	"agentdash/domain"
)

// DefaultFeedLimit caps the activity feed; when a new entry arrives over the
// cap, the oldest is evicted.
const DefaultFeedLimit = 20

// Feed is the capped, newest-first activity list backing the activity view.
type Feed struct {
	mu      sync.Mutex
	limit   int
	entries []domain.Activity
}

func NewFeed() *Feed {
	return &Feed{limit: DefaultFeedLimit}
}

// Add prepends an entry, evicting the oldest when over the cap.
func (f *Feed) Add(a domain.Activity) {
	f.mu.Lock()
	f.entries = append([]domain.Activity{a}, f.entries...)
	if len(f.entries) > f.limit {
		f.entries = f.entries[:f.limit]
	}
	f.mu.Unlock()
}

// Replace swaps in a freshly fetched list (expected newest first), trimmed
// to the cap.
func (f *Feed) Replace(entries []domain.Activity) {
	f.mu.Lock()
	f.entries = append([]domain.Activity(nil), entries...)
	if len(f.entries) > f.limit {
		f.entries = f.entries[:f.limit]
	}
	f.mu.Unlock()
}

// Entries returns a copy, newest first.
func (f *Feed) Entries() []domain.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Activity(nil), f.entries...)
}

// Len returns the current entry count.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
