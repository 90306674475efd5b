package notifications

import (
	"sync"

	"github.com/google/uuid"
)

// FeedLimit caps both the initial query and the rows kept by a Feed.
const FeedLimit = 10

// Feed is the per-view list behind the badge. New rows are prepended and
// only the most recent FeedLimit are kept. A row whose ID is already listed
// is ignored, so a row returned by the initial query and then delivered by
// the listener is counted once.
type Feed struct {
	mu     sync.Mutex
	items  []Notification
	unread int
}

// NewFeed seeds a feed with the result of the initial query, newest first.
func NewFeed(initial []Notification) *Feed {
	f := &Feed{}
	for i := len(initial) - 1; i >= 0; i-- {
		f.push(initial[i])
	}
	return f
}

// Push prepends n and reports whether it was new.
func (f *Feed) Push(n Notification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.push(n)
}

func (f *Feed) push(n Notification) bool {
	for _, existing := range f.items {
		if existing.ID == n.ID {
			return false
		}
	}
	f.items = append([]Notification{n}, f.items...)
	if len(f.items) > FeedLimit {
		f.items = f.items[:FeedLimit]
	}
	if !n.IsRead {
		f.unread++
	}
	return true
}

// MarkRead drops id from the list after it was marked read.
func (f *Feed) MarkRead(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.items {
		if n.ID != id {
			continue
		}
		f.items = append(f.items[:i:i], f.items[i+1:]...)
		if !n.IsRead && f.unread > 0 {
			f.unread--
		}
		return
	}
}

// Items returns a copy of the listed rows, newest first.
func (f *Feed) Items() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.items...)
}

// Unread is the badge count. It keeps counting rows pushed out of the list.
func (f *Feed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}
