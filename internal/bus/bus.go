package bus

import (
	"sync"

	"github.com/jkaberg/genie-hass/internal/domain"
)

// Bus provides fan-out pub/sub for *domain.Snapshot messages. Each Subscribe
// call gets its own channel receiving every later publication; past messages
// are not replayed. Safe for concurrent publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan *domain.Snapshot
	latest      *domain.Snapshot
}

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{} }

// Subscribe returns a channel receiving all future snapshots.
func (b *Bus) Subscribe() <-chan *domain.Snapshot {
	ch := make(chan *domain.Snapshot, 1)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers s to every subscriber without blocking. A subscriber that
// is still busy with the previous snapshot misses this one and gets the next.
func (b *Bus) Publish(s *domain.Snapshot) {
	b.mu.Lock()
	b.latest = s
	subs := make([]chan *domain.Snapshot, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Latest returns the most recently published snapshot, or nil.
func (b *Bus) Latest() *domain.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

// Close closes every subscriber channel. Publish must not be called after.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
